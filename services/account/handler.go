package account

import (
	"net/http"

	"engagement-ledger/pkg/db/pagination"
	"engagement-ledger/services/ledgererr"
	"engagement-ledger/services/txlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	service *Service
	txlog   *txlog.Service
}

type HandlerParams struct {
	fx.In

	Service *Service
	TxLog   *txlog.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{service: p.Service, txlog: p.TxLog}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1/accounts")
	v1.POST("", h.openAccount)
	v1.POST("/:id/grants", h.grantCredits)
	v1.GET("/:id/balance", h.getBalance)
	v1.GET("/:id/transactions", h.listTransactions)
}

type openAccountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

type grantRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	ReferenceID string `json:"reference_id"`
}

type BalanceResponse struct {
	AccountID   string `json:"account_id"`
	Balance     int64  `json:"balance"`
	TotalEarned int64  `json:"total_earned"`
	TotalSpent  int64  `json:"total_spent"`
}

type TransactionsResponse struct {
	Transactions []*txlog.Transaction `json:"transactions"`
	PageInfo     *pagination.PageInfo `json:"page_info"`
}

func toBalance(a *Account) BalanceResponse {
	return BalanceResponse{
		AccountID:   a.ID,
		Balance:     a.Balance,
		TotalEarned: a.TotalEarned,
		TotalSpent:  a.TotalSpent,
	}
}

func (h *Handler) openAccount(c *gin.Context) {
	var req openAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("body", err.Error()))
		return
	}

	acct, err := h.service.OpenAccount(c.Request.Context(), req.AccountID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, toBalance(acct))
}

func (h *Handler) grantCredits(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("body", err.Error()))
		return
	}

	entry, err := h.service.GrantCredits(c.Request.Context(), c.Param("id"), req.Amount, req.ReferenceID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) getBalance(c *gin.Context) {
	acct, err := h.service.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toBalance(acct))
}

func (h *Handler) listTransactions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("query", err.Error()))
		return
	}

	if _, err := h.service.GetBalance(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}

	rows, info, err := h.txlog.ListByAccount(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, TransactionsResponse{Transactions: rows, PageInfo: info})
}
