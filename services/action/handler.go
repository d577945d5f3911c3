package action

import (
	"net/http"

	"engagement-ledger/pkg/db/pagination"
	"engagement-ledger/pkg/errutil"
	"engagement-ledger/pkg/middleware"
	"engagement-ledger/services/campaign"
	"engagement-ledger/services/ledgererr"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	service *Service
	limiter *middleware.RateLimiter
}

type HandlerParams struct {
	fx.In

	Service *Service
	Limiter *middleware.RateLimiter
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{service: p.Service, limiter: p.Limiter}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.POST("/v1/actions", h.submitAction)
	r.GET("/v1/campaigns/:id/actions", h.listActions)
}

type submitActionRequest struct {
	PerformerID  string       `json:"performer_id" binding:"required"`
	CampaignID   string       `json:"campaign_id" binding:"required"`
	ActionType   string       `json:"action_type" binding:"required"`
	Verification Verification `json:"verification"`
}

type SubmitActionResponse struct {
	ActionID       string `json:"action_id"`
	CreditsEarned  int64  `json:"credits_earned"`
	NewBalance     int64  `json:"new_balance"`
	CampaignStatus string `json:"campaign_status"`
}

type ActionsResponse struct {
	Actions  []*Action            `json:"actions"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func (h *Handler) submitAction(c *gin.Context) {
	var req submitActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("body", err.Error()))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.PerformerID) {
		_ = c.Error(errutil.TooManyRequest("too many submissions, slow down", nil))
		return
	}

	actionType, ok := campaign.ParseActionType(req.ActionType)
	if !ok {
		_ = c.Error(ledgererr.InvalidArgument("action_type", "must be VIEW, LIKE, COMMENT or FOLLOW"))
		return
	}

	res, err := h.service.SubmitAction(c.Request.Context(), SubmitInput{
		PerformerID:  req.PerformerID,
		CampaignID:   req.CampaignID,
		ActionType:   actionType,
		Verification: req.Verification,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, SubmitActionResponse{
		ActionID:       res.Action.ID,
		CreditsEarned:  res.CreditsEarned,
		NewBalance:     res.NewBalance,
		CampaignStatus: string(res.CampaignStatus),
	})
}

func (h *Handler) listActions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("query", err.Error()))
		return
	}

	rows, info, err := h.service.ListActions(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ActionsResponse{Actions: rows, PageInfo: info})
}
