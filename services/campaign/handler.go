package campaign

import (
	"net/http"

	"engagement-ledger/services/ledgererr"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1/campaigns")
	v1.POST("", h.createCampaign)
	v1.GET("/:id", h.getCampaign)
	v1.POST("/:id/status", h.setStatus)
	v1.POST("/:id/cancel", h.cancelCampaign)
}

type createCampaignRequest struct {
	OwnerID          string `json:"owner_id" binding:"required"`
	Kind             string `json:"kind"`
	ActionType       string `json:"action_type"`
	CreditsPerAction int64  `json:"credits_per_action"`
	TargetCount      int64  `json:"target_count"`
	TargetRef        string `json:"target_ref"`
}

type setStatusRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

type cancelRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

type CancelResponse struct {
	CampaignID string `json:"campaign_id"`
	Refunded   int64  `json:"refunded"`
}

func (h *Handler) createCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("body", err.Error()))
		return
	}

	var actionType ActionType
	if req.ActionType != "" {
		t, ok := ParseActionType(req.ActionType)
		if !ok {
			_ = c.Error(ledgererr.InvalidArgument("action_type", "must be VIEW, LIKE, COMMENT or FOLLOW"))
			return
		}
		actionType = t
	}

	out, err := h.service.CreateCampaign(c.Request.Context(), CreateInput{
		OwnerID:          req.OwnerID,
		Kind:             Kind(req.Kind),
		ActionType:       actionType,
		CreditsPerAction: req.CreditsPerAction,
		TargetCount:      req.TargetCount,
		TargetRef:        req.TargetRef,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) getCampaign(c *gin.Context) {
	out, err := h.service.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) setStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("body", err.Error()))
		return
	}

	out, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.OwnerID, Status(req.Status))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) cancelCampaign(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ledgererr.InvalidArgument("body", err.Error()))
		return
	}

	refunded, err := h.service.CancelWithRefund(c.Request.Context(), c.Param("id"), req.OwnerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, CancelResponse{CampaignID: c.Param("id"), Refunded: refunded})
}
