package handler

import (
	"strconv"

	"payment-webhook-queue/internal/adapter/http/dto"
	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the operator endpoints under /api/v1/admin.
type AdminHandler struct {
	adminSvc      ports.AdminService
	cleanupSvc    ports.CleanupService
	dispatcher    ports.EventDispatcher
	retentionDays int
}

// NewAdminHandler creates a new AdminHandler. retentionDays is used when a
// cleanup request omits days.
func NewAdminHandler(adminSvc ports.AdminService, cleanupSvc ports.CleanupService, dispatcher ports.EventDispatcher, retentionDays int) *AdminHandler {
	return &AdminHandler{
		adminSvc:      adminSvc,
		cleanupSvc:    cleanupSvc,
		dispatcher:    dispatcher,
		retentionDays: retentionDays,
	}
}

// Login handles POST /api/v1/admin/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	token, expiry, err := h.adminSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// Stats handles GET /api/v1/admin/webhooks/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminSvc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// ListWebhooks handles GET /api/v1/admin/webhooks.
func (h *AdminHandler) ListWebhooks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		response.Error(c, apperror.Validation("limit must be an integer"))
		return
	}

	entries, err := h.adminSvc.Recent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// Cleanup handles POST /api/v1/admin/webhooks/cleanup.
func (h *AdminHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	days := h.retentionDays
	if req.Days != nil {
		days = *req.Days
	}

	resp := dto.CleanupResponse{Bucket: req.Bucket, Days: days}
	switch domain.CleanupBucket(req.Bucket) {
	case domain.CleanupBucketProcessed:
		n, err := h.cleanupSvc.CleanupProcessed(c.Request.Context(), days)
		if err != nil {
			response.Error(c, err)
			return
		}
		resp.Affected = n
	default:
		res, err := h.cleanupSvc.CleanupUnprocessed(c.Request.Context(), days)
		if err != nil {
			response.Error(c, err)
			return
		}
		resp.Policy = string(res.Policy)
		resp.Affected = res.Affected
	}

	response.OK(c, resp)
}

// Dispatch handles POST /api/v1/admin/webhooks/dispatch by running one
// unscoped pass.
func (h *AdminHandler) Dispatch(c *gin.Context) {
	res, err := h.dispatcher.RunPass(c.Request.Context(), ports.ClaimFilter{})
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	response.OK(c, res)
}

// GetOrder handles GET /api/v1/admin/orders/:id.
func (h *AdminHandler) GetOrder(c *gin.Context) {
	view, err := h.adminSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}
