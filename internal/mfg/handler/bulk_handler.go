package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
)

// BulkHandler 批量操作处理器，单条失败不影响其他
type BulkHandler struct {
	svc *service.BulkService
}

func NewBulkHandler(svc *service.BulkService) *BulkHandler {
	return &BulkHandler{svc: svc}
}

type bulkRequest struct {
	IDs         []string        `json:"ids" binding:"required,min=1"`
	WarehouseID string          `json:"warehouse_id"`
	Notes       string          `json:"notes"`
	Reason      string          `json:"reason"`
	Priority    entity.Priority `json:"priority"`
}

func (h *BulkHandler) bind(c *gin.Context) (*bulkRequest, bool) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return nil, false
	}
	return &req, true
}

// Approve POST /api/v1/mfg/manufacturing-orders/bulk/approve
func (h *BulkHandler) Approve(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	Success(c, h.svc.BulkApprove(c.Request.Context(), req.IDs, req.WarehouseID, GetUserID(c)))
}

// AdvanceStage POST /api/v1/mfg/manufacturing-orders/bulk/advance
func (h *BulkHandler) AdvanceStage(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	Success(c, h.svc.BulkAdvanceStage(c.Request.Context(), req.IDs, GetUserID(c), req.Notes))
}

// Hold POST /api/v1/mfg/manufacturing-orders/bulk/hold
func (h *BulkHandler) Hold(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	Success(c, h.svc.BulkHold(c.Request.Context(), req.IDs, GetUserID(c), req.Reason))
}

// Resume POST /api/v1/mfg/manufacturing-orders/bulk/resume
func (h *BulkHandler) Resume(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	Success(c, h.svc.BulkResume(c.Request.Context(), req.IDs, GetUserID(c)))
}

// Cancel POST /api/v1/mfg/manufacturing-orders/bulk/cancel
func (h *BulkHandler) Cancel(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	Success(c, h.svc.BulkCancel(c.Request.Context(), req.IDs, GetUserID(c), req.Reason))
}

// Reprioritize POST /api/v1/mfg/manufacturing-orders/bulk/priority
func (h *BulkHandler) Reprioritize(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.Priority == "" {
		BadRequest(c, "priority 不能为空")
		return
	}
	Success(c, h.svc.BulkReprioritize(c.Request.Context(), req.IDs, GetUserID(c), req.Priority))
}
