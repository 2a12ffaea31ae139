package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
)

// RequirementHandler 采购需求处理器
type RequirementHandler struct {
	svc *service.RequirementService
}

func NewRequirementHandler(svc *service.RequirementService) *RequirementHandler {
	return &RequirementHandler{svc: svc}
}

// Get GET /api/v1/mfg/requirements/:id
func (h *RequirementHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取采购需求失败", err)
		return
	}
	Success(c, req)
}

// ListByMO GET /api/v1/mfg/manufacturing-orders/:id/requirements
func (h *RequirementHandler) ListByMO(c *gin.Context) {
	items, err := h.svc.ListByMO(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取采购需求失败", err)
		return
	}
	Success(c, items)
}

// GenerateFromMO 为外购BOM行生成采购需求
// POST /api/v1/mfg/manufacturing-orders/:id/requirements/generate
func (h *RequirementHandler) GenerateFromMO(c *gin.Context) {
	items, err := h.svc.GenerateFromMO(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "生成采购需求失败", err)
		return
	}
	Created(c, items)
}

// Consolidate 合并需求生成采购订单
// POST /api/v1/mfg/requirements/consolidate
func (h *RequirementHandler) Consolidate(c *gin.Context) {
	var req service.ConsolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Consolidate(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "合并采购失败", err)
		return
	}
	Created(c, result)
}

// GroupPendingBySupplier GET /api/v1/mfg/requirements/pending-by-supplier
func (h *RequirementHandler) GroupPendingBySupplier(c *gin.Context) {
	groups, err := h.svc.GroupPendingBySupplier(c.Request.Context())
	if err != nil {
		InternalError(c, "获取待采购需求失败: "+err.Error())
		return
	}
	Success(c, groups)
}

// SmartCandidates 同供应商可合并的其他MO
// GET /api/v1/mfg/manufacturing-orders/:id/consolidation-candidates?supplier_id=xxx
func (h *RequirementHandler) SmartCandidates(c *gin.Context) {
	supplierID := c.Query("supplier_id")
	if supplierID == "" {
		BadRequest(c, "supplier_id 不能为空")
		return
	}
	items, err := h.svc.SmartConsolidationCandidates(c.Request.Context(), supplierID, c.Param("id"))
	if err != nil {
		ServiceError(c, "获取合单建议失败", err)
		return
	}
	Success(c, items)
}

// Cancel POST /api/v1/mfg/requirements/:id/cancel
func (h *RequirementHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	item, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		ServiceError(c, "取消采购需求失败", err)
		return
	}
	Success(c, item)
}
