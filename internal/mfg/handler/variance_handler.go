package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
)

// VarianceHandler 工时与成本差异处理器
type VarianceHandler struct {
	svc *service.CostVarianceService
}

func NewVarianceHandler(svc *service.CostVarianceService) *VarianceHandler {
	return &VarianceHandler{svc: svc}
}

// RecordLabor POST /api/v1/mfg/manufacturing-orders/:id/labor
func (h *VarianceHandler) RecordLabor(c *gin.Context) {
	var req service.LaborInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.svc.RecordLabor(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "登记工时失败", err)
		return
	}
	Created(c, entry)
}

// ListLabor GET /api/v1/mfg/manufacturing-orders/:id/labor
func (h *VarianceHandler) ListLabor(c *gin.Context) {
	entries, err := h.svc.ListLabor(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取工时失败: "+err.Error())
		return
	}
	Success(c, entries)
}

// Calculate 重新计算成本差异
// POST /api/v1/mfg/manufacturing-orders/:id/cost-variance
func (h *VarianceHandler) Calculate(c *gin.Context) {
	rec, err := h.svc.Calculate(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "计算成本差异失败", err)
		return
	}
	Success(c, rec)
}

// Get GET /api/v1/mfg/manufacturing-orders/:id/cost-variance
func (h *VarianceHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取成本差异失败", err)
		return
	}
	Success(c, rec)
}

// Export GET /api/v1/mfg/manufacturing-orders/:id/cost-variance/export
func (h *VarianceHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportVariance(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "导出失败", err)
		return
	}
	writeExcel(c, f, filename)
}
