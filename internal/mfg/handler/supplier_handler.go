package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
)

// SupplierHandler 供应商目录处理器
type SupplierHandler struct {
	svc *service.SupplierService
}

func NewSupplierHandler(svc *service.SupplierService) *SupplierHandler {
	return &SupplierHandler{svc: svc}
}

// Search 搜索启用的供应商
// GET /api/v1/mfg/suppliers?search=xxx&subsidiary=xxx
func (h *SupplierHandler) Search(c *gin.Context) {
	items, err := h.svc.SearchActive(c.Request.Context(), c.Query("search"), c.Query("subsidiary"))
	if err != nil {
		InternalError(c, "获取供应商列表失败: "+err.Error())
		return
	}
	Success(c, items)
}

// Get GET /api/v1/mfg/suppliers/:id
func (h *SupplierHandler) Get(c *gin.Context) {
	item, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取供应商失败", err)
		return
	}
	Success(c, item)
}

// Create POST /api/v1/mfg/suppliers
func (h *SupplierHandler) Create(c *gin.Context) {
	var req service.CreateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		ServiceError(c, "创建供应商失败", err)
		return
	}
	Created(c, item)
}

// ActivityHandler 操作记录处理器
type ActivityHandler struct {
	svc *service.ActivityService
}

func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{svc: svc}
}

// List GET /api/v1/mfg/activity/:entityType/:entityId
func (h *ActivityHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListByEntity(c.Request.Context(), c.Param("entityType"), c.Param("entityId"), page, pageSize)
	if err != nil {
		InternalError(c, "获取操作记录失败: "+err.Error())
		return
	}
	Success(c, listResponse(items, total, page, pageSize))
}
