package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// POHandler 采购订单处理器
type POHandler struct {
	svc *service.POService
}

func NewPOHandler(svc *service.POService) *POHandler {
	return &POHandler{svc: svc}
}

type poNotesRequest struct {
	Notes string `json:"notes"`
}

// List 采购订单列表
// GET /api/v1/mfg/purchase-orders?supplier_id=xxx&status=xxx&search=xxx
func (h *POHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"supplier_id": c.Query("supplier_id"),
		"status":      c.Query("status"),
		"search":      c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取采购订单列表失败: "+err.Error())
		return
	}
	Success(c, listResponse(items, total, page, pageSize))
}

// Get 采购订单详情
// GET /api/v1/mfg/purchase-orders/:id
func (h *POHandler) Get(c *gin.Context) {
	po, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取采购订单失败", err)
		return
	}
	Success(c, po)
}

// Create 创建采购订单
// POST /api/v1/mfg/purchase-orders
func (h *POHandler) Create(c *gin.Context) {
	var req service.CreatePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	po, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "创建采购订单失败", err)
		return
	}
	Created(c, po)
}

// Update 修改草稿或被驳回的采购订单
// PUT /api/v1/mfg/purchase-orders/:id
func (h *POHandler) Update(c *gin.Context) {
	var req service.UpdatePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	po, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "更新采购订单失败", err)
		return
	}
	Success(c, po)
}

// Submit 提交审批
// POST /api/v1/mfg/purchase-orders/:id/submit
func (h *POHandler) Submit(c *gin.Context) {
	po, err := h.svc.Submit(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "提交失败", err)
		return
	}
	Success(c, po)
}

// Approve 审批通过
// POST /api/v1/mfg/purchase-orders/:id/approve
func (h *POHandler) Approve(c *gin.Context) {
	var req poNotesRequest
	_ = c.ShouldBindJSON(&req)

	po, err := h.svc.Approve(c.Request.Context(), c.Param("id"), GetUserID(c), req.Notes)
	if err != nil {
		ServiceError(c, "审批失败", err)
		return
	}
	Success(c, po)
}

// Reject 驳回
// POST /api/v1/mfg/purchase-orders/:id/reject
func (h *POHandler) Reject(c *gin.Context) {
	var req poNotesRequest
	_ = c.ShouldBindJSON(&req)

	po, err := h.svc.Reject(c.Request.Context(), c.Param("id"), GetUserID(c), req.Notes)
	if err != nil {
		ServiceError(c, "驳回失败", err)
		return
	}
	Success(c, po)
}

// MarkAsSent 已发给供应商
// POST /api/v1/mfg/purchase-orders/:id/send
func (h *POHandler) MarkAsSent(c *gin.Context) {
	po, err := h.svc.MarkAsSent(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "发送失败", err)
		return
	}
	Success(c, po)
}

// ReceiveGoods 收货入库
// POST /api/v1/mfg/purchase-orders/:id/receive
func (h *POHandler) ReceiveGoods(c *gin.Context) {
	var req service.ReceiveGoodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.ReceiveGoods(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "收货失败", err)
		return
	}
	Success(c, result)
}

// Close 关闭
// POST /api/v1/mfg/purchase-orders/:id/close
func (h *POHandler) Close(c *gin.Context) {
	po, err := h.svc.Close(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "关闭失败", err)
		return
	}
	Success(c, po)
}

// Cancel 取消
// POST /api/v1/mfg/purchase-orders/:id/cancel
func (h *POHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	po, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		ServiceError(c, "取消失败", err)
		return
	}
	Success(c, po)
}

// Export 导出采购订单Excel
// GET /api/v1/mfg/purchase-orders/:id/export
func (h *POHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportPO(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "导出失败", err)
		return
	}
	writeExcel(c, f, filename)
}

func writeExcel(c *gin.Context, f *excelize.File, filename string) {
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
