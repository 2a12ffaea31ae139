package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
)

// MOHandler 生产订单处理器
type MOHandler struct {
	svc          *service.MOService
	requirements *service.RequirementService
}

func NewMOHandler(svc *service.MOService, requirements *service.RequirementService) *MOHandler {
	return &MOHandler{svc: svc, requirements: requirements}
}

type approveMORequest struct {
	WarehouseID string `json:"warehouse_id"`
	// AutoProcure 缺料时自动生成采购需求
	AutoProcure bool `json:"auto_procure"`
}

type stageRequest struct {
	Notes string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type consumptionRequest struct {
	Items []service.ConsumptionInput `json:"items" binding:"required,dive"`
}

type priorityRequest struct {
	Priority entity.Priority `json:"priority" binding:"required"`
}

// approveMOResponse 审批结果，附带自动生成的需求
type approveMOResponse struct {
	*service.ApproveResult
	Requirements []entity.ProcurementRequirement `json:"requirements,omitempty"`
}

// List 生产订单列表
// GET /api/v1/mfg/manufacturing-orders?status=xxx&stage=xxx&priority=xxx&search=xxx
func (h *MOHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":     c.Query("status"),
		"stage":      c.Query("stage"),
		"priority":   c.Query("priority"),
		"subsidiary": c.Query("subsidiary"),
		"search":     c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取生产订单列表失败: "+err.Error())
		return
	}
	Success(c, listResponse(items, total, page, pageSize))
}

// Get 生产订单详情
// GET /api/v1/mfg/manufacturing-orders/:id
func (h *MOHandler) Get(c *gin.Context) {
	mo, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取生产订单失败", err)
		return
	}
	Success(c, mo)
}

// Availability 物料汇总库存
// GET /api/v1/mfg/manufacturing-orders/:id/availability
func (h *MOHandler) Availability(c *gin.Context) {
	rows, err := h.svc.CheckAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "查询物料库存失败", err)
		return
	}
	Success(c, rows)
}

// Create 设计交接创建生产订单
// POST /api/v1/mfg/manufacturing-orders
func (h *MOHandler) Create(c *gin.Context) {
	var req service.CreateMORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	mo, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "创建生产订单失败", err)
		return
	}
	Created(c, mo)
}

// Approve 直接审批（预留物料）；缺料时返回 success=false
// POST /api/v1/mfg/manufacturing-orders/:id/approve
func (h *MOHandler) Approve(c *gin.Context) {
	var req approveMORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	userID := GetUserID(c)
	result, err := h.svc.Approve(ctx, c.Param("id"), req.WarehouseID, userID)
	if err != nil {
		ServiceError(c, "审批生产订单失败", err)
		return
	}

	resp := approveMOResponse{ApproveResult: result}
	if !result.Success && req.AutoProcure {
		reqs, err := h.requirements.GenerateFromShortages(ctx, result.MO.ID, userID, result.Shortages)
		if err != nil {
			ServiceError(c, "生成采购需求失败", err)
			return
		}
		resp.Requirements = reqs
	}
	Success(c, resp)
}

// StartProduction 开始生产
// POST /api/v1/mfg/manufacturing-orders/:id/start
func (h *MOHandler) StartProduction(c *gin.Context) {
	mo, err := h.svc.StartProduction(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "开始生产失败", err)
		return
	}
	Success(c, mo)
}

// AdvanceStage 推进工序
// POST /api/v1/mfg/manufacturing-orders/:id/advance
func (h *MOHandler) AdvanceStage(c *gin.Context) {
	var req stageRequest
	_ = c.ShouldBindJSON(&req)

	mo, err := h.svc.AdvanceStage(c.Request.Context(), c.Param("id"), GetUserID(c), req.Notes)
	if err != nil {
		ServiceError(c, "推进工序失败", err)
		return
	}
	Success(c, mo)
}

// RecordConsumption 记录物料消耗
// POST /api/v1/mfg/manufacturing-orders/:id/consumptions
func (h *MOHandler) RecordConsumption(c *gin.Context) {
	var req consumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	mo, err := h.svc.RecordConsumption(c.Request.Context(), c.Param("id"), GetUserID(c), req.Items)
	if err != nil {
		ServiceError(c, "记录消耗失败", err)
		return
	}
	Success(c, mo)
}

// RecordQualityCheck 记录质检
// POST /api/v1/mfg/manufacturing-orders/:id/quality-check
func (h *MOHandler) RecordQualityCheck(c *gin.Context) {
	var req service.QualityCheckInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	mo, err := h.svc.RecordQualityCheck(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, "记录质检失败", err)
		return
	}
	Success(c, mo)
}

// Hold 暂停
// POST /api/v1/mfg/manufacturing-orders/:id/hold
func (h *MOHandler) Hold(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	mo, err := h.svc.Hold(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		ServiceError(c, "暂停失败", err)
		return
	}
	Success(c, mo)
}

// Resume 恢复生产
// POST /api/v1/mfg/manufacturing-orders/:id/resume
func (h *MOHandler) Resume(c *gin.Context) {
	mo, err := h.svc.Resume(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "恢复失败", err)
		return
	}
	Success(c, mo)
}

// Cancel 取消并释放预留
// POST /api/v1/mfg/manufacturing-orders/:id/cancel
func (h *MOHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		ServiceError(c, "取消失败", err)
		return
	}
	Success(c, result)
}

// Reprioritize 调整优先级
// PUT /api/v1/mfg/manufacturing-orders/:id/priority
func (h *MOHandler) Reprioritize(c *gin.Context) {
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	mo, err := h.svc.Reprioritize(c.Request.Context(), c.Param("id"), GetUserID(c), req.Priority)
	if err != nil {
		ServiceError(c, "调整优先级失败", err)
		return
	}
	Success(c, mo)
}
