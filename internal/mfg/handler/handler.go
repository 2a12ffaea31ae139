package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/bitfantasy/nimo-mfg/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 生产采购处理器集合
type Handlers struct {
	MO          *MOHandler
	PO          *POHandler
	Requirement *RequirementHandler
	Approval    *ApprovalHandler
	Bulk        *BulkHandler
	Variance    *VarianceHandler
	Supplier    *SupplierHandler
	Activity    *ActivityHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		MO:          NewMOHandler(svc.MO, svc.Requirement),
		PO:          NewPOHandler(svc.PO),
		Requirement: NewRequirementHandler(svc.Requirement),
		Approval:    NewApprovalHandler(svc.Approval, logger.Named("approval")),
		Bulk:        NewBulkHandler(svc.Bulk),
		Variance:    NewVarianceHandler(svc.Variance),
		Supplier:    NewSupplierHandler(svc.Supplier),
		Activity:    NewActivityHandler(svc.Activity),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 业务码的前三位即HTTP状态码
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceError 按错误类别映射业务码
func ServiceError(c *gin.Context, prefix string, err error) {
	msg := prefix + ": " + err.Error()
	switch {
	case errors.Is(err, service.ErrNotFound):
		Error(c, 40400, msg)
	case errors.Is(err, service.ErrValidation):
		Error(c, 40000, msg)
	case errors.Is(err, service.ErrInvalidTransition):
		Error(c, 40901, msg)
	case errors.Is(err, service.ErrInvalidState):
		Error(c, 40900, msg)
	case errors.Is(err, service.ErrConflict):
		Error(c, 40902, msg)
	case errors.Is(err, service.ErrSupplierMismatch):
		Error(c, 42200, msg)
	case errors.Is(err, service.ErrForbidden):
		Error(c, 40300, msg)
	default:
		InternalError(c, msg)
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetRoles(c *gin.Context) []string {
	roles, _ := c.Get("roles")
	if r, ok := roles.([]string); ok {
		return r
	}
	return nil
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func listResponse(items interface{}, total int64, page, pageSize int) ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}

// PermBulk 批量操作权限
const PermBulk = "mfg:bulk"

// RegisterRoutes 注册路由，api 应已挂载认证中间件
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	mos := api.Group("/manufacturing-orders")
	{
		mos.GET("", h.MO.List)
		mos.POST("", h.MO.Create)
		mos.GET("/:id", h.MO.Get)
		mos.GET("/:id/availability", h.MO.Availability)
		mos.POST("/:id/approve", h.MO.Approve)
		mos.POST("/:id/start", h.MO.StartProduction)
		mos.POST("/:id/advance", h.MO.AdvanceStage)
		mos.POST("/:id/consumptions", h.MO.RecordConsumption)
		mos.POST("/:id/quality-check", h.MO.RecordQualityCheck)
		mos.POST("/:id/hold", h.MO.Hold)
		mos.POST("/:id/resume", h.MO.Resume)
		mos.POST("/:id/cancel", h.MO.Cancel)
		mos.PUT("/:id/priority", h.MO.Reprioritize)
		mos.GET("/:id/requirements", h.Requirement.ListByMO)
		mos.POST("/:id/requirements/generate", h.Requirement.GenerateFromMO)
		mos.GET("/:id/consolidation-candidates", h.Requirement.SmartCandidates)
		mos.POST("/:id/approval", h.Approval.Submit)
		mos.GET("/:id/labor", h.Variance.ListLabor)
		mos.POST("/:id/labor", h.Variance.RecordLabor)
		mos.GET("/:id/cost-variance", h.Variance.Get)
		mos.POST("/:id/cost-variance", h.Variance.Calculate)
		mos.GET("/:id/cost-variance/export", h.Variance.Export)
	}

	bulk := api.Group("/manufacturing-orders/bulk", middleware.RequirePermission(PermBulk))
	{
		bulk.POST("/approve", h.Bulk.Approve)
		bulk.POST("/advance", h.Bulk.AdvanceStage)
		bulk.POST("/hold", h.Bulk.Hold)
		bulk.POST("/resume", h.Bulk.Resume)
		bulk.POST("/cancel", h.Bulk.Cancel)
		bulk.POST("/priority", h.Bulk.Reprioritize)
	}

	pos := api.Group("/purchase-orders")
	{
		pos.GET("", h.PO.List)
		pos.POST("", h.PO.Create)
		pos.GET("/:id", h.PO.Get)
		pos.PUT("/:id", h.PO.Update)
		pos.POST("/:id/submit", h.PO.Submit)
		pos.POST("/:id/approve", h.PO.Approve)
		pos.POST("/:id/reject", h.PO.Reject)
		pos.POST("/:id/send", h.PO.MarkAsSent)
		pos.POST("/:id/receive", h.PO.ReceiveGoods)
		pos.POST("/:id/close", h.PO.Close)
		pos.POST("/:id/cancel", h.PO.Cancel)
		pos.GET("/:id/export", h.PO.Export)
	}

	reqs := api.Group("/requirements")
	{
		reqs.GET("/pending-by-supplier", h.Requirement.GroupPendingBySupplier)
		reqs.POST("/consolidate", h.Requirement.Consolidate)
		reqs.GET("/:id", h.Requirement.Get)
		reqs.POST("/:id/cancel", h.Requirement.Cancel)
	}

	approvals := api.Group("/approvals")
	{
		approvals.GET("", h.Approval.ListOpen)
		approvals.POST("/escalate-overdue", middleware.RequireRole(middleware.AdminRole), h.Approval.EscalateOverdue)
		approvals.GET("/:id", h.Approval.Get)
		approvals.POST("/:id/approve", h.Approval.Approve)
		approvals.POST("/:id/reject", h.Approval.Reject)
		approvals.POST("/:id/escalate", h.Approval.Escalate)
		approvals.POST("/:id/apply", h.Approval.ApplyToMO)
	}

	suppliers := api.Group("/suppliers")
	{
		suppliers.GET("", h.Supplier.Search)
		suppliers.POST("", h.Supplier.Create)
		suppliers.GET("/:id", h.Supplier.Get)
	}

	api.GET("/activity/:entityType/:entityId", h.Activity.List)
}
