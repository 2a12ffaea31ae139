package handler

import (
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ApprovalHandler 多级审批处理器
type ApprovalHandler struct {
	svc    *service.ApprovalService
	logger *zap.Logger
}

func NewApprovalHandler(svc *service.ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{svc: svc, logger: logger}
}

type submitApprovalRequest struct {
	WarehouseID string `json:"warehouse_id" binding:"required"`
}

type approvalActionRequest struct {
	Comments string `json:"comments"`
}

// Submit 提交MO审批
// POST /api/v1/mfg/manufacturing-orders/:id/approval
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req submitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	outcome, err := h.svc.Submit(c.Request.Context(), c.Param("id"), req.WarehouseID, GetUserID(c))
	if err != nil {
		ServiceError(c, "提交审批失败", err)
		return
	}
	Created(c, outcome)
}

// ListOpen 待审批列表，role 为空时返回全部
// GET /api/v1/mfg/approvals?role=xxx
func (h *ApprovalHandler) ListOpen(c *gin.Context) {
	items, err := h.svc.ListOpen(c.Request.Context(), c.Query("role"))
	if err != nil {
		InternalError(c, "获取审批列表失败: "+err.Error())
		return
	}
	Success(c, items)
}

// Get GET /api/v1/mfg/approvals/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, "获取审批单失败", err)
		return
	}
	Success(c, req)
}

// Approve 通过当前层级
// POST /api/v1/mfg/approvals/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req approvalActionRequest
	_ = c.ShouldBindJSON(&req)

	outcome, err := h.svc.ApproveLevel(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), req.Comments)
	if err != nil {
		ServiceError(c, "审批失败", err)
		return
	}
	Success(c, outcome)
}

// Reject 驳回当前层级
// POST /api/v1/mfg/approvals/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req approvalActionRequest
	_ = c.ShouldBindJSON(&req)

	item, err := h.svc.Reject(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), req.Comments)
	if err != nil {
		ServiceError(c, "驳回失败", err)
		return
	}
	Success(c, item)
}

// Escalate 手动升级
// POST /api/v1/mfg/approvals/:id/escalate
func (h *ApprovalHandler) Escalate(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	item, err := h.svc.Escalate(c.Request.Context(), c.Param("id"), GetUserID(c), GetRoles(c), req.Reason)
	if err != nil {
		ServiceError(c, "升级失败", err)
		return
	}
	Success(c, item)
}

// ApplyToMO 审批已通过但MO未审批成功时重新审批MO
// POST /api/v1/mfg/approvals/:id/apply
func (h *ApprovalHandler) ApplyToMO(c *gin.Context) {
	out, err := h.svc.ApplyToMO(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, "审批生产订单失败", err)
		return
	}
	Success(c, out)
}

// EscalateOverdue 立即执行一次SLA巡检
// POST /api/v1/mfg/approvals/escalate-overdue
func (h *ApprovalHandler) EscalateOverdue(c *gin.Context) {
	report, err := h.svc.CheckAndEscalateOverdueApprovals(c.Request.Context())
	if err != nil {
		InternalError(c, "SLA巡检失败: "+err.Error())
		return
	}
	h.logger.Info("manual SLA sweep",
		zap.String("user_id", GetUserID(c)),
		zap.Int("checked", report.Checked),
		zap.Int("escalated", len(report.Escalated)))
	Success(c, report)
}
