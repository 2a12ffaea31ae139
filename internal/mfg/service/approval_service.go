package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
	"go.uber.org/zap"
)

// AdminRole 可代任意层级审批
const AdminRole = "mfg_admin"

func floatPtr(v float64) *float64 { return &v }

// DefaultThresholds 未配置审批区间文件时使用
func DefaultThresholds() []entity.ApprovalThreshold {
	manager := entity.ApprovalLevelConfig{
		Level: 1, Name: "Production Manager", RequiredRole: "production_manager", SLAHours: 24,
		Skippable: true, SkipPriorities: []entity.Priority{entity.PriorityUrgent},
	}
	director := entity.ApprovalLevelConfig{
		Level: 2, Name: "Operations Director", RequiredRole: "operations_director", SLAHours: 48,
	}
	finance := entity.ApprovalLevelConfig{
		Level: 3, Name: "Finance Director", RequiredRole: "finance_director", SLAHours: 72,
	}
	return []entity.ApprovalThreshold{
		{Name: "standard", MinAmount: 0, MaxAmount: floatPtr(10000), Levels: []entity.ApprovalLevelConfig{manager}},
		{Name: "elevated", MinAmount: 10000, MaxAmount: floatPtr(50000), Levels: []entity.ApprovalLevelConfig{manager, director}},
		{Name: "major", MinAmount: 50000, Levels: []entity.ApprovalLevelConfig{manager, director, finance}},
	}
}

// SelectThreshold 取包含金额的第一个区间
func SelectThreshold(thresholds []entity.ApprovalThreshold, amount float64) (*entity.ApprovalThreshold, bool) {
	for i := range thresholds {
		if thresholds[i].Contains(amount) {
			return &thresholds[i], true
		}
	}
	return nil, false
}

// ApprovalService 生产订单多级审批与SLA升级
type ApprovalService struct {
	approvals  ApprovalStore
	mos        *MOService
	thresholds []entity.ApprovalThreshold
	currency   string
	logger     *zap.Logger
	now        func() time.Time
	emitter
}

func NewApprovalService(approvals ApprovalStore, mos *MOService, thresholds []entity.ApprovalThreshold, currency string, events EventSink, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds()
	}
	return &ApprovalService{
		approvals:  approvals,
		mos:        mos,
		thresholds: thresholds,
		currency:   currency,
		logger:     logger,
		now:        time.Now,
		emitter:    emitter{sink: events, logger: logger},
	}
}

// ApprovalOutcome 审批操作结果；审批链完成时附带MO审批（物料预留）结果
type ApprovalOutcome struct {
	Request  *entity.ApprovalRequest `json:"request"`
	MOResult *ApproveResult          `json:"mo_result,omitempty"`
}

// EscalatedItem 被升级的审批层级
type EscalatedItem struct {
	RequestID    string    `json:"request_id"`
	MONumber     string    `json:"mo_number"`
	Level        int       `json:"level"`
	RequiredRole string    `json:"required_role"`
	SLADueAt     time.Time `json:"sla_due_at"`
	OverdueHours float64   `json:"overdue_hours"`
}

// EscalationReport SLA巡检结果
type EscalationReport struct {
	Checked   int             `json:"checked"`
	Escalated []EscalatedItem `json:"escalated"`
	Failed    int             `json:"failed"`
}

func hasRole(roles []string, required string) bool {
	for _, r := range roles {
		if r == required || r == AdminRole {
			return true
		}
	}
	return false
}

func (s *ApprovalService) Get(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	req, err := s.approvals.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "approval request "+id)
	}
	return req, nil
}

// ListOpen 进行中的审批单；指定角色时只返回当前层级需要该角色的
func (s *ApprovalService) ListOpen(ctx context.Context, role string) ([]entity.ApprovalRequest, error) {
	open, err := s.approvals.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open approvals: %w", err)
	}
	if role == "" {
		return open, nil
	}
	out := []entity.ApprovalRequest{}
	for i := range open {
		if cur := open[i].Current(); cur != nil && (cur.RequiredRole == role || role == AdminRole) {
			out = append(out, open[i])
		}
	}
	return out, nil
}

// Submit 按MO总成本选择审批区间并生成审批链。
// 可跳过的层级按优先级预先标记为跳过；全部跳过时直接通过并执行MO审批。
func (s *ApprovalService) Submit(ctx context.Context, moID, warehouseID, userID string) (*ApprovalOutcome, error) {
	if warehouseID == "" {
		return nil, validation("warehouse is required")
	}
	mo, err := s.mos.Get(ctx, moID)
	if err != nil {
		return nil, err
	}
	if mo.Status != entity.MOStatusDraft {
		return nil, invalidState("MO %s is %s, only draft orders go through approval", mo.MONumber, mo.Status)
	}
	existing, err := s.approvals.FindOpenByMO(ctx, mo.ID)
	if err == nil {
		return nil, invalidState("MO %s already has open approval request %s", mo.MONumber, existing.ID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find open approval: %w", err)
	}

	amount := mo.CostSummary.TotalCost
	threshold, ok := SelectThreshold(s.thresholds, amount)
	if !ok {
		return nil, validation("no approval threshold covers amount %.2f", amount)
	}

	now := s.now()
	chain := make([]entity.ApprovalLevel, 0, len(threshold.Levels))
	for _, lc := range threshold.Levels {
		status := entity.LevelPending
		if lc.SkipsFor(mo.Priority) {
			status = entity.LevelSkipped
		}
		chain = append(chain, entity.ApprovalLevel{
			Level:        lc.Level,
			Name:         lc.Name,
			RequiredRole: lc.RequiredRole,
			Status:       status,
			SLAHours:     lc.SLAHours,
			SLADueAt:     now.Add(time.Duration(lc.SLAHours) * time.Hour),
		})
	}

	req := &entity.ApprovalRequest{
		ID:            newID(),
		MOID:          mo.ID,
		MONumber:      mo.MONumber,
		WarehouseID:   warehouseID,
		Amount:        amount,
		Currency:      s.currency,
		ThresholdName: threshold.Name,
		Priority:      mo.Priority,
		Status:        entity.ApprovalPending,
		ApprovalChain: chain,
		RequestedBy:   userID,
	}
	req.CurrentLevel = req.NextPendingAfter(-1)
	if req.CurrentLevel < 0 {
		req.Status = entity.ApprovalApproved
		req.ResolvedAt = &now
	}
	if err := s.approvals.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	s.emit(ctx, Event{
		Type: "approval.submitted", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
		Metadata: map[string]interface{}{
			"request_id": req.ID, "threshold": threshold.Name, "amount": amount, "levels": len(chain),
		},
	})

	out := &ApprovalOutcome{Request: req}
	if req.Status == entity.ApprovalApproved {
		res, err := s.applyToMO(ctx, req, userID)
		out.MOResult = res
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// loadActionable 读取进行中的审批单及其当前层级
func (s *ApprovalService) loadActionable(ctx context.Context, id string) (*entity.ApprovalRequest, *entity.ApprovalLevel, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !req.Status.IsOpen() {
		return nil, nil, invalidState("approval request %s is %s", id, req.Status)
	}
	cur := req.Current()
	if cur == nil || !cur.Status.Actionable() {
		return nil, nil, invalidState("approval request %s has no actionable level", id)
	}
	return req, cur, nil
}

// ApproveLevel 通过当前层级；没有后续待处理层级时审批单通过并执行MO审批
func (s *ApprovalService) ApproveLevel(ctx context.Context, id, userID string, roles []string, comments string) (*ApprovalOutcome, error) {
	req, cur, err := s.loadActionable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasRole(roles, cur.RequiredRole) {
		return nil, fmt.Errorf("%w: level %d requires role %s", ErrForbidden, cur.Level, cur.RequiredRole)
	}

	now := s.now()
	cur.Status = entity.LevelApproved
	cur.ApproverID = userID
	cur.Comments = comments
	cur.DecidedAt = &now
	level := cur.Level

	next := req.NextPendingAfter(req.CurrentLevel)
	if next < 0 {
		req.Status = entity.ApprovalApproved
		req.ResolvedAt = &now
	} else {
		req.CurrentLevel = next
		req.Status = entity.ApprovalPending
	}
	if err := s.approvals.Update(ctx, req); err != nil {
		return nil, storeErr(err, "approve request "+req.ID)
	}

	s.emit(ctx, Event{
		Type: "approval.level_approved", EntityType: "mo", EntityID: req.MOID, EntityCode: req.MONumber, UserID: userID,
		Message:  comments,
		Metadata: map[string]interface{}{"request_id": req.ID, "level": level, "final": next < 0},
	})

	out := &ApprovalOutcome{Request: req}
	if req.Status == entity.ApprovalApproved {
		res, err := s.applyToMO(ctx, req, userID)
		out.MOResult = res
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// applyToMO 审批单通过后审批MO；版本冲突时重试，结果记录在审批单上
func (s *ApprovalService) applyToMO(ctx context.Context, req *entity.ApprovalRequest, userID string) (*ApproveResult, error) {
	var (
		res *ApproveResult
		err error
	)
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		res, err = s.mos.Approve(ctx, req.MOID, req.WarehouseID, userID)
		if !errors.Is(err, ErrConflict) {
			break
		}
	}

	switch {
	case err != nil:
		req.MOOutcome = entity.MOOutcomeFailed
		req.MOOutcomeNote = err.Error()
		err = fmt.Errorf("approve MO %s: %w", req.MONumber, err)
	case !res.Success:
		req.MOOutcome = entity.MOOutcomeShortage
		req.MOOutcomeNote = fmt.Sprintf("%d material shortage(s)", len(res.Shortages))
	default:
		req.MOOutcome = entity.MOOutcomeApproved
		req.MOOutcomeNote = ""
	}
	if saveErr := s.approvals.Update(ctx, req); saveErr != nil {
		s.logger.Warn("record MO outcome on approval request failed",
			zap.String("request_id", req.ID),
			zap.String("mo", req.MONumber),
			zap.String("outcome", string(req.MOOutcome)),
			zap.Error(saveErr))
	}
	if req.MOOutcome == entity.MOOutcomeFailed {
		s.emit(ctx, Event{
			Type: "approval.mo_apply_failed", EntityType: "mo", EntityID: req.MOID, EntityCode: req.MONumber, UserID: userID,
			Severity: entity.SeverityHigh, Message: req.MOOutcomeNote,
			Metadata: map[string]interface{}{"request_id": req.ID},
		})
	}
	return res, err
}

// ApplyToMO 对已通过但MO未审批成功（缺料或失败）的审批单重新审批MO
func (s *ApprovalService) ApplyToMO(ctx context.Context, id, userID string) (*ApprovalOutcome, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != entity.ApprovalApproved {
		return nil, invalidState("approval request %s is %s", id, req.Status)
	}
	if req.MOOutcome == entity.MOOutcomeApproved {
		return nil, invalidState("MO %s already approved by request %s", req.MONumber, id)
	}
	out := &ApprovalOutcome{Request: req}
	res, err := s.applyToMO(ctx, req, userID)
	out.MOResult = res
	if err != nil {
		return out, err
	}
	return out, nil
}

// Reject 驳回当前层级，审批单结束，MO保持草稿
func (s *ApprovalService) Reject(ctx context.Context, id, userID string, roles []string, comments string) (*entity.ApprovalRequest, error) {
	req, cur, err := s.loadActionable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasRole(roles, cur.RequiredRole) {
		return nil, fmt.Errorf("%w: level %d requires role %s", ErrForbidden, cur.Level, cur.RequiredRole)
	}

	now := s.now()
	cur.Status = entity.LevelRejected
	cur.ApproverID = userID
	cur.Comments = comments
	cur.DecidedAt = &now
	req.Status = entity.ApprovalRejected
	req.ResolvedAt = &now
	if err := s.approvals.Update(ctx, req); err != nil {
		return nil, storeErr(err, "reject request "+req.ID)
	}

	s.emit(ctx, Event{
		Type: "approval.rejected", EntityType: "mo", EntityID: req.MOID, EntityCode: req.MONumber, UserID: userID,
		Severity: entity.SeverityWarning, Message: comments,
		Metadata: map[string]interface{}{"request_id": req.ID, "level": cur.Level},
	})
	return req, nil
}

// Escalate 手动升级当前层级，需持有该层级角色；已升级的层级重复调用不做任何修改
func (s *ApprovalService) Escalate(ctx context.Context, id, userID string, roles []string, reason string) (*entity.ApprovalRequest, error) {
	req, cur, err := s.loadActionable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasRole(roles, cur.RequiredRole) {
		return nil, fmt.Errorf("%w: level %d requires role %s", ErrForbidden, cur.Level, cur.RequiredRole)
	}
	if cur.Status == entity.LevelEscalated {
		return req, nil
	}
	s.markEscalated(req, cur, reason)
	if err := s.approvals.Update(ctx, req); err != nil {
		return nil, storeErr(err, "escalate request "+req.ID)
	}
	s.emitEscalated(ctx, req, cur, userID)
	return req, nil
}

func (s *ApprovalService) markEscalated(req *entity.ApprovalRequest, cur *entity.ApprovalLevel, reason string) {
	now := s.now()
	cur.Status = entity.LevelEscalated
	cur.EscalatedAt = &now
	cur.EscalationReason = reason
	req.Status = entity.ApprovalEscalated
}

func (s *ApprovalService) emitEscalated(ctx context.Context, req *entity.ApprovalRequest, cur *entity.ApprovalLevel, userID string) {
	s.emit(ctx, Event{
		Type: "approval.escalated", EntityType: "mo", EntityID: req.MOID, EntityCode: req.MONumber, UserID: userID,
		Severity: entity.SeverityHigh,
		Message:  fmt.Sprintf("Level %d (%s): %s", cur.Level, cur.RequiredRole, cur.EscalationReason),
		Metadata: map[string]interface{}{"request_id": req.ID, "level": cur.Level, "sla_due_at": cur.SLADueAt},
	})
}

// CheckAndEscalateOverdueApprovals 巡检所有进行中审批单的当前层级，超过SLA的标记为升级。
// 已升级的层级跳过，可由定时任务反复执行。
func (s *ApprovalService) CheckAndEscalateOverdueApprovals(ctx context.Context) (*EscalationReport, error) {
	open, err := s.approvals.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open approvals: %w", err)
	}
	now := s.now()
	report := &EscalationReport{Checked: len(open), Escalated: []EscalatedItem{}}
	for i := range open {
		req := &open[i]
		cur := req.Current()
		if cur == nil || cur.Status != entity.LevelPending || !now.After(cur.SLADueAt) {
			continue
		}
		overdue := now.Sub(cur.SLADueAt)
		s.markEscalated(req, cur, fmt.Sprintf("SLA of %dh exceeded", cur.SLAHours))
		if err := s.approvals.Update(ctx, req); err != nil {
			s.logger.Warn("escalate overdue approval failed",
				zap.String("request_id", req.ID),
				zap.String("mo", req.MONumber),
				zap.Error(err))
			report.Failed++
			continue
		}
		s.emitEscalated(ctx, req, cur, "system")
		report.Escalated = append(report.Escalated, EscalatedItem{
			RequestID:    req.ID,
			MONumber:     req.MONumber,
			Level:        cur.Level,
			RequiredRole: cur.RequiredRole,
			SLADueAt:     cur.SLADueAt,
			OverdueHours: dec(overdue.Hours()).Round(1).InexactFloat64(),
		})
	}
	if len(report.Escalated) > 0 {
		s.logger.Info("overdue approvals escalated", zap.Int("count", len(report.Escalated)))
	}
	return report, nil
}
