package entity

import "time"

// ApprovalRequestStatus 审批单状态
type ApprovalRequestStatus string

const (
	ApprovalPending   ApprovalRequestStatus = "pending"
	ApprovalApproved  ApprovalRequestStatus = "approved"
	ApprovalRejected  ApprovalRequestStatus = "rejected"
	ApprovalEscalated ApprovalRequestStatus = "escalated"
)

// IsOpen 审批单仍可操作
func (s ApprovalRequestStatus) IsOpen() bool {
	return s == ApprovalPending || s == ApprovalEscalated
}

// MOOutcome 审批通过后对MO执行审批的结果
type MOOutcome string

const (
	MOOutcomeApproved MOOutcome = "approved"
	MOOutcomeShortage MOOutcome = "shortage"
	MOOutcomeFailed   MOOutcome = "failed"
)

// LevelStatus 审批层级状态
type LevelStatus string

const (
	LevelPending   LevelStatus = "pending"
	LevelApproved  LevelStatus = "approved"
	LevelRejected  LevelStatus = "rejected"
	LevelSkipped   LevelStatus = "skipped"
	LevelEscalated LevelStatus = "escalated"
)

// Actionable 待处理（含已升级）的层级可审批
func (s LevelStatus) Actionable() bool {
	return s == LevelPending || s == LevelEscalated
}

// ApprovalLevelConfig 审批层级配置
type ApprovalLevelConfig struct {
	Level          int        `json:"level" yaml:"level"`
	Name           string     `json:"name" yaml:"name"`
	RequiredRole   string     `json:"required_role" yaml:"required_role"`
	SLAHours       int        `json:"sla_hours" yaml:"sla_hours"`
	Skippable      bool       `json:"skippable" yaml:"skippable"`
	SkipPriorities []Priority `json:"skip_priorities,omitempty" yaml:"skip_priorities"`
}

// SkipsFor 可跳过层级在指定优先级下是否跳过
func (c ApprovalLevelConfig) SkipsFor(p Priority) bool {
	if !c.Skippable {
		return false
	}
	for _, sp := range c.SkipPriorities {
		if sp == p {
			return true
		}
	}
	return false
}

// ApprovalThreshold 金额区间 [MinAmount, MaxAmount)，MaxAmount 为空表示无上限
type ApprovalThreshold struct {
	Name      string                `json:"name" yaml:"name"`
	MinAmount float64               `json:"min_amount" yaml:"min_amount"`
	MaxAmount *float64              `json:"max_amount" yaml:"max_amount"`
	Levels    []ApprovalLevelConfig `json:"levels" yaml:"levels"`
}

// Contains 金额是否落在区间内
func (t ApprovalThreshold) Contains(amount float64) bool {
	if amount < t.MinAmount {
		return false
	}
	return t.MaxAmount == nil || amount < *t.MaxAmount
}

// ApprovalLevel 审批链中的一级
type ApprovalLevel struct {
	Level            int         `json:"level"`
	Name             string      `json:"name,omitempty"`
	RequiredRole     string      `json:"required_role"`
	Status           LevelStatus `json:"status"`
	SLAHours         int         `json:"sla_hours"`
	SLADueAt         time.Time   `json:"sla_due_at"`
	ApproverID       string      `json:"approver_id,omitempty"`
	Comments         string      `json:"comments,omitempty"`
	DecidedAt        *time.Time  `json:"decided_at,omitempty"`
	EscalatedAt      *time.Time  `json:"escalated_at,omitempty"`
	EscalationReason string      `json:"escalation_reason,omitempty"`
}

// ApprovalRequest 生产订单的一次多级审批
type ApprovalRequest struct {
	ID            string                `json:"id" gorm:"primaryKey;size:32"`
	MOID          string                `json:"mo_id" gorm:"size:32;not null;index"`
	MONumber      string                `json:"mo_number" gorm:"size:50"`
	WarehouseID   string                `json:"warehouse_id" gorm:"size:32"`
	Amount        float64               `json:"amount" gorm:"type:decimal(15,2)"`
	Currency      string                `json:"currency" gorm:"size:10"`
	ThresholdName string                `json:"threshold_name" gorm:"size:100"`
	Priority      Priority              `json:"priority" gorm:"size:20"`
	Status        ApprovalRequestStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	CurrentLevel  int                   `json:"current_level"`
	ApprovalChain []ApprovalLevel       `json:"approval_chain" gorm:"type:jsonb;serializer:json"`
	RequestedBy   string                `json:"requested_by" gorm:"size:32"`
	ResolvedAt    *time.Time            `json:"resolved_at,omitempty"`
	MOOutcome     MOOutcome             `json:"mo_outcome,omitempty" gorm:"size:20"`
	MOOutcomeNote string                `json:"mo_outcome_note,omitempty" gorm:"type:text"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ApprovalRequest) TableName() string {
	return "mfg_approval_requests"
}

// Current 当前待处理层级，没有时返回 nil
func (r *ApprovalRequest) Current() *ApprovalLevel {
	if r.CurrentLevel < 0 || r.CurrentLevel >= len(r.ApprovalChain) {
		return nil
	}
	return &r.ApprovalChain[r.CurrentLevel]
}

// NextPendingAfter 之后第一个待处理层级的下标，没有返回 -1
func (r *ApprovalRequest) NextPendingAfter(idx int) int {
	for i := idx + 1; i < len(r.ApprovalChain); i++ {
		if r.ApprovalChain[i].Status == LevelPending {
			return i
		}
	}
	return -1
}
