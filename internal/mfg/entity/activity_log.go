package entity

import "time"

// 事件严重级别
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

// ActivityLog 业务事件日志（只追加）
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_mfg_activity_entity"` // mo/po/requirement/approval
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_mfg_activity_entity"`
	EntityCode string `json:"entity_code" gorm:"size:50"`

	Action     string `json:"action" gorm:"size:80;not null"`
	Severity   string `json:"severity" gorm:"size:20;not null;default:info"`
	FromStatus string `json:"from_status" gorm:"size:30"`
	ToStatus   string `json:"to_status" gorm:"size:30"`

	Content  string                 `json:"content" gorm:"type:text"`
	Metadata map[string]interface{} `json:"metadata" gorm:"type:jsonb;serializer:json"`

	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "mfg_activity_logs"
}
