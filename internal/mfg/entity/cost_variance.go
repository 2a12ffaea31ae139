package entity

import "time"

// VarianceSeverity 成本差异等级
type VarianceSeverity string

const (
	VarianceFavorable       VarianceSeverity = "favorable"
	VarianceWithinTolerance VarianceSeverity = "within-tolerance"
	VarianceUnfavorable     VarianceSeverity = "unfavorable"
	VarianceCritical        VarianceSeverity = "critical"
)

// StageVariance 分工序成本
type StageVariance struct {
	Stage         ProductionStage `json:"stage"`
	MaterialCost  float64         `json:"material_cost"`
	LaborCost     float64         `json:"labor_cost"`
	LaborHours    float64         `json:"labor_hours"`
	TotalCost     float64         `json:"total_cost"`
	EnteredAt     *time.Time      `json:"entered_at,omitempty"`
	LeftAt        *time.Time      `json:"left_at,omitempty"`
	DurationHours float64         `json:"duration_hours"`
}

// CostVarianceRecord 成本差异（每个MO一条，每次重新计算覆盖）
type CostVarianceRecord struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	MOID     string `json:"mo_id" gorm:"size:32;not null;uniqueIndex"`
	MONumber string `json:"mo_number" gorm:"size:50"`

	EstimatedMaterialCost   float64 `json:"estimated_material_cost" gorm:"type:decimal(15,2)"`
	ActualMaterialCost      float64 `json:"actual_material_cost" gorm:"type:decimal(15,2)"`
	MaterialVariance        float64 `json:"material_variance" gorm:"type:decimal(15,2)"`
	MaterialVariancePercent float64 `json:"material_variance_percent" gorm:"type:decimal(10,2)"`
	EstimatedLaborCost      float64 `json:"estimated_labor_cost" gorm:"type:decimal(15,2)"`
	ActualLaborCost         float64 `json:"actual_labor_cost" gorm:"type:decimal(15,2)"`
	LaborHours              float64 `json:"labor_hours" gorm:"type:decimal(12,2)"`
	EstimatedTotalCost      float64 `json:"estimated_total_cost" gorm:"type:decimal(15,2)"`
	ActualTotalCost         float64 `json:"actual_total_cost" gorm:"type:decimal(15,2)"`
	Variance                float64 `json:"variance" gorm:"type:decimal(15,2)"`
	VariancePercent         float64 `json:"variance_percent" gorm:"type:decimal(10,2)"`
	Tolerance               float64 `json:"tolerance" gorm:"type:decimal(6,2)"`

	Severity VarianceSeverity `json:"severity" gorm:"size:20;index"`
	Stages   []StageVariance  `json:"stages" gorm:"type:jsonb;serializer:json"`
	Warnings []string         `json:"warnings,omitempty" gorm:"type:jsonb;serializer:json"`

	CalculatedBy string    `json:"calculated_by" gorm:"size:32"`
	CalculatedAt time.Time `json:"calculated_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (CostVarianceRecord) TableName() string {
	return "mfg_cost_variances"
}

// LaborEntry 工时记录
type LaborEntry struct {
	ID         string          `json:"id" gorm:"primaryKey;size:32"`
	MOID       string          `json:"mo_id" gorm:"size:32;not null;index"`
	Stage      ProductionStage `json:"stage" gorm:"size:20;not null"`
	Worker     string          `json:"worker" gorm:"size:100"`
	Hours      float64         `json:"hours" gorm:"type:decimal(10,2);not null"`
	HourlyRate float64         `json:"hourly_rate" gorm:"type:decimal(10,2);not null"`
	Cost       float64         `json:"cost" gorm:"type:decimal(15,2)"`
	Notes      string          `json:"notes,omitempty" gorm:"type:text"`
	RecordedBy string          `json:"recorded_by" gorm:"size:32"`
	RecordedAt time.Time       `json:"recorded_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (LaborEntry) TableName() string {
	return "mfg_labor_entries"
}
