package entity

import "time"

// MOStatus 生产订单状态
type MOStatus string

const (
	MOStatusDraft      MOStatus = "draft"
	MOStatusApproved   MOStatus = "approved"
	MOStatusInProgress MOStatus = "in-progress"
	MOStatusOnHold     MOStatus = "on-hold"
	MOStatusCompleted  MOStatus = "completed"
	MOStatusCancelled  MOStatus = "cancelled"
)

// Valid 是否为已定义状态
func (s MOStatus) Valid() bool {
	switch s {
	case MOStatusDraft, MOStatusApproved, MOStatusInProgress, MOStatusOnHold, MOStatusCompleted, MOStatusCancelled:
		return true
	}
	return false
}

// IsTerminal 终态不可再迁移
func (s MOStatus) IsTerminal() bool {
	return s == MOStatusCompleted || s == MOStatusCancelled
}

// CanTransitionTo 生产订单状态迁移表
func (s MOStatus) CanTransitionTo(next MOStatus) bool {
	switch s {
	case MOStatusDraft:
		return next == MOStatusApproved || next == MOStatusCancelled
	case MOStatusApproved:
		return next == MOStatusInProgress || next == MOStatusCancelled
	case MOStatusInProgress:
		return next == MOStatusOnHold || next == MOStatusCompleted || next == MOStatusCancelled
	case MOStatusOnHold:
		return next == MOStatusInProgress || next == MOStatusCancelled
	case MOStatusCompleted, MOStatusCancelled:
		return false
	}
	return false
}

// ProductionStage 生产工序阶段
type ProductionStage string

const (
	StageQueued    ProductionStage = "queued"
	StageCutting   ProductionStage = "cutting"
	StageAssembly  ProductionStage = "assembly"
	StageFinishing ProductionStage = "finishing"
	StageQC        ProductionStage = "qc"
	StageReady     ProductionStage = "ready"
)

// StageSequence 固定的六段工序顺序
var StageSequence = []ProductionStage{
	StageQueued,
	StageCutting,
	StageAssembly,
	StageFinishing,
	StageQC,
	StageReady,
}

// Index 在工序序列中的位置，未知阶段返回 -1
func (s ProductionStage) Index() int {
	for i, st := range StageSequence {
		if st == s {
			return i
		}
	}
	return -1
}

func (s ProductionStage) Valid() bool {
	return s.Index() >= 0
}

func (s ProductionStage) IsTerminal() bool {
	return s == StageReady
}

// Next 下一工序；已是终点或未知阶段时返回 false
func (s ProductionStage) Next() (ProductionStage, bool) {
	i := s.Index()
	if i < 0 || i >= len(StageSequence)-1 {
		return s, false
	}
	return StageSequence[i+1], true
}

// Priority 优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// BOMCategorySpecial 特殊品类，视为外协采购
const BOMCategorySpecial = "special"

// BOMEntry 物料清单行
type BOMEntry struct {
	ID              string  `json:"id"`
	InventoryItemID string  `json:"inventory_item_id,omitempty"`
	SKU             string  `json:"sku,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Category        string  `json:"category,omitempty"`
	Unit            string  `json:"unit,omitempty"`
	RequiredQty     float64 `json:"required_qty"`
	UnitCost        float64 `json:"unit_cost"`
	TotalCost       float64 `json:"total_cost"`
	SupplierID      string  `json:"supplier_id,omitempty"`
	SupplierName    string  `json:"supplier_name,omitempty"`
}

// IsOutsourced 带供应商或特殊品类的行需要采购
func (b BOMEntry) IsOutsourced() bool {
	return b.SupplierID != "" || b.Category == BOMCategorySpecial
}

// ReservationStatus 物料预留状态
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationConsumed ReservationStatus = "consumed"
	ReservationReleased ReservationStatus = "released"
)

// MaterialReservation 物料预留
type MaterialReservation struct {
	ID              string            `json:"id"`
	BOMEntryID      string            `json:"bom_entry_id"`
	InventoryItemID string            `json:"inventory_item_id"`
	WarehouseID     string            `json:"warehouse_id"`
	StockLevelID    string            `json:"stock_level_id,omitempty"`
	Quantity        float64           `json:"quantity"`
	Status          ReservationStatus `json:"status"`
	ReservedBy      string            `json:"reserved_by,omitempty"`
	ReservedAt      time.Time         `json:"reserved_at"`
	ConsumedAt      *time.Time        `json:"consumed_at,omitempty"`
	ReleasedAt      *time.Time        `json:"released_at,omitempty"`
}

// MaterialConsumption 物料消耗记录，带消耗时所在工序
type MaterialConsumption struct {
	ID              string          `json:"id"`
	InventoryItemID string          `json:"inventory_item_id"`
	WarehouseID     string          `json:"warehouse_id"`
	BOMEntryID      string          `json:"bom_entry_id,omitempty"`
	Quantity        float64         `json:"quantity"`
	UnitCost        float64         `json:"unit_cost"`
	Stage           ProductionStage `json:"stage"`
	RecordedBy      string          `json:"recorded_by,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// StageTransition 工序流转记录（只追加）
type StageTransition struct {
	FromStage      ProductionStage `json:"from_stage"`
	ToStage        ProductionStage `json:"to_stage"`
	TransitionedBy string          `json:"transitioned_by,omitempty"`
	TransitionedAt time.Time       `json:"transitioned_at"`
	Notes          string          `json:"notes,omitempty"`
}

// QualityCheck 质检结果，只保留最近一次
type QualityCheck struct {
	Passed    bool      `json:"passed"`
	Inspector string    `json:"inspector,omitempty"`
	Defects   []string  `json:"defects,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CheckedBy string    `json:"checked_by,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// CostSummary 成本汇总（物料+人工=合计）
type CostSummary struct {
	MaterialCost float64 `json:"material_cost" gorm:"type:decimal(15,2);default:0"`
	LaborCost    float64 `json:"labor_cost" gorm:"type:decimal(15,2);default:0"`
	TotalCost    float64 `json:"total_cost" gorm:"type:decimal(15,2);default:0"`
}

// ManufacturingOrder 生产订单
type ManufacturingOrder struct {
	ID             string          `json:"id" gorm:"primaryKey;size:32"`
	MONumber       string          `json:"mo_number" gorm:"size:50;not null;uniqueIndex"`
	Subsidiary     string          `json:"subsidiary" gorm:"size:50;index"`
	DesignItemID   string          `json:"design_item_id" gorm:"size:32;index"`
	DesignItemName string          `json:"design_item_name" gorm:"size:200"`
	Quantity       float64         `json:"quantity" gorm:"type:decimal(12,4);not null;default:1"`
	Status         MOStatus        `json:"status" gorm:"size:20;not null;default:draft;index"`
	CurrentStage   ProductionStage `json:"current_stage" gorm:"size:20;not null;default:queued"`
	Priority       Priority        `json:"priority" gorm:"size:20;not null;default:normal"`
	WarehouseID    string          `json:"warehouse_id" gorm:"size:32"`

	BOM                  []BOMEntry            `json:"bom" gorm:"type:jsonb;serializer:json"`
	MaterialReservations []MaterialReservation `json:"material_reservations" gorm:"type:jsonb;serializer:json"`
	MaterialConsumptions []MaterialConsumption `json:"material_consumptions" gorm:"type:jsonb;serializer:json"`
	StageHistory         []StageTransition     `json:"stage_history" gorm:"type:jsonb;serializer:json"`
	QualityCheck         *QualityCheck         `json:"quality_check,omitempty" gorm:"type:jsonb;serializer:json"`
	CostSummary          CostSummary           `json:"cost_summary" gorm:"embedded;embeddedPrefix:cost_"`
	LinkedPOIDs          []string              `json:"linked_po_ids" gorm:"type:jsonb;serializer:json"`

	PlannedStart *time.Time `json:"planned_start,omitempty"`
	PlannedEnd   *time.Time `json:"planned_end,omitempty"`
	ActualStart  *time.Time `json:"actual_start,omitempty"`
	ActualEnd    *time.Time `json:"actual_end,omitempty"`
	ApprovedBy   string     `json:"approved_by,omitempty" gorm:"size:32"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	HoldReason   string     `json:"hold_reason,omitempty" gorm:"type:text"`
	CancelReason string     `json:"cancel_reason,omitempty" gorm:"type:text"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	Notes        string     `json:"notes,omitempty" gorm:"type:text"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ManufacturingOrder) TableName() string {
	return "mfg_manufacturing_orders"
}

// FindBOMEntry 按行ID查找BOM行
func (mo *ManufacturingOrder) FindBOMEntry(id string) *BOMEntry {
	for i := range mo.BOM {
		if mo.BOM[i].ID == id {
			return &mo.BOM[i]
		}
	}
	return nil
}

// FindBOMEntryByItem 按库存物料查找BOM行
func (mo *ManufacturingOrder) FindBOMEntryByItem(itemID string) *BOMEntry {
	if itemID == "" {
		return nil
	}
	for i := range mo.BOM {
		if mo.BOM[i].InventoryItemID == itemID {
			return &mo.BOM[i]
		}
	}
	return nil
}

// ActiveReservationFor BOM行当前有效的预留
func (mo *ManufacturingOrder) ActiveReservationFor(bomEntryID string) *MaterialReservation {
	for i := range mo.MaterialReservations {
		r := &mo.MaterialReservations[i]
		if r.BOMEntryID == bomEntryID && r.Status == ReservationActive {
			return r
		}
	}
	return nil
}

// HasLinkedPO 是否已关联采购订单
func (mo *ManufacturingOrder) HasLinkedPO(poID string) bool {
	for _, id := range mo.LinkedPOIDs {
		if id == poID {
			return true
		}
	}
	return false
}
