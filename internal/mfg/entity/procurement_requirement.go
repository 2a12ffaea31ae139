package entity

import "time"

// RequirementStatus 采购需求状态，只能前进（人工取消除外）
type RequirementStatus string

const (
	RequirementPending   RequirementStatus = "pending"
	RequirementAddedToPO RequirementStatus = "added-to-po"
	RequirementOrdered   RequirementStatus = "ordered"
	RequirementReceived  RequirementStatus = "received"
	RequirementCancelled RequirementStatus = "cancelled"
)

func (s RequirementStatus) rank() int {
	switch s {
	case RequirementPending:
		return 0
	case RequirementAddedToPO:
		return 1
	case RequirementOrdered:
		return 2
	case RequirementReceived:
		return 3
	}
	return -1
}

func (s RequirementStatus) Valid() bool {
	return s.rank() >= 0 || s == RequirementCancelled
}

// CanAdvanceTo 状态只能单调前进；已收货或已取消后不可再变
func (s RequirementStatus) CanAdvanceTo(next RequirementStatus) bool {
	if s == RequirementCancelled || s == RequirementReceived {
		return false
	}
	if next == RequirementCancelled {
		return true
	}
	return next.rank() > s.rank()
}

// 需求来源
const (
	RequirementSourceBOM      = "bom"
	RequirementSourceShortage = "shortage"
)

// ProcurementRequirement 采购需求：MO的一条BOM行对应一个目标供应商
type ProcurementRequirement struct {
	ID                 string            `json:"id" gorm:"primaryKey;size:32"`
	MOID               string            `json:"mo_id" gorm:"size:32;not null;index"`
	MONumber           string            `json:"mo_number" gorm:"size:50"`
	BOMEntryID         string            `json:"bom_entry_id" gorm:"size:32;index"`
	InventoryItemID    string            `json:"inventory_item_id,omitempty" gorm:"size:32"`
	SKU                string            `json:"sku,omitempty" gorm:"size:64"`
	Description        string            `json:"description" gorm:"size:500"`
	Unit               string            `json:"unit,omitempty" gorm:"size:20"`
	Quantity           float64           `json:"quantity" gorm:"type:decimal(12,4);not null"`
	EstimatedUnitCost  float64           `json:"estimated_unit_cost" gorm:"type:decimal(15,4)"`
	EstimatedTotalCost float64           `json:"estimated_total_cost" gorm:"type:decimal(15,2)"`
	SupplierID         string            `json:"supplier_id,omitempty" gorm:"size:32;index"`
	SupplierName       string            `json:"supplier_name,omitempty" gorm:"size:200"`
	Source             string            `json:"source" gorm:"size:20;not null;default:bom"`
	Status             RequirementStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	POID               string            `json:"po_id,omitempty" gorm:"size:32;index"`
	POLineItemID       string            `json:"po_line_item_id,omitempty" gorm:"size:32"`
	Subsidiary         string            `json:"subsidiary" gorm:"size:50"`
	CancelReason       string            `json:"cancel_reason,omitempty" gorm:"type:text"`
	CreatedBy          string            `json:"created_by" gorm:"size:32"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (ProcurementRequirement) TableName() string {
	return "mfg_procurement_requirements"
}
