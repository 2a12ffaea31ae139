package entity

import "time"

// POStatus 采购订单状态
type POStatus string

const (
	POStatusDraft             POStatus = "draft"
	POStatusPendingApproval   POStatus = "pending-approval"
	POStatusApproved          POStatus = "approved"
	POStatusSent              POStatus = "sent"
	POStatusPartiallyReceived POStatus = "partially-received"
	POStatusReceived          POStatus = "received"
	POStatusClosed            POStatus = "closed"
	POStatusCancelled         POStatus = "cancelled"
)

func (s POStatus) Valid() bool {
	switch s {
	case POStatusDraft, POStatusPendingApproval, POStatusApproved, POStatusSent,
		POStatusPartiallyReceived, POStatusReceived, POStatusClosed, POStatusCancelled:
		return true
	}
	return false
}

func (s POStatus) IsTerminal() bool {
	return s == POStatusClosed || s == POStatusCancelled
}

// Editable 仅草稿和待审批允许修改行项与到岸费用
func (s POStatus) Editable() bool {
	return s == POStatusDraft || s == POStatusPendingApproval
}

// CanTransitionTo 采购订单状态迁移表
func (s POStatus) CanTransitionTo(next POStatus) bool {
	if next == POStatusCancelled {
		return !s.IsTerminal()
	}
	switch s {
	case POStatusDraft:
		return next == POStatusPendingApproval
	case POStatusPendingApproval:
		return next == POStatusApproved || next == POStatusDraft
	case POStatusApproved:
		return next == POStatusSent
	case POStatusSent:
		return next == POStatusPartiallyReceived || next == POStatusReceived
	case POStatusPartiallyReceived:
		return next == POStatusPartiallyReceived || next == POStatusReceived || next == POStatusClosed
	case POStatusReceived:
		return next == POStatusClosed
	case POStatusClosed, POStatusCancelled:
		return false
	}
	return false
}

// Receivable 可收货状态
func (s POStatus) Receivable() bool {
	return s == POStatusSent || s == POStatusPartiallyReceived
}

// DistributionMethod 到岸费用分摊方式
type DistributionMethod string

const (
	DistributeByValue  DistributionMethod = "proportional_value"
	DistributeByWeight DistributionMethod = "proportional_weight"
	DistributeEqual    DistributionMethod = "equal"
)

func (m DistributionMethod) Valid() bool {
	switch m {
	case DistributeByValue, DistributeByWeight, DistributeEqual:
		return true
	}
	return false
}

// POLineItem 采购订单行
type POLineItem struct {
	ID                   string  `json:"id"`
	RequirementID        string  `json:"requirement_id,omitempty"`
	MOID                 string  `json:"mo_id,omitempty"`
	MONumber             string  `json:"mo_number,omitempty"`
	InventoryItemID      string  `json:"inventory_item_id,omitempty"`
	SKU                  string  `json:"sku,omitempty"`
	Description          string  `json:"description"`
	Unit                 string  `json:"unit,omitempty"`
	Quantity             float64 `json:"quantity"`
	UnitCost             float64 `json:"unit_cost"`
	Weight               float64 `json:"weight,omitempty"`
	LineTotal            float64 `json:"line_total"`
	QuantityReceived     float64 `json:"quantity_received"`
	LandedCostAllocation float64 `json:"landed_cost_allocation"`
	EffectiveUnitCost    float64 `json:"effective_unit_cost"`
}

// FullyReceived 行是否收齐
func (l POLineItem) FullyReceived() bool {
	return l.QuantityReceived >= l.Quantity
}

// LandedCosts 到岸费用构成
type LandedCosts struct {
	Shipping           float64            `json:"shipping" gorm:"type:decimal(15,2);default:0"`
	Customs            float64            `json:"customs" gorm:"type:decimal(15,2);default:0"`
	Duties             float64            `json:"duties" gorm:"type:decimal(15,2);default:0"`
	Insurance          float64            `json:"insurance" gorm:"type:decimal(15,2);default:0"`
	Handling           float64            `json:"handling" gorm:"type:decimal(15,2);default:0"`
	Other              float64            `json:"other" gorm:"type:decimal(15,2);default:0"`
	DistributionMethod DistributionMethod `json:"distribution_method" gorm:"size:30;default:proportional_value"`
}

// POTotals 汇总金额，全部由行项和到岸费用推导
type POTotals struct {
	Subtotal        float64 `json:"subtotal" gorm:"type:decimal(15,2);default:0"`
	LandedCostTotal float64 `json:"landed_cost_total" gorm:"type:decimal(15,2);default:0"`
	GrandTotal      float64 `json:"grand_total" gorm:"type:decimal(15,2);default:0"`
	Currency        string  `json:"currency" gorm:"size:10"`
}

// POApprovalStatus 采购审批状态
type POApprovalStatus string

const (
	POApprovalPending  POApprovalStatus = "pending"
	POApprovalApproved POApprovalStatus = "approved"
	POApprovalRejected POApprovalStatus = "rejected"
)

// POApproval 采购订单审批记录（单级）
type POApproval struct {
	Level       int              `json:"level"`
	Status      POApprovalStatus `json:"status"`
	RequestedBy string           `json:"requested_by,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	ApproverID  string           `json:"approver_id,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
}

// ReceivingLine 收货行
type ReceivingLine struct {
	LineItemID string  `json:"line_item_id"`
	Quantity   float64 `json:"quantity"`
}

// ReceivingRecord 收货记录（只追加）
type ReceivingRecord struct {
	ID          string          `json:"id"`
	WarehouseID string          `json:"warehouse_id"`
	Lines       []ReceivingLine `json:"lines"`
	Notes       string          `json:"notes,omitempty"`
	ReceivedBy  string          `json:"received_by,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// PurchaseOrder 采购订单
type PurchaseOrder struct {
	ID           string   `json:"id" gorm:"primaryKey;size:32"`
	PONumber     string   `json:"po_number" gorm:"size:50;not null;uniqueIndex"`
	Subsidiary   string   `json:"subsidiary" gorm:"size:50;index"`
	SupplierID   string   `json:"supplier_id" gorm:"size:32;index"`
	SupplierName string   `json:"supplier_name" gorm:"size:200"`
	Status       POStatus `json:"status" gorm:"size:30;not null;default:draft;index"`

	LineItems        []POLineItem      `json:"line_items" gorm:"type:jsonb;serializer:json"`
	LandedCosts      LandedCosts       `json:"landed_costs" gorm:"embedded;embeddedPrefix:landed_"`
	Totals           POTotals          `json:"totals" gorm:"embedded;embeddedPrefix:total_"`
	Approvals        []POApproval      `json:"approvals" gorm:"type:jsonb;serializer:json"`
	ReceivingHistory []ReceivingRecord `json:"receiving_history" gorm:"type:jsonb;serializer:json"`
	LinkedMOIDs      []string          `json:"linked_mo_ids" gorm:"type:jsonb;serializer:json"`

	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty" gorm:"type:text"`
	Notes        string     `json:"notes,omitempty" gorm:"type:text"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PurchaseOrder) TableName() string {
	return "mfg_purchase_orders"
}

// FindLineItem 按行ID查找
func (po *PurchaseOrder) FindLineItem(id string) *POLineItem {
	for i := range po.LineItems {
		if po.LineItems[i].ID == id {
			return &po.LineItems[i]
		}
	}
	return nil
}

// AllLinesReceived 所有行均已收齐
func (po *PurchaseOrder) AllLinesReceived() bool {
	if len(po.LineItems) == 0 {
		return false
	}
	for _, l := range po.LineItems {
		if !l.FullyReceived() {
			return false
		}
	}
	return true
}

// PendingApproval 当前待处理的审批记录
func (po *PurchaseOrder) PendingApproval() *POApproval {
	for i := len(po.Approvals) - 1; i >= 0; i-- {
		if po.Approvals[i].Status == POApprovalPending {
			return &po.Approvals[i]
		}
	}
	return nil
}
