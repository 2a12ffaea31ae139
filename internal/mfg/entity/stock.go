package entity

import "time"

// StockLevel 仓库物料库存
type StockLevel struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	ItemID      string    `json:"item_id" gorm:"size:32;not null;uniqueIndex:idx_stock_item_wh"`
	WarehouseID string    `json:"warehouse_id" gorm:"size:32;not null;uniqueIndex:idx_stock_item_wh"`
	SKU         string    `json:"sku" gorm:"size:64"`
	Name        string    `json:"name" gorm:"size:200"`
	OnHand      float64   `json:"on_hand" gorm:"type:decimal(14,4);not null;default:0"`
	Reserved    float64   `json:"reserved" gorm:"type:decimal(14,4);not null;default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StockLevel) TableName() string {
	return "mfg_stock_levels"
}

// Available 可用量
func (s StockLevel) Available() float64 {
	return s.OnHand - s.Reserved
}

// 库存流水类型
const (
	MovementReserve = "reserve"
	MovementConsume = "consume"
	MovementRelease = "release"
	MovementReceive = "receive"
)

// StockMovement 库存流水
type StockMovement struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	ItemID      string    `json:"item_id" gorm:"size:32;not null;index"`
	WarehouseID string    `json:"warehouse_id" gorm:"size:32;not null"`
	Type        string    `json:"type" gorm:"size:20;not null"`
	Quantity    float64   `json:"quantity" gorm:"type:decimal(14,4);not null"`
	ReferenceID string    `json:"reference_id" gorm:"size:32;index"`
	UserID      string    `json:"user_id" gorm:"size:32"`
	Note        string    `json:"note,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "mfg_stock_movements"
}

// ItemCost 物料加权平均成本
type ItemCost struct {
	ItemID      string    `json:"item_id" gorm:"primaryKey;size:32"`
	AverageCost float64   `json:"average_cost" gorm:"type:decimal(15,4);not null;default:0"`
	QtyBasis    float64   `json:"qty_basis" gorm:"type:decimal(14,4);not null;default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ItemCost) TableName() string {
	return "mfg_item_costs"
}
