// Package inventory 库存适配层：预留、消耗、释放、入库与加权平均成本。
// 生产与采购服务只依赖 Adapter 接口。
package inventory

import (
	"context"
	"errors"
)

var (
	ErrStockNotFound     = errors.New("stock level not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ReserveRequest 预留请求
type ReserveRequest struct {
	ItemID      string
	WarehouseID string
	SKU         string
	Name        string
	Quantity    float64
	ReferenceID string
	UserID      string
}

// ReserveResult 预留结果；库存不足时 Success=false，不是错误
type ReserveResult struct {
	Success      bool    `json:"success"`
	StockLevelID string  `json:"stock_level_id,omitempty"`
	AvailableQty float64 `json:"available_qty"`
}

// MovementRequest 消耗/释放请求
type MovementRequest struct {
	ItemID      string
	WarehouseID string
	Quantity    float64
	ReferenceID string
	UserID      string
}

// ReceiveRequest 采购入库请求
type ReceiveRequest struct {
	ItemID      string
	WarehouseID string
	SKU         string
	Description string
	Quantity    float64
	POID        string
	UserID      string
	Note        string
}

// AggregatedStock 跨仓库汇总
type AggregatedStock struct {
	TotalOnHand    float64 `json:"total_on_hand"`
	TotalReserved  float64 `json:"total_reserved"`
	TotalAvailable float64 `json:"total_available"`
}

// Adapter 库存适配器
type Adapter interface {
	Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error)
	Consume(ctx context.Context, req MovementRequest) error
	Release(ctx context.Context, req MovementRequest) error
	AggregatedStock(ctx context.Context, itemID string) (*AggregatedStock, error)
	ReceiveStock(ctx context.Context, req ReceiveRequest) error
	UpdateWeightedAverageCost(ctx context.Context, itemID string, quantity, unitCost float64) error
}

// WeightedAverage 新的加权平均成本
func WeightedAverage(oldQty, oldCost, addQty, addCost float64) float64 {
	total := oldQty + addQty
	if total <= 0 {
		return addCost
	}
	return (oldQty*oldCost + addQty*addCost) / total
}
