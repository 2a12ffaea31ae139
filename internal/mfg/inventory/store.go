package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 基于 gorm 的库存实现
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func newID() string {
	return uuid.New().String()[:32]
}

// lockLevel 行锁读取库存记录
func lockLevel(tx *gorm.DB, itemID, warehouseID string) (*entity.StockLevel, error) {
	var level entity.StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		First(&level).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, err
	}
	return &level, nil
}

func movement(tx *gorm.DB, typ, itemID, warehouseID string, qty float64, refID, userID, note string) error {
	return tx.Create(&entity.StockMovement{
		ID:          newID(),
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Type:        typ,
		Quantity:    qty,
		ReferenceID: refID,
		UserID:      userID,
		Note:        note,
	}).Error
}

// Reserve 预留库存，可用量不足时返回 Success=false
func (s *Store) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	result := &ReserveResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		level, err := lockLevel(tx, req.ItemID, req.WarehouseID)
		if errors.Is(err, ErrStockNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result.StockLevelID = level.ID
		result.AvailableQty = level.Available()
		if level.Available() < req.Quantity {
			return nil
		}
		if err := tx.Model(level).Update("reserved", gorm.Expr("reserved + ?", req.Quantity)).Error; err != nil {
			return err
		}
		result.Success = true
		result.AvailableQty = level.Available() - req.Quantity
		return movement(tx, entity.MovementReserve, req.ItemID, req.WarehouseID, req.Quantity, req.ReferenceID, req.UserID, "")
	})
	if err != nil {
		return nil, fmt.Errorf("reserve %s@%s: %w", req.ItemID, req.WarehouseID, err)
	}
	return result, nil
}

// Consume 出库消耗，优先扣减预留量
func (s *Store) Consume(ctx context.Context, req MovementRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		level, err := lockLevel(tx, req.ItemID, req.WarehouseID)
		if err != nil {
			return err
		}
		if level.OnHand < req.Quantity {
			return fmt.Errorf("%w: 需要%.4f, 在库%.4f", ErrInsufficientStock, req.Quantity, level.OnHand)
		}
		fromReserved := req.Quantity
		if fromReserved > level.Reserved {
			fromReserved = level.Reserved
		}
		if err := tx.Model(level).Updates(map[string]interface{}{
			"on_hand":  gorm.Expr("on_hand - ?", req.Quantity),
			"reserved": gorm.Expr("reserved - ?", fromReserved),
		}).Error; err != nil {
			return err
		}
		return movement(tx, entity.MovementConsume, req.ItemID, req.WarehouseID, -req.Quantity, req.ReferenceID, req.UserID, "")
	})
}

// Release 释放预留
func (s *Store) Release(ctx context.Context, req MovementRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		level, err := lockLevel(tx, req.ItemID, req.WarehouseID)
		if err != nil {
			return err
		}
		qty := req.Quantity
		if qty > level.Reserved {
			qty = level.Reserved
		}
		if err := tx.Model(level).Update("reserved", gorm.Expr("reserved - ?", qty)).Error; err != nil {
			return err
		}
		return movement(tx, entity.MovementRelease, req.ItemID, req.WarehouseID, qty, req.ReferenceID, req.UserID, "")
	})
}

// AggregatedStock 汇总物料在所有仓库的库存
func (s *Store) AggregatedStock(ctx context.Context, itemID string) (*AggregatedStock, error) {
	var agg AggregatedStock
	err := s.db.WithContext(ctx).Model(&entity.StockLevel{}).
		Select("COALESCE(SUM(on_hand),0) AS total_on_hand, COALESCE(SUM(reserved),0) AS total_reserved").
		Where("item_id = ?", itemID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	agg.TotalAvailable = agg.TotalOnHand - agg.TotalReserved
	return &agg, nil
}

// ReceiveStock 采购入库，不存在的库存记录自动创建
func (s *Store) ReceiveStock(ctx context.Context, req ReceiveRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		level, err := lockLevel(tx, req.ItemID, req.WarehouseID)
		if errors.Is(err, ErrStockNotFound) {
			level = &entity.StockLevel{
				ID:          newID(),
				ItemID:      req.ItemID,
				WarehouseID: req.WarehouseID,
				SKU:         req.SKU,
				Name:        req.Description,
			}
			if err := tx.Create(level).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if err := tx.Model(level).Update("on_hand", gorm.Expr("on_hand + ?", req.Quantity)).Error; err != nil {
			return err
		}
		return movement(tx, entity.MovementReceive, req.ItemID, req.WarehouseID, req.Quantity, req.POID, req.UserID, req.Note)
	})
}

// UpdateWeightedAverageCost 入库后更新加权平均成本
func (s *Store) UpdateWeightedAverageCost(ctx context.Context, itemID string, quantity, unitCost float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cost entity.ItemCost
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("item_id = ?", itemID).First(&cost).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&entity.ItemCost{
				ItemID:      itemID,
				AverageCost: unitCost,
				QtyBasis:    quantity,
				UpdatedAt:   time.Now(),
			}).Error
		}
		if err != nil {
			return err
		}
		cost.AverageCost = WeightedAverage(cost.QtyBasis, cost.AverageCost, quantity, unitCost)
		cost.QtyBasis += quantity
		cost.UpdatedAt = time.Now()
		return tx.Save(&cost).Error
	})
}
