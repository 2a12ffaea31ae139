package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"gorm.io/gorm"
)

// RequirementRepository 采购需求仓库
type RequirementRepository struct {
	db *gorm.DB
}

func NewRequirementRepository(db *gorm.DB) *RequirementRepository {
	return &RequirementRepository{db: db}
}

func (r *RequirementRepository) Create(ctx context.Context, req *entity.ProcurementRequirement) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *RequirementRepository) FindByID(ctx context.Context, id string) (*entity.ProcurementRequirement, error) {
	var req entity.ProcurementRequirement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// FindByIDs 批量查询，顺序不保证
func (r *RequirementRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.ProcurementRequirement, error) {
	var items []entity.ProcurementRequirement
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

func (r *RequirementRepository) FindByMO(ctx context.Context, moID string) ([]entity.ProcurementRequirement, error) {
	var items []entity.ProcurementRequirement
	err := r.db.WithContext(ctx).Where("mo_id = ?", moID).Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

func (r *RequirementRepository) FindByPO(ctx context.Context, poID string) ([]entity.ProcurementRequirement, error) {
	var items []entity.ProcurementRequirement
	err := r.db.WithContext(ctx).Where("po_id = ?", poID).Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

// FindPending 待处理需求，supplierID 为空时返回全部
func (r *RequirementRepository) FindPending(ctx context.Context, supplierID string) ([]entity.ProcurementRequirement, error) {
	var items []entity.ProcurementRequirement
	query := r.db.WithContext(ctx).Where("status = ?", entity.RequirementPending)
	if supplierID != "" {
		query = query.Where("supplier_id = ?", supplierID)
	}
	err := query.Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

// MarkAddedToPO 在同一事务内把一批 pending 需求标记为已并单，任一条不满足则整体回滚
func (r *RequirementRepository) MarkAddedToPO(ctx context.Context, links []RequirementLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range links {
			res := tx.Model(&entity.ProcurementRequirement{}).
				Where("id = ? AND status = ?", l.RequirementID, entity.RequirementPending).
				Updates(map[string]interface{}{
					"status":          entity.RequirementAddedToPO,
					"po_id":           l.POID,
					"po_line_item_id": l.POLineItemID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
		}
		return nil
	})
}

// UpdateStatus 带前置状态校验的状态变更
func (r *RequirementRepository) UpdateStatus(ctx context.Context, id string, from, to entity.RequirementStatus, reason string) error {
	updates := map[string]interface{}{"status": to}
	if to == entity.RequirementCancelled {
		updates["cancel_reason"] = reason
	}
	res := r.db.WithContext(ctx).Model(&entity.ProcurementRequirement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}
