package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VarianceRepository 成本差异仓库
type VarianceRepository struct {
	db *gorm.DB
}

func NewVarianceRepository(db *gorm.DB) *VarianceRepository {
	return &VarianceRepository{db: db}
}

// Upsert 每个MO一条，重新计算时整条覆盖
func (r *VarianceRepository) Upsert(ctx context.Context, rec *entity.CostVarianceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mo_id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (r *VarianceRepository) FindByMO(ctx context.Context, moID string) (*entity.CostVarianceRecord, error) {
	var rec entity.CostVarianceRecord
	if err := r.db.WithContext(ctx).Where("mo_id = ?", moID).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// LaborRepository 工时记录仓库
type LaborRepository struct {
	db *gorm.DB
}

func NewLaborRepository(db *gorm.DB) *LaborRepository {
	return &LaborRepository{db: db}
}

func (r *LaborRepository) Create(ctx context.Context, e *entity.LaborEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *LaborRepository) FindByMO(ctx context.Context, moID string) ([]entity.LaborEntry, error) {
	var items []entity.LaborEntry
	err := r.db.WithContext(ctx).Where("mo_id = ?", moID).Order("recorded_at ASC, id ASC").Find(&items).Error
	return items, err
}
