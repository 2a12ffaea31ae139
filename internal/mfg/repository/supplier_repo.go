package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"gorm.io/gorm"
)

// SupplierRepository 供应商仓库
type SupplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

func (r *SupplierRepository) Create(ctx context.Context, s *entity.Supplier) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SupplierRepository) FindByID(ctx context.Context, id string) (*entity.Supplier, error) {
	var s entity.Supplier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// SearchActive 按名称或编码搜索启用的供应商
func (r *SupplierRepository) SearchActive(ctx context.Context, term, subsidiary string) ([]entity.Supplier, error) {
	var items []entity.Supplier
	query := r.db.WithContext(ctx).Where("status = ?", entity.SupplierStatusActive)
	if subsidiary != "" {
		query = query.Where("subsidiary = ? OR subsidiary = ''", subsidiary)
	}
	if term != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ?", "%"+term+"%", "%"+term+"%")
	}
	err := query.Order("name ASC").Limit(50).Find(&items).Error
	return items, err
}
