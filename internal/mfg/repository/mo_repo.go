package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"gorm.io/gorm"
)

// MORepository 生产订单仓库
type MORepository struct {
	db *gorm.DB
}

func NewMORepository(db *gorm.DB) *MORepository {
	return &MORepository{db: db}
}

// Create 创建生产订单
func (r *MORepository) Create(ctx context.Context, mo *entity.ManufacturingOrder) error {
	if mo.Version == 0 {
		mo.Version = 1
	}
	return r.db.WithContext(ctx).Create(mo).Error
}

// FindByID 根据ID查找
func (r *MORepository) FindByID(ctx context.Context, id string) (*entity.ManufacturingOrder, error) {
	var mo entity.ManufacturingOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&mo).Error; err != nil {
		return nil, notFound(err)
	}
	return &mo, nil
}

// FindAll 查询生产订单列表
func (r *MORepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ManufacturingOrder, int64, error) {
	var items []entity.ManufacturingOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ManufacturingOrder{})
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if stage := filters["stage"]; stage != "" {
		query = query.Where("current_stage = ?", stage)
	}
	if priority := filters["priority"]; priority != "" {
		query = query.Where("priority = ?", priority)
	}
	if subsidiary := filters["subsidiary"]; subsidiary != "" {
		query = query.Where("subsidiary = ?", subsidiary)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("mo_number ILIKE ? OR design_item_name ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// Update 带版本校验的整单写回
func (r *MORepository) Update(ctx context.Context, mo *entity.ManufacturingOrder) error {
	return versionedUpdate(r.db.WithContext(ctx), mo, &mo.Version)
}

// CountByNumberPrefix 统计某编号前缀下的订单数（编号生成用）
func (r *MORepository) CountByNumberPrefix(ctx context.Context, subsidiary, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ManufacturingOrder{}).
		Where("subsidiary = ? AND mo_number LIKE ?", subsidiary, prefix+"%").
		Count(&count).Error
	return count, err
}
