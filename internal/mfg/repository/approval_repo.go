package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"gorm.io/gorm"
)

var openApprovalStatuses = []entity.ApprovalRequestStatus{entity.ApprovalPending, entity.ApprovalEscalated}

// ApprovalRepository 审批单仓库
type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// FindOpenByMO MO当前进行中的审批单
func (r *ApprovalRepository) FindOpenByMO(ctx context.Context, moID string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("mo_id = ? AND status IN ?", moID, openApprovalStatuses).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// FindOpen 全部进行中的审批单（SLA巡检用）
func (r *ApprovalRepository) FindOpen(ctx context.Context) ([]entity.ApprovalRequest, error) {
	var items []entity.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("status IN ?", openApprovalStatuses).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *ApprovalRepository) Update(ctx context.Context, req *entity.ApprovalRequest) error {
	return versionedUpdate(r.db.WithContext(ctx), req, &req.Version)
}
