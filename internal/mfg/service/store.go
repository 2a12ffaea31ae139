package service

import (
	"context"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
)

// MOStore 生产订单存储；Update 以版本号为前置条件
type MOStore interface {
	Create(ctx context.Context, mo *entity.ManufacturingOrder) error
	FindByID(ctx context.Context, id string) (*entity.ManufacturingOrder, error)
	FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ManufacturingOrder, int64, error)
	Update(ctx context.Context, mo *entity.ManufacturingOrder) error
	CountByNumberPrefix(ctx context.Context, subsidiary, prefix string) (int64, error)
}

// POStore 采购订单存储；Update 以版本号为前置条件
type POStore interface {
	Create(ctx context.Context, po *entity.PurchaseOrder) error
	FindByID(ctx context.Context, id string) (*entity.PurchaseOrder, error)
	FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PurchaseOrder, int64, error)
	Update(ctx context.Context, po *entity.PurchaseOrder) error
	CountByNumberPrefix(ctx context.Context, subsidiary, prefix string) (int64, error)
}

// RequirementStore 采购需求存储
type RequirementStore interface {
	Create(ctx context.Context, req *entity.ProcurementRequirement) error
	FindByID(ctx context.Context, id string) (*entity.ProcurementRequirement, error)
	FindByIDs(ctx context.Context, ids []string) ([]entity.ProcurementRequirement, error)
	FindByMO(ctx context.Context, moID string) ([]entity.ProcurementRequirement, error)
	FindByPO(ctx context.Context, poID string) ([]entity.ProcurementRequirement, error)
	FindPending(ctx context.Context, supplierID string) ([]entity.ProcurementRequirement, error)
	MarkAddedToPO(ctx context.Context, links []repository.RequirementLink) error
	UpdateStatus(ctx context.Context, id string, from, to entity.RequirementStatus, reason string) error
}

// ApprovalStore 审批单存储
type ApprovalStore interface {
	Create(ctx context.Context, req *entity.ApprovalRequest) error
	FindByID(ctx context.Context, id string) (*entity.ApprovalRequest, error)
	FindOpenByMO(ctx context.Context, moID string) (*entity.ApprovalRequest, error)
	FindOpen(ctx context.Context) ([]entity.ApprovalRequest, error)
	Update(ctx context.Context, req *entity.ApprovalRequest) error
}

type VarianceStore interface {
	Upsert(ctx context.Context, rec *entity.CostVarianceRecord) error
	FindByMO(ctx context.Context, moID string) (*entity.CostVarianceRecord, error)
}

type LaborStore interface {
	Create(ctx context.Context, e *entity.LaborEntry) error
	FindByMO(ctx context.Context, moID string) ([]entity.LaborEntry, error)
}

// SupplierStore 供应商目录
type SupplierStore interface {
	Create(ctx context.Context, s *entity.Supplier) error
	FindByID(ctx context.Context, id string) (*entity.Supplier, error)
	SearchActive(ctx context.Context, term, subsidiary string) ([]entity.Supplier, error)
}

type ActivityLogStore interface {
	Create(ctx context.Context, log *entity.ActivityLog) error
	FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.ActivityLog, int64, error)
}

// SequenceStore 单号流水
type SequenceStore interface {
	Next(ctx context.Context, key string, seed func(context.Context) (int64, error)) (int64, error)
}

// Stores 服务依赖的全部存储
type Stores struct {
	MO          MOStore
	PO          POStore
	Requirement RequirementStore
	Approval    ApprovalStore
	Variance    VarianceStore
	Labor       LaborStore
	Supplier    SupplierStore
	ActivityLog ActivityLogStore
	Sequence    SequenceStore
}
