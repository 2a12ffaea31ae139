package repository

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict 乐观锁冲突：记录已被他人修改或状态前置条件不满足
	ErrConflict = errors.New("record modified concurrently")
)

// RequirementLink 需求并入采购订单后的回链
type RequirementLink struct {
	RequirementID string
	POID          string
	POLineItemID  string
}

// Repositories 生产采购仓库集合
type Repositories struct {
	MO          *MORepository
	PO          *PORepository
	Requirement *RequirementRepository
	Approval    *ApprovalRepository
	Variance    *VarianceRepository
	Labor       *LaborRepository
	Supplier    *SupplierRepository
	ActivityLog *ActivityLogRepository
	Sequence    *Sequence
}

// NewRepositories 创建仓库集合，rdb 可为空
func NewRepositories(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		MO:          NewMORepository(db),
		PO:          NewPORepository(db),
		Requirement: NewRequirementRepository(db),
		Approval:    NewApprovalRepository(db),
		Variance:    NewVarianceRepository(db),
		Labor:       NewLaborRepository(db),
		Supplier:    NewSupplierRepository(db),
		ActivityLog: NewActivityLogRepository(db),
		Sequence:    NewSequence(rdb),
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// versionedUpdate 按版本号写回整条记录，成功后版本号加一
func versionedUpdate(db *gorm.DB, model interface{}, version *int) error {
	prev := *version
	*version = prev + 1
	res := db.Model(model).Where("version = ?", prev).Select("*").Updates(model)
	if res.Error != nil {
		*version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		*version = prev
		return ErrConflict
	}
	return nil
}
