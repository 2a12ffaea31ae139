package service

import (
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/inventory"
	"go.uber.org/zap"
)

// Options 服务集合的运行参数
type Options struct {
	Subsidiary        string
	Currency          string
	POPrefix          string
	VarianceTolerance float64
	Thresholds        []entity.ApprovalThreshold
	Logger            *zap.Logger
	Alerts            AlertSender
	// Events 为空时写入 ActivityLog
	Events EventSink
	Now    func() time.Time
}

// Services 服务集合
type Services struct {
	MO          *MOService
	PO          *POService
	Requirement *RequirementService
	Approval    *ApprovalService
	Bulk        *BulkService
	Variance    *CostVarianceService
	Supplier    *SupplierService
	Activity    *ActivityService
}

// NewServices 创建服务集合
func NewServices(stores Stores, inv inventory.Adapter, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := opts.Events
	if events == nil {
		events = NewActivityLogSink(stores.ActivityLog, opts.Alerts, logger.Named("events"))
	}

	mo := NewMOService(stores.MO, inv, stores.Sequence, events, opts.Subsidiary, logger.Named("mo"))
	po := NewPOService(stores.PO, inv, stores.Sequence, events, opts.Subsidiary, opts.Currency, opts.POPrefix, logger.Named("po"))
	req := NewRequirementService(stores.Requirement, stores.Supplier, mo, po, events, logger.Named("requirement"))
	po.SetRequirementNotifier(req)
	approval := NewApprovalService(stores.Approval, mo, opts.Thresholds, po.currency, events, logger.Named("approval"))
	variance := NewCostVarianceService(stores.MO, stores.Labor, stores.Variance, opts.VarianceTolerance, events, logger.Named("variance"))

	if opts.Now != nil {
		mo.now = opts.Now
		po.now = opts.Now
		approval.now = opts.Now
		variance.now = opts.Now
	}

	return &Services{
		MO:          mo,
		PO:          po,
		Requirement: req,
		Approval:    approval,
		Bulk:        NewBulkService(mo, logger.Named("bulk")),
		Variance:    variance,
		Supplier:    NewSupplierService(stores.Supplier, opts.Subsidiary),
		Activity:    NewActivityService(stores.ActivityLog),
	}
}
