package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequirementNotifier 采购订单状态变化时回写关联需求
type RequirementNotifier interface {
	MarkOrderedForPO(ctx context.Context, poID, userID string) (int, error)
	MarkReceivedForPO(ctx context.Context, poID, userID string) (int, error)
}

// POService 采购订单生命周期
type POService struct {
	po           POStore
	inventory    inventory.Adapter
	requirements RequirementNotifier
	numbers      numberer
	subsidiary   string
	currency     string
	prefix       string
	logger       *zap.Logger
	now          func() time.Time
	emitter
}

func NewPOService(po POStore, inv inventory.Adapter, seq SequenceStore, events EventSink, subsidiary, currency, prefix string, logger *zap.Logger) *POService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &POService{
		po:         po,
		inventory:  inv,
		numbers:    numberer{seq: seq},
		subsidiary: subsidiary,
		currency:   currency,
		prefix:     prefix,
		logger:     logger,
		now:        time.Now,
		emitter:    emitter{sink: events, logger: logger},
	}
}

// SetRequirementNotifier 注入需求回写（需求服务依赖PO服务，故延迟注入）
func (s *POService) SetRequirementNotifier(n RequirementNotifier) {
	s.requirements = n
}

// === 请求结构 ===

type POLineItemInput struct {
	ID              string  `json:"id"`
	RequirementID   string  `json:"requirement_id"`
	MOID            string  `json:"mo_id"`
	MONumber        string  `json:"mo_number"`
	InventoryItemID string  `json:"inventory_item_id"`
	SKU             string  `json:"sku"`
	Description     string  `json:"description" binding:"required"`
	Unit            string  `json:"unit"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
	UnitCost        float64 `json:"unit_cost" binding:"gte=0"`
	Weight          float64 `json:"weight"`
}

type CreatePORequest struct {
	SupplierID   string              `json:"supplier_id" binding:"required"`
	SupplierName string              `json:"supplier_name"`
	Currency     string              `json:"currency"`
	Prefix       string              `json:"prefix"`
	Subsidiary   string              `json:"subsidiary"`
	LineItems    []POLineItemInput   `json:"line_items"`
	LandedCosts  *entity.LandedCosts `json:"landed_costs"`
	LinkedMOIDs  []string            `json:"linked_mo_ids"`
	ExpectedDate *time.Time          `json:"expected_date"`
	Notes        string              `json:"notes"`
}

// UpdatePORequest 为nil的字段不修改
type UpdatePORequest struct {
	LineItems    *[]POLineItemInput  `json:"line_items"`
	LandedCosts  *entity.LandedCosts `json:"landed_costs"`
	ExpectedDate *time.Time          `json:"expected_date"`
	Notes        *string             `json:"notes"`
}

type ReceiveGoodsRequest struct {
	WarehouseID string                 `json:"warehouse_id" binding:"required"`
	Lines       []entity.ReceivingLine `json:"lines" binding:"required"`
	Notes       string                 `json:"notes"`
}

// ReceiveResult 收货结果；库存回写失败不回滚收货记录，逐行列出
type ReceiveResult struct {
	PO                *entity.PurchaseOrder `json:"po"`
	FullyReceived     bool                  `json:"fully_received"`
	InventoryFailures []string              `json:"inventory_failures,omitempty"`
}

// === 读取 ===

func (s *POService) Get(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	po, err := s.po.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "PO "+id)
	}
	return po, nil
}

func (s *POService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PurchaseOrder, int64, error) {
	return s.po.FindAll(ctx, page, pageSize, filters)
}

// === 创建与编辑 ===

func buildLineItems(inputs []POLineItemInput) ([]entity.POLineItem, error) {
	if len(inputs) == 0 {
		return nil, validation("at least one line item is required")
	}
	items := make([]entity.POLineItem, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity <= 0 {
			return nil, validation("line %d: quantity must be positive", i+1)
		}
		if in.UnitCost < 0 {
			return nil, validation("line %d: unit cost must not be negative", i+1)
		}
		if in.Weight < 0 {
			return nil, validation("line %d: weight must not be negative", i+1)
		}
		id := in.ID
		if id == "" {
			id = newID()
		}
		items = append(items, entity.POLineItem{
			ID:              id,
			RequirementID:   in.RequirementID,
			MOID:            in.MOID,
			MONumber:        in.MONumber,
			InventoryItemID: in.InventoryItemID,
			SKU:             in.SKU,
			Description:     in.Description,
			Unit:            in.Unit,
			Quantity:        in.Quantity,
			UnitCost:        in.UnitCost,
			Weight:          in.Weight,
		})
	}
	return items, nil
}

func validateLandedCosts(lc entity.LandedCosts) (entity.LandedCosts, error) {
	if lc.DistributionMethod == "" {
		lc.DistributionMethod = entity.DistributeByValue
	}
	if !lc.DistributionMethod.Valid() {
		return lc, validation("unknown distribution method %q", lc.DistributionMethod)
	}
	for name, v := range map[string]float64{
		"shipping": lc.Shipping, "customs": lc.Customs, "duties": lc.Duties,
		"insurance": lc.Insurance, "handling": lc.Handling, "other": lc.Other,
	} {
		if v < 0 {
			return lc, validation("landed cost %s must not be negative", name)
		}
	}
	return lc, nil
}

// Create 创建草稿采购订单，行项与汇总由到岸费用分摊计算
func (s *POService) Create(ctx context.Context, userID string, req *CreatePORequest) (*entity.PurchaseOrder, error) {
	if req.SupplierID == "" {
		return nil, validation("supplier is required")
	}
	items, err := buildLineItems(req.LineItems)
	if err != nil {
		return nil, err
	}
	var lc entity.LandedCosts
	if req.LandedCosts != nil {
		lc = *req.LandedCosts
	}
	if lc, err = validateLandedCosts(lc); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	subsidiary := req.Subsidiary
	if subsidiary == "" {
		subsidiary = s.subsidiary
	}
	prefix := req.Prefix
	if prefix == "" {
		prefix = s.prefix
	}

	number, err := s.numbers.next(ctx, "po", subsidiary, poNumberPrefix(prefix, s.now()), s.po.CountByNumberPrefix)
	if err != nil {
		return nil, err
	}

	items, totals := AllocateLandedCosts(items, lc, currency)
	po := &entity.PurchaseOrder{
		ID:           newID(),
		PONumber:     number,
		Subsidiary:   subsidiary,
		SupplierID:   req.SupplierID,
		SupplierName: req.SupplierName,
		Status:       entity.POStatusDraft,
		LineItems:    items,
		LandedCosts:  lc,
		Totals:       totals,
		LinkedMOIDs:  uniqueStrings(req.LinkedMOIDs),
		ExpectedDate: req.ExpectedDate,
		Notes:        req.Notes,
		CreatedBy:    userID,
	}
	if err := s.po.Create(ctx, po); err != nil {
		return nil, fmt.Errorf("create PO: %w", err)
	}

	s.emit(ctx, Event{
		Type: "po.created", EntityType: "po", EntityID: po.ID, EntityCode: po.PONumber, UserID: userID,
		ToStatus: string(po.Status),
		Metadata: map[string]interface{}{"supplier_id": po.SupplierID, "grand_total": po.Totals.GrandTotal, "lines": len(items)},
	})
	return po, nil
}

// Update 修改行项或到岸费用后整体重算分摊
func (s *POService) Update(ctx context.Context, id, userID string, req *UpdatePORequest) (*entity.PurchaseOrder, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !po.Status.Editable() {
		return nil, invalidState("PO %s cannot be edited while %s", po.PONumber, po.Status)
	}

	items := po.LineItems
	if req.LineItems != nil {
		if items, err = buildLineItems(*req.LineItems); err != nil {
			return nil, err
		}
	}
	lc := po.LandedCosts
	if req.LandedCosts != nil {
		lc = *req.LandedCosts
	}
	if lc, err = validateLandedCosts(lc); err != nil {
		return nil, err
	}
	if req.ExpectedDate != nil {
		po.ExpectedDate = req.ExpectedDate
	}
	if req.Notes != nil {
		po.Notes = *req.Notes
	}

	po.LandedCosts = lc
	po.LineItems, po.Totals = AllocateLandedCosts(items, lc, po.Totals.Currency)

	if err := s.po.Update(ctx, po); err != nil {
		return nil, storeErr(err, "update PO "+po.PONumber)
	}
	s.emit(ctx, Event{
		Type: "po.updated", EntityType: "po", EntityID: po.ID, EntityCode: po.PONumber, UserID: userID,
		Metadata: map[string]interface{}{"grand_total": po.Totals.GrandTotal},
	})
	return po, nil
}

// === 审批 ===

// Submit 提交审批，生成一级待审批记录
func (s *POService) Submit(ctx context.Context, id, userID string) (*entity.PurchaseOrder, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(po.LineItems) == 0 {
		return nil, validation("PO %s has no line items", po.PONumber)
	}
	if err := s.transition(po, entity.POStatusPendingApproval); err != nil {
		return nil, err
	}
	po.Approvals = append(po.Approvals, entity.POApproval{
		Level:       1,
		Status:      entity.POApprovalPending,
		RequestedBy: userID,
		RequestedAt: s.now(),
	})
	return s.save(ctx, po, userID, entity.POStatusDraft, "po.submitted", "")
}

// Approve 审批通过
func (s *POService) Approve(ctx context.Context, id, userID, notes string) (*entity.PurchaseOrder, error) {
	return s.decide(ctx, id, userID, notes, entity.POApprovalApproved, entity.POStatusApproved, "po.approved")
}

// Reject 驳回回到草稿，记录驳回人与意见
func (s *POService) Reject(ctx context.Context, id, userID, notes string) (*entity.PurchaseOrder, error) {
	return s.decide(ctx, id, userID, notes, entity.POApprovalRejected, entity.POStatusDraft, "po.rejected")
}

func (s *POService) decide(ctx context.Context, id, userID, notes string, decision entity.POApprovalStatus, to entity.POStatus, event string) (*entity.PurchaseOrder, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusPendingApproval {
		return nil, invalidState("PO %s is %s, not pending approval", po.PONumber, po.Status)
	}
	now := s.now()
	if pending := po.PendingApproval(); pending != nil {
		pending.Status = decision
		pending.ApproverID = userID
		pending.Notes = notes
		pending.DecidedAt = &now
	}
	from := po.Status
	po.Status = to
	return s.save(ctx, po, userID, from, event, notes)
}

// === 下单与收货 ===

// MarkAsSent 发送给供应商；关联需求回写失败不影响发送
func (s *POService) MarkAsSent(ctx context.Context, id, userID string) (*entity.PurchaseOrder, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusApproved {
		return nil, invalidState("PO %s must be approved before sending, is %s", po.PONumber, po.Status)
	}
	now := s.now()
	po.Status = entity.POStatusSent
	po.SentAt = &now
	po, err = s.save(ctx, po, userID, entity.POStatusApproved, "po.sent", "")
	if err != nil {
		return nil, err
	}

	if s.requirements != nil {
		if n, err := s.requirements.MarkOrderedForPO(ctx, po.ID, userID); err != nil {
			s.logger.Warn("mark requirements ordered failed", zap.String("po", po.PONumber), zap.Error(err))
		} else {
			s.logger.Debug("requirements marked ordered", zap.String("po", po.PONumber), zap.Int("count", n))
		}
	}
	return po, nil
}

// ReceiveGoods 登记收货。
// 每行累计收货量不得超过订购量，超出则整单拒绝不写入；
// 收货记录写入成功后再逐行入库并更新加权平均成本（含到岸费用的有效单价），
// 入库失败不回滚收货，在结果中列出。
func (s *POService) ReceiveGoods(ctx context.Context, id, userID string, req *ReceiveGoodsRequest) (*ReceiveResult, error) {
	if req.WarehouseID == "" {
		return nil, validation("warehouse is required")
	}
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !po.Status.Receivable() {
		return nil, invalidState("PO %s cannot receive goods while %s", po.PONumber, po.Status)
	}

	// 先整体校验，同一行在一次收货中出现多次时合并计算
	pending := make(map[string]decimal.Decimal)
	var lines []entity.ReceivingLine
	for _, rl := range req.Lines {
		if rl.Quantity < 0 {
			return nil, validation("line %s: quantity must not be negative", rl.LineItemID)
		}
		if rl.Quantity == 0 {
			continue
		}
		item := po.FindLineItem(rl.LineItemID)
		if item == nil {
			return nil, validation("line %s does not belong to PO %s", rl.LineItemID, po.PONumber)
		}
		after := dec(item.QuantityReceived).Add(pending[rl.LineItemID]).Add(dec(rl.Quantity))
		if after.GreaterThan(dec(item.Quantity)) {
			return nil, validation("line %s: receiving %v exceeds remaining %v",
				rl.LineItemID, rl.Quantity, dec(item.Quantity).Sub(dec(item.QuantityReceived)).Sub(pending[rl.LineItemID]))
		}
		pending[rl.LineItemID] = pending[rl.LineItemID].Add(dec(rl.Quantity))
		lines = append(lines, rl)
	}
	if len(lines) == 0 {
		return nil, validation("receipt has no quantities")
	}

	for i := range po.LineItems {
		if q, ok := pending[po.LineItems[i].ID]; ok {
			po.LineItems[i].QuantityReceived = dec(po.LineItems[i].QuantityReceived).Add(q).InexactFloat64()
		}
	}
	now := s.now()
	po.ReceivingHistory = append(po.ReceivingHistory, entity.ReceivingRecord{
		ID:          newID(),
		WarehouseID: req.WarehouseID,
		Lines:       lines,
		Notes:       req.Notes,
		ReceivedBy:  userID,
		ReceivedAt:  now,
	})

	from := po.Status
	full := po.AllLinesReceived()
	if full {
		po.Status = entity.POStatusReceived
		po.ReceivedAt = &now
	} else {
		po.Status = entity.POStatusPartiallyReceived
	}
	if err := s.po.Update(ctx, po); err != nil {
		return nil, storeErr(err, "receive goods on PO "+po.PONumber)
	}

	var failures []string
	for _, rl := range lines {
		item := po.FindLineItem(rl.LineItemID)
		if item.InventoryItemID == "" {
			continue
		}
		err := s.inventory.ReceiveStock(ctx, inventory.ReceiveRequest{
			ItemID:      item.InventoryItemID,
			WarehouseID: req.WarehouseID,
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    rl.Quantity,
			POID:        po.ID,
			UserID:      userID,
			Note:        fmt.Sprintf("Received against %s", po.PONumber),
		})
		if err == nil {
			err = s.inventory.UpdateWeightedAverageCost(ctx, item.InventoryItemID, rl.Quantity, item.EffectiveUnitCost)
		}
		if err != nil {
			s.logger.Warn("inventory update on receipt failed",
				zap.String("po", po.PONumber),
				zap.String("item_id", item.InventoryItemID),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", item.InventoryItemID, err))
		}
	}

	s.emit(ctx, Event{
		Type: "po.goods_received", EntityType: "po", EntityID: po.ID, EntityCode: po.PONumber, UserID: userID,
		FromStatus: string(from), ToStatus: string(po.Status),
		Metadata: map[string]interface{}{"warehouse_id": req.WarehouseID, "lines": len(lines)},
	})
	if len(failures) > 0 {
		s.emit(ctx, Event{
			Type: "po.inventory_update_failed", EntityType: "po", EntityID: po.ID, EntityCode: po.PONumber,
			UserID: userID, Severity: entity.SeverityWarning,
			Metadata: map[string]interface{}{"failures": failures},
		})
	}

	if full && s.requirements != nil {
		if _, err := s.requirements.MarkReceivedForPO(ctx, po.ID, userID); err != nil {
			s.logger.Warn("mark requirements received failed", zap.String("po", po.PONumber), zap.Error(err))
		}
	}
	return &ReceiveResult{PO: po, FullyReceived: full, InventoryFailures: failures}, nil
}

// Close 关闭订单
func (s *POService) Close(ctx context.Context, id, userID string) (*entity.PurchaseOrder, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := po.Status
	if err := s.transition(po, entity.POStatusClosed); err != nil {
		return nil, err
	}
	now := s.now()
	po.ClosedAt = &now
	return s.save(ctx, po, userID, from, "po.closed", "")
}

// Cancel 取消订单，已关闭或已取消的不可再取消
func (s *POService) Cancel(ctx context.Context, id, userID, reason string) (*entity.PurchaseOrder, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := po.Status
	if err := s.transition(po, entity.POStatusCancelled); err != nil {
		return nil, err
	}
	now := s.now()
	po.CancelledAt = &now
	po.CancelReason = reason
	return s.save(ctx, po, userID, from, "po.cancelled", reason)
}

func (s *POService) transition(po *entity.PurchaseOrder, to entity.POStatus) error {
	if !po.Status.CanTransitionTo(to) {
		return invalidState("PO %s cannot move from %s to %s", po.PONumber, po.Status, to)
	}
	po.Status = to
	return nil
}

func (s *POService) save(ctx context.Context, po *entity.PurchaseOrder, userID string, from entity.POStatus, event, message string) (*entity.PurchaseOrder, error) {
	if err := s.po.Update(ctx, po); err != nil {
		return nil, storeErr(err, "update PO "+po.PONumber)
	}
	s.emit(ctx, Event{
		Type: event, EntityType: "po", EntityID: po.ID, EntityCode: po.PONumber, UserID: userID,
		FromStatus: string(from), ToStatus: string(po.Status), Message: message,
	})
	return po, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
