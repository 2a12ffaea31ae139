package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/inventory"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxWriteRetries 乐观锁冲突时读改写的最大重试次数
const maxWriteRetries = 3

// MOService 生产订单生命周期
type MOService struct {
	mo         MOStore
	inventory  inventory.Adapter
	numbers    numberer
	subsidiary string
	logger     *zap.Logger
	now        func() time.Time
	emitter
}

func NewMOService(mo MOStore, inv inventory.Adapter, seq SequenceStore, events EventSink, subsidiary string, logger *zap.Logger) *MOService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MOService{
		mo:         mo,
		inventory:  inv,
		numbers:    numberer{seq: seq},
		subsidiary: subsidiary,
		logger:     logger,
		now:        time.Now,
		emitter:    emitter{sink: events, logger: logger},
	}
}

// === 请求结构 ===

type BOMEntryInput struct {
	InventoryItemID string  `json:"inventory_item_id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name" binding:"required"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	Unit            string  `json:"unit"`
	RequiredQty     float64 `json:"required_qty" binding:"required,gt=0"`
	UnitCost        float64 `json:"unit_cost" binding:"gte=0"`
	SupplierID      string  `json:"supplier_id"`
	SupplierName    string  `json:"supplier_name"`
}

// CreateMORequest 设计交接创建生产订单
type CreateMORequest struct {
	DesignItemID       string          `json:"design_item_id"`
	DesignItemName     string          `json:"design_item_name" binding:"required"`
	Quantity           float64         `json:"quantity"`
	Priority           entity.Priority `json:"priority"`
	Subsidiary         string          `json:"subsidiary"`
	WarehouseID        string          `json:"warehouse_id"`
	EstimatedLaborCost float64         `json:"estimated_labor_cost"`
	PlannedStart       *time.Time      `json:"planned_start"`
	PlannedEnd         *time.Time      `json:"planned_end"`
	Notes              string          `json:"notes"`
	BOM                []BOMEntryInput `json:"bom"`
}

// ConsumptionInput 物料消耗
type ConsumptionInput struct {
	InventoryItemID string  `json:"inventory_item_id" binding:"required"`
	WarehouseID     string  `json:"warehouse_id" binding:"required"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
}

// QualityCheckInput 质检结果
type QualityCheckInput struct {
	Passed    bool     `json:"passed"`
	Inspector string   `json:"inspector"`
	Defects   []string `json:"defects"`
	Notes     string   `json:"notes"`
}

// Shortage 预留失败的物料
type Shortage struct {
	BOMEntryID      string  `json:"bom_entry_id"`
	InventoryItemID string  `json:"inventory_item_id"`
	Name            string  `json:"name"`
	Required        float64 `json:"required"`
	Available       float64 `json:"available"`
	Reason          string  `json:"reason,omitempty"`
}

// Shortfall 缺口数量
func (s Shortage) Shortfall() float64 {
	if s.Available >= s.Required {
		return 0
	}
	if s.Available < 0 {
		return s.Required
	}
	return s.Required - s.Available
}

// ApproveResult 审批结果；有缺料时 Success=false，订单保持草稿
type ApproveResult struct {
	MO           *entity.ManufacturingOrder   `json:"mo"`
	Success      bool                         `json:"success"`
	Shortages    []Shortage                   `json:"shortages"`
	Reservations []entity.MaterialReservation `json:"reservations"`
}

// CancelResult 取消结果，释放失败不阻止取消
type CancelResult struct {
	MO              *entity.ManufacturingOrder `json:"mo"`
	Released        int                        `json:"released"`
	ReleaseFailures []string                   `json:"release_failures,omitempty"`
}

// === 读取 ===

func (s *MOService) Get(ctx context.Context, id string) (*entity.ManufacturingOrder, error) {
	mo, err := s.mo.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "MO "+id)
	}
	return mo, nil
}

// MaterialAvailability BOM行的跨仓库存情况
type MaterialAvailability struct {
	BOMEntryID      string  `json:"bom_entry_id"`
	InventoryItemID string  `json:"inventory_item_id"`
	Name            string  `json:"name"`
	Required        float64 `json:"required"`
	Reserved        float64 `json:"reserved"`
	TotalOnHand     float64 `json:"total_on_hand"`
	TotalAvailable  float64 `json:"total_available"`
	Sufficient      bool    `json:"sufficient"`
}

// CheckAvailability 审批前查看各物料的汇总库存，已为本单预留的数量视为满足
func (s *MOService) CheckAvailability(ctx context.Context, id string) ([]MaterialAvailability, error) {
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]MaterialAvailability, 0, len(mo.BOM))
	for _, entry := range mo.BOM {
		if entry.InventoryItemID == "" {
			continue
		}
		row := MaterialAvailability{
			BOMEntryID:      entry.ID,
			InventoryItemID: entry.InventoryItemID,
			Name:            entry.Name,
			Required:        entry.RequiredQty,
		}
		if r := mo.ActiveReservationFor(entry.ID); r != nil {
			row.Reserved = r.Quantity
		}
		agg, err := s.inventory.AggregatedStock(ctx, entry.InventoryItemID)
		if err != nil {
			return nil, fmt.Errorf("aggregate stock %s: %w", entry.InventoryItemID, err)
		}
		row.TotalOnHand = agg.TotalOnHand
		row.TotalAvailable = agg.TotalAvailable
		row.Sufficient = row.Reserved+row.TotalAvailable >= row.Required
		out = append(out, row)
	}
	return out, nil
}

func (s *MOService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ManufacturingOrder, int64, error) {
	return s.mo.FindAll(ctx, page, pageSize, filters)
}

// === 创建 ===

// Create 创建草稿生产订单
func (s *MOService) Create(ctx context.Context, userID string, req *CreateMORequest) (*entity.ManufacturingOrder, error) {
	if req.DesignItemName == "" {
		return nil, validation("design item name is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}
	if !priority.Valid() {
		return nil, validation("unknown priority %q", priority)
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, validation("quantity must be positive")
	}
	if req.EstimatedLaborCost < 0 {
		return nil, validation("estimated labor cost must not be negative")
	}

	bom := make([]entity.BOMEntry, 0, len(req.BOM))
	material := decimal.Zero
	for i, in := range req.BOM {
		if in.Name == "" {
			return nil, validation("BOM line %d: name is required", i+1)
		}
		if in.RequiredQty <= 0 {
			return nil, validation("BOM line %d: quantity must be positive", i+1)
		}
		if in.UnitCost < 0 {
			return nil, validation("BOM line %d: unit cost must not be negative", i+1)
		}
		total := dec(in.RequiredQty).Mul(dec(in.UnitCost)).Round(2)
		material = material.Add(total)
		bom = append(bom, entity.BOMEntry{
			ID:              newID(),
			InventoryItemID: in.InventoryItemID,
			SKU:             in.SKU,
			Name:            in.Name,
			Description:     in.Description,
			Category:        in.Category,
			Unit:            in.Unit,
			RequiredQty:     in.RequiredQty,
			UnitCost:        in.UnitCost,
			TotalCost:       total.InexactFloat64(),
			SupplierID:      in.SupplierID,
			SupplierName:    in.SupplierName,
		})
	}

	subsidiary := req.Subsidiary
	if subsidiary == "" {
		subsidiary = s.subsidiary
	}
	now := s.now()
	number, err := s.numbers.next(ctx, "mo", subsidiary, moNumberPrefix(now), s.mo.CountByNumberPrefix)
	if err != nil {
		return nil, err
	}

	labor := dec(req.EstimatedLaborCost).Round(2)
	mo := &entity.ManufacturingOrder{
		ID:             newID(),
		MONumber:       number,
		Subsidiary:     subsidiary,
		DesignItemID:   req.DesignItemID,
		DesignItemName: req.DesignItemName,
		Quantity:       qty,
		Status:         entity.MOStatusDraft,
		CurrentStage:   entity.StageQueued,
		Priority:       priority,
		WarehouseID:    req.WarehouseID,
		BOM:            bom,
		CostSummary: entity.CostSummary{
			MaterialCost: material.InexactFloat64(),
			LaborCost:    labor.InexactFloat64(),
			TotalCost:    material.Add(labor).InexactFloat64(),
		},
		PlannedStart: req.PlannedStart,
		PlannedEnd:   req.PlannedEnd,
		Notes:        req.Notes,
		CreatedBy:    userID,
	}
	if err := s.mo.Create(ctx, mo); err != nil {
		return nil, fmt.Errorf("create MO: %w", err)
	}

	s.emit(ctx, Event{
		Type: "mo.created", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
		UserID: userID, ToStatus: string(mo.Status),
	})
	return mo, nil
}

// === 审批与物料预留 ===

// Approve 为每个关联库存物料的BOM行预留库存。
// 缺料不是错误：已做的预留保留，订单停留在草稿并返回缺料清单。
// 写回时发生版本冲突，会释放本次刚做的预留再返回 ErrConflict。
func (s *MOService) Approve(ctx context.Context, id, warehouseID, userID string) (*ApproveResult, error) {
	if warehouseID == "" {
		return nil, validation("warehouse is required")
	}
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.Status != entity.MOStatusDraft {
		return nil, invalidState("MO %s cannot be approved from %s", mo.MONumber, mo.Status)
	}

	now := s.now()
	var made []entity.MaterialReservation
	shortages := []Shortage{}
	for _, entry := range mo.BOM {
		if entry.InventoryItemID == "" {
			continue
		}
		if mo.ActiveReservationFor(entry.ID) != nil {
			continue
		}
		res, err := s.inventory.Reserve(ctx, inventory.ReserveRequest{
			ItemID:      entry.InventoryItemID,
			WarehouseID: warehouseID,
			SKU:         entry.SKU,
			Name:        entry.Name,
			Quantity:    entry.RequiredQty,
			ReferenceID: mo.ID,
			UserID:      userID,
		})
		if err != nil {
			shortages = append(shortages, Shortage{
				BOMEntryID: entry.ID, InventoryItemID: entry.InventoryItemID, Name: entry.Name,
				Required: entry.RequiredQty, Reason: err.Error(),
			})
			continue
		}
		if !res.Success {
			shortages = append(shortages, Shortage{
				BOMEntryID: entry.ID, InventoryItemID: entry.InventoryItemID, Name: entry.Name,
				Required: entry.RequiredQty, Available: res.AvailableQty,
			})
			continue
		}
		made = append(made, entity.MaterialReservation{
			ID:              newID(),
			BOMEntryID:      entry.ID,
			InventoryItemID: entry.InventoryItemID,
			WarehouseID:     warehouseID,
			StockLevelID:    res.StockLevelID,
			Quantity:        entry.RequiredQty,
			Status:          entity.ReservationActive,
			ReservedBy:      userID,
			ReservedAt:      now,
		})
	}

	mo.MaterialReservations = append(mo.MaterialReservations, made...)
	mo.WarehouseID = warehouseID
	if len(shortages) == 0 {
		mo.Status = entity.MOStatusApproved
		mo.ApprovedBy = userID
		mo.ApprovedAt = &now
	}

	if err := s.mo.Update(ctx, mo); err != nil {
		s.releaseAll(ctx, mo, made, userID)
		return nil, storeErr(err, "approve MO "+mo.MONumber)
	}

	if len(shortages) > 0 {
		s.emit(ctx, Event{
			Type: "mo.approval_shortage", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
			UserID: userID, Severity: entity.SeverityWarning,
			Message:  fmt.Sprintf("%d material shortage(s)", len(shortages)),
			Metadata: map[string]interface{}{"shortages": shortages, "reserved": len(made)},
		})
	} else {
		s.emit(ctx, Event{
			Type: "mo.approved", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
			UserID: userID, FromStatus: string(entity.MOStatusDraft), ToStatus: string(mo.Status),
			Metadata: map[string]interface{}{"reserved": len(made), "warehouse_id": warehouseID},
		})
	}

	return &ApproveResult{MO: mo, Success: len(shortages) == 0, Shortages: shortages, Reservations: made}, nil
}

// releaseAll 逐条释放，失败只记录，返回失败描述
func (s *MOService) releaseAll(ctx context.Context, mo *entity.ManufacturingOrder, rs []entity.MaterialReservation, userID string) []string {
	var failures []string
	for _, r := range rs {
		err := s.inventory.Release(ctx, inventory.MovementRequest{
			ItemID:      r.InventoryItemID,
			WarehouseID: r.WarehouseID,
			Quantity:    r.Quantity,
			ReferenceID: mo.ID,
			UserID:      userID,
		})
		if err != nil {
			s.logger.Warn("release reservation failed",
				zap.String("mo", mo.MONumber),
				zap.String("item_id", r.InventoryItemID),
				zap.Float64("quantity", r.Quantity),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", r.InventoryItemID, err))
		}
	}
	return failures
}

// === 生产流转 ===

// StartProduction 开始生产
func (s *MOService) StartProduction(ctx context.Context, id, userID string) (*entity.ManufacturingOrder, error) {
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.Status != entity.MOStatusApproved {
		return nil, invalidState("MO %s cannot start production from %s", mo.MONumber, mo.Status)
	}
	now := s.now()
	mo.Status = entity.MOStatusInProgress
	mo.ActualStart = &now
	mo.StageHistory = append(mo.StageHistory, entity.StageTransition{
		ToStage:        mo.CurrentStage,
		TransitionedBy: userID,
		TransitionedAt: now,
		Notes:          "production started",
	})
	if err := s.mo.Update(ctx, mo); err != nil {
		return nil, storeErr(err, "start MO "+mo.MONumber)
	}
	s.emit(ctx, Event{
		Type: "mo.production_started", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
		UserID: userID, FromStatus: string(entity.MOStatusApproved), ToStatus: string(mo.Status),
	})
	return mo, nil
}

// AdvanceStage 推进一道工序；到达终点工序时订单同时完工
func (s *MOService) AdvanceStage(ctx context.Context, id, userID, notes string) (*entity.ManufacturingOrder, error) {
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.CurrentStage.IsTerminal() {
		return nil, invalidTransition("MO %s is already at stage %s", mo.MONumber, mo.CurrentStage)
	}
	if mo.Status != entity.MOStatusInProgress {
		return nil, invalidState("MO %s cannot advance stage while %s", mo.MONumber, mo.Status)
	}
	next, ok := mo.CurrentStage.Next()
	if !ok {
		return nil, invalidTransition("MO %s has unknown stage %s", mo.MONumber, mo.CurrentStage)
	}

	now := s.now()
	from := mo.CurrentStage
	mo.StageHistory = append(mo.StageHistory, entity.StageTransition{
		FromStage:      from,
		ToStage:        next,
		TransitionedBy: userID,
		TransitionedAt: now,
		Notes:          notes,
	})
	mo.CurrentStage = next
	if next.IsTerminal() {
		mo.Status = entity.MOStatusCompleted
		mo.ActualEnd = &now
	}

	if err := s.mo.Update(ctx, mo); err != nil {
		return nil, storeErr(err, "advance MO "+mo.MONumber)
	}

	s.emit(ctx, Event{
		Type: "mo.stage_advanced", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
		UserID: userID, Metadata: map[string]interface{}{"from_stage": from, "to_stage": next},
	})
	if mo.Status == entity.MOStatusCompleted {
		s.emit(ctx, Event{
			Type: "mo.completed", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
			UserID: userID, FromStatus: string(entity.MOStatusInProgress), ToStatus: string(mo.Status),
		})
	}
	return mo, nil
}

// RecordConsumption 记录物料消耗，按当前工序打标签。
// 逐条调用库存消耗，某条失败时之前的消耗保留并返回错误。
func (s *MOService) RecordConsumption(ctx context.Context, id, userID string, items []ConsumptionInput) (*entity.ManufacturingOrder, error) {
	if len(items) == 0 {
		return nil, validation("at least one consumption line is required")
	}
	for i, in := range items {
		if in.InventoryItemID == "" || in.WarehouseID == "" {
			return nil, validation("consumption line %d: item and warehouse are required", i+1)
		}
		if in.Quantity <= 0 {
			return nil, validation("consumption line %d: quantity must be positive", i+1)
		}
	}

	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch mo.Status {
	case entity.MOStatusApproved, entity.MOStatusInProgress, entity.MOStatusOnHold:
	default:
		return nil, invalidState("MO %s cannot record consumption while %s", mo.MONumber, mo.Status)
	}

	now := s.now()
	var consumeErr error
	var added []entity.MaterialConsumption
	for _, in := range items {
		err := s.inventory.Consume(ctx, inventory.MovementRequest{
			ItemID:      in.InventoryItemID,
			WarehouseID: in.WarehouseID,
			Quantity:    in.Quantity,
			ReferenceID: mo.ID,
			UserID:      userID,
		})
		if err != nil {
			consumeErr = fmt.Errorf("consume %s: %w", in.InventoryItemID, err)
			break
		}
		c := entity.MaterialConsumption{
			ID:              newID(),
			InventoryItemID: in.InventoryItemID,
			WarehouseID:     in.WarehouseID,
			Quantity:        in.Quantity,
			Stage:           mo.CurrentStage,
			RecordedBy:      userID,
			RecordedAt:      now,
		}
		if entry := mo.FindBOMEntryByItem(in.InventoryItemID); entry != nil {
			c.BOMEntryID = entry.ID
			c.UnitCost = entry.UnitCost
		}
		added = append(added, c)
	}

	if len(added) > 0 {
		mo, err = s.saveConsumptions(ctx, mo, added, now)
		if err != nil {
			return nil, err
		}
		s.emit(ctx, Event{
			Type: "mo.material_consumed", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
			UserID: userID, Metadata: map[string]interface{}{"lines": len(added), "stage": mo.CurrentStage},
		})
	}
	if consumeErr != nil {
		return nil, consumeErr
	}
	return mo, nil
}

// saveConsumptions 库存已经扣减，写回MO时遇到版本冲突要重读后重新追加，不能丢记录
func (s *MOService) saveConsumptions(ctx context.Context, mo *entity.ManufacturingOrder, added []entity.MaterialConsumption, now time.Time) (*entity.ManufacturingOrder, error) {
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		if attempt > 0 {
			fresh, err := s.Get(ctx, mo.ID)
			if err != nil {
				return nil, err
			}
			mo = fresh
		}
		for _, c := range added {
			mo.MaterialConsumptions = append(mo.MaterialConsumptions, c)
			markConsumedReservations(mo, c.InventoryItemID, c.WarehouseID, now)
		}
		err := s.mo.Update(ctx, mo)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, storeErr(err, "record consumption on MO "+mo.MONumber)
		}
		return mo, nil
	}
	s.logger.Error("consumption not recorded on MO after retries",
		zap.String("mo", mo.MONumber),
		zap.Int("lines", len(added)))
	return nil, fmt.Errorf("record consumption on MO %s: %w", mo.MONumber, ErrConflict)
}

// markConsumedReservations 累计消耗达到预留数量时把预留标记为已消耗
func markConsumedReservations(mo *entity.ManufacturingOrder, itemID, warehouseID string, now time.Time) {
	consumed := decimal.Zero
	for _, c := range mo.MaterialConsumptions {
		if c.InventoryItemID == itemID && c.WarehouseID == warehouseID {
			consumed = consumed.Add(dec(c.Quantity))
		}
	}
	for i := range mo.MaterialReservations {
		r := &mo.MaterialReservations[i]
		if r.Status != entity.ReservationActive || r.InventoryItemID != itemID || r.WarehouseID != warehouseID {
			continue
		}
		if consumed.GreaterThanOrEqual(dec(r.Quantity)) {
			r.Status = entity.ReservationConsumed
			r.ConsumedAt = &now
			consumed = consumed.Sub(dec(r.Quantity))
		}
	}
}

// RecordQualityCheck 覆盖质检结果；不合格是需要上报的事件，不是错误
func (s *MOService) RecordQualityCheck(ctx context.Context, id, userID string, in *QualityCheckInput) (*entity.ManufacturingOrder, error) {
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.Status != entity.MOStatusInProgress && mo.Status != entity.MOStatusCompleted {
		return nil, invalidState("MO %s cannot record quality check while %s", mo.MONumber, mo.Status)
	}
	mo.QualityCheck = &entity.QualityCheck{
		Passed:    in.Passed,
		Inspector: in.Inspector,
		Defects:   in.Defects,
		Notes:     in.Notes,
		CheckedBy: userID,
		CheckedAt: s.now(),
	}
	if err := s.mo.Update(ctx, mo); err != nil {
		return nil, storeErr(err, "record QC on MO "+mo.MONumber)
	}

	ev := Event{
		Type: "mo.qc_passed", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
	}
	if !in.Passed {
		ev.Type = "mo.qc_failed"
		ev.Severity = entity.SeverityHigh
		ev.Message = in.Notes
		ev.Metadata = map[string]interface{}{"defects": in.Defects, "inspector": in.Inspector}
	}
	s.emit(ctx, ev)
	return mo, nil
}

// Hold 暂停生产
func (s *MOService) Hold(ctx context.Context, id, userID, reason string) (*entity.ManufacturingOrder, error) {
	return s.toggleHold(ctx, id, userID, reason, entity.MOStatusInProgress, entity.MOStatusOnHold)
}

// Resume 恢复生产
func (s *MOService) Resume(ctx context.Context, id, userID string) (*entity.ManufacturingOrder, error) {
	return s.toggleHold(ctx, id, userID, "", entity.MOStatusOnHold, entity.MOStatusInProgress)
}

func (s *MOService) toggleHold(ctx context.Context, id, userID, reason string, from, to entity.MOStatus) (*entity.ManufacturingOrder, error) {
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.Status != from {
		return nil, invalidState("MO %s must be %s, is %s", mo.MONumber, from, mo.Status)
	}
	mo.Status = to
	mo.HoldReason = reason
	if err := s.mo.Update(ctx, mo); err != nil {
		return nil, storeErr(err, "update MO "+mo.MONumber)
	}
	action := "mo.resumed"
	if to == entity.MOStatusOnHold {
		action = "mo.held"
	}
	s.emit(ctx, Event{
		Type: action, EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
		FromStatus: string(from), ToStatus: string(to), Message: reason,
	})
	return mo, nil
}

// Cancel 取消订单并释放全部有效预留。
// 先以版本号为条件写入“已取消+已释放”，再对胜出快照里的预留逐条释放，保证每条只释放一次；
// 释放失败只记录，不阻止取消。
func (s *MOService) Cancel(ctx context.Context, id, userID, reason string) (*CancelResult, error) {
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mo.Status.CanTransitionTo(entity.MOStatusCancelled) {
		return nil, invalidState("MO %s cannot be cancelled from %s", mo.MONumber, mo.Status)
	}

	now := s.now()
	var active []entity.MaterialReservation
	for i := range mo.MaterialReservations {
		r := &mo.MaterialReservations[i]
		if r.Status == entity.ReservationActive {
			active = append(active, *r)
			r.Status = entity.ReservationReleased
			r.ReleasedAt = &now
		}
	}
	from := mo.Status
	mo.Status = entity.MOStatusCancelled
	mo.CancelReason = reason
	mo.CancelledAt = &now

	if err := s.mo.Update(ctx, mo); err != nil {
		return nil, storeErr(err, "cancel MO "+mo.MONumber)
	}

	failures := s.releaseAll(ctx, mo, active, userID)
	if len(failures) > 0 {
		s.emit(ctx, Event{
			Type: "mo.release_failed", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber,
			UserID: userID, Severity: entity.SeverityWarning,
			Metadata: map[string]interface{}{"failures": failures},
		})
	}
	s.emit(ctx, Event{
		Type: "mo.cancelled", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
		FromStatus: string(from), ToStatus: string(mo.Status), Message: reason,
		Metadata: map[string]interface{}{"released": len(active)},
	})
	return &CancelResult{MO: mo, Released: len(active), ReleaseFailures: failures}, nil
}

// Reprioritize 调整优先级
func (s *MOService) Reprioritize(ctx context.Context, id, userID string, priority entity.Priority) (*entity.ManufacturingOrder, error) {
	if !priority.Valid() {
		return nil, validation("unknown priority %q", priority)
	}
	mo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.Status.IsTerminal() {
		return nil, invalidState("MO %s is %s", mo.MONumber, mo.Status)
	}
	prev := mo.Priority
	mo.Priority = priority
	if err := s.mo.Update(ctx, mo); err != nil {
		return nil, storeErr(err, "reprioritize MO "+mo.MONumber)
	}
	s.emit(ctx, Event{
		Type: "mo.reprioritized", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
		Metadata: map[string]interface{}{"from": prev, "to": priority},
	})
	return mo, nil
}

// LinkPurchaseOrder 把采购订单挂到MO上，已存在则跳过；版本冲突时重读重试
func (s *MOService) LinkPurchaseOrder(ctx context.Context, moID, poID string) error {
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		mo, err := s.Get(ctx, moID)
		if err != nil {
			return err
		}
		if mo.HasLinkedPO(poID) {
			return nil
		}
		mo.LinkedPOIDs = append(mo.LinkedPOIDs, poID)
		err = s.mo.Update(ctx, mo)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		return storeErr(err, "link PO to MO "+mo.MONumber)
	}
	return fmt.Errorf("link PO %s to MO %s: %w", poID, moID, ErrConflict)
}
