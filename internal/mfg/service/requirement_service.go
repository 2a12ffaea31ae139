package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequirementService 采购需求生成与按供应商合单
type RequirementService struct {
	requirements RequirementStore
	suppliers    SupplierStore
	mos          *MOService
	pos          *POService
	logger       *zap.Logger
	emitter
}

func NewRequirementService(reqs RequirementStore, suppliers SupplierStore, mos *MOService, pos *POService, events EventSink, logger *zap.Logger) *RequirementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequirementService{
		requirements: reqs,
		suppliers:    suppliers,
		mos:          mos,
		pos:          pos,
		logger:       logger,
		emitter:      emitter{sink: events, logger: logger},
	}
}

// ConsolidateRequest 把若干待处理需求合并成一张采购订单
type ConsolidateRequest struct {
	RequirementIDs []string            `json:"requirement_ids" binding:"required"`
	SupplierID     string              `json:"supplier_id" binding:"required"`
	Currency       string              `json:"currency"`
	Prefix         string              `json:"prefix"`
	LandedCosts    *entity.LandedCosts `json:"landed_costs"`
	ExpectedDate   *time.Time          `json:"expected_date"`
	Notes          string              `json:"notes"`
}

// ConsolidateResult 合单结果
type ConsolidateResult struct {
	PO           *entity.PurchaseOrder `json:"po"`
	Requirements int                   `json:"requirements"`
	LinkedMOIDs  []string              `json:"linked_mo_ids"`
}

// SupplierGroup 待处理需求按供应商分组
type SupplierGroup struct {
	SupplierID   string                          `json:"supplier_id"`
	SupplierName string                          `json:"supplier_name"`
	TotalValue   float64                         `json:"total_value"`
	MOIDs        []string                        `json:"mo_ids"`
	Requirements []entity.ProcurementRequirement `json:"requirements"`
}

// ConsolidationCandidate 可一并下单的其他MO
type ConsolidationCandidate struct {
	MOID           string   `json:"mo_id"`
	MONumber       string   `json:"mo_number"`
	RequirementIDs []string `json:"requirement_ids"`
	ItemCount      int      `json:"item_count"`
	TotalValue     float64  `json:"total_value"`
}

// === 读取 ===

func (s *RequirementService) Get(ctx context.Context, id string) (*entity.ProcurementRequirement, error) {
	req, err := s.requirements.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "requirement "+id)
	}
	return req, nil
}

func (s *RequirementService) ListByMO(ctx context.Context, moID string) ([]entity.ProcurementRequirement, error) {
	return s.requirements.FindByMO(ctx, moID)
}

// === 生成 ===

func generatable(mo *entity.ManufacturingOrder) error {
	switch mo.Status {
	case entity.MOStatusDraft, entity.MOStatusApproved, entity.MOStatusInProgress, entity.MOStatusOnHold:
		return nil
	}
	return invalidState("MO %s is %s", mo.MONumber, mo.Status)
}

// openByBOMEntry 已有未取消需求的BOM行
func (s *RequirementService) openByBOMEntry(ctx context.Context, moID string) (map[string]bool, error) {
	existing, err := s.requirements.FindByMO(ctx, moID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	open := make(map[string]bool, len(existing))
	for _, r := range existing {
		if r.Status != entity.RequirementCancelled {
			open[r.BOMEntryID] = true
		}
	}
	return open, nil
}

func newRequirement(mo *entity.ManufacturingOrder, entry *entity.BOMEntry, qty float64, source, userID string) *entity.ProcurementRequirement {
	return &entity.ProcurementRequirement{
		ID:                 newID(),
		MOID:               mo.ID,
		MONumber:           mo.MONumber,
		BOMEntryID:         entry.ID,
		InventoryItemID:    entry.InventoryItemID,
		SKU:                entry.SKU,
		Description:        entry.Name,
		Unit:               entry.Unit,
		Quantity:           qty,
		EstimatedUnitCost:  entry.UnitCost,
		EstimatedTotalCost: dec(qty).Mul(dec(entry.UnitCost)).Round(2).InexactFloat64(),
		SupplierID:         entry.SupplierID,
		SupplierName:       entry.SupplierName,
		Source:             source,
		Status:             entity.RequirementPending,
		Subsidiary:         mo.Subsidiary,
		CreatedBy:          userID,
	}
}

// GenerateFromMO 为外购BOM行（指定了供应商或类别为 special）生成待处理需求。
// 同一BOM行已有未取消的需求时跳过，重复调用不会重复生成。
func (s *RequirementService) GenerateFromMO(ctx context.Context, moID, userID string) ([]entity.ProcurementRequirement, error) {
	mo, err := s.mos.Get(ctx, moID)
	if err != nil {
		return nil, err
	}
	if err := generatable(mo); err != nil {
		return nil, err
	}
	open, err := s.openByBOMEntry(ctx, mo.ID)
	if err != nil {
		return nil, err
	}

	created := []entity.ProcurementRequirement{}
	for i := range mo.BOM {
		entry := &mo.BOM[i]
		if !entry.IsOutsourced() || open[entry.ID] {
			continue
		}
		req := newRequirement(mo, entry, entry.RequiredQty, entity.RequirementSourceBOM, userID)
		if err := s.requirements.Create(ctx, req); err != nil {
			return created, fmt.Errorf("create requirement for %s: %w", entry.Name, err)
		}
		created = append(created, *req)
	}

	if len(created) > 0 {
		s.emit(ctx, Event{
			Type: "requirements.generated", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
			Metadata: map[string]interface{}{"count": len(created), "source": entity.RequirementSourceBOM},
		})
	}
	return created, nil
}

// GenerateFromShortages 审批缺料时按缺口数量生成需求
func (s *RequirementService) GenerateFromShortages(ctx context.Context, moID, userID string, shortages []Shortage) ([]entity.ProcurementRequirement, error) {
	mo, err := s.mos.Get(ctx, moID)
	if err != nil {
		return nil, err
	}
	if err := generatable(mo); err != nil {
		return nil, err
	}
	open, err := s.openByBOMEntry(ctx, mo.ID)
	if err != nil {
		return nil, err
	}

	created := []entity.ProcurementRequirement{}
	for _, sh := range shortages {
		entry := mo.FindBOMEntry(sh.BOMEntryID)
		if entry == nil || open[entry.ID] {
			continue
		}
		qty := sh.Shortfall()
		if qty <= 0 {
			continue
		}
		req := newRequirement(mo, entry, qty, entity.RequirementSourceShortage, userID)
		if err := s.requirements.Create(ctx, req); err != nil {
			return created, fmt.Errorf("create requirement for %s: %w", entry.Name, err)
		}
		open[entry.ID] = true
		created = append(created, *req)
	}

	if len(created) > 0 {
		s.emit(ctx, Event{
			Type: "requirements.generated", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
			Metadata: map[string]interface{}{"count": len(created), "source": entity.RequirementSourceShortage},
		})
	}
	return created, nil
}

// === 合单 ===

// Consolidate 合单。所有需求必须待处理且未指定供应商或就是目标供应商，
// 任何一条不满足都直接返回错误、不产生写入。
// 成功后创建草稿PO、整批标记需求已加入PO、并在各来源MO上挂接PO。
func (s *RequirementService) Consolidate(ctx context.Context, userID string, in *ConsolidateRequest) (*ConsolidateResult, error) {
	if in.SupplierID == "" {
		return nil, validation("supplier is required")
	}
	ids := uniqueStrings(in.RequirementIDs)
	if len(ids) == 0 {
		return nil, validation("at least one requirement is required")
	}

	found, err := s.requirements.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	byID := make(map[string]entity.ProcurementRequirement, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	reqs := make([]entity.ProcurementRequirement, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
		}
		if r.Status != entity.RequirementPending {
			return nil, invalidState("requirement %s is %s", id, r.Status)
		}
		if r.SupplierID != "" && r.SupplierID != in.SupplierID {
			return nil, fmt.Errorf("%w: requirement %s belongs to supplier %s, not %s",
				ErrSupplierMismatch, id, r.SupplierID, in.SupplierID)
		}
		reqs = append(reqs, r)
	}

	supplier, err := s.suppliers.FindByID(ctx, in.SupplierID)
	if err != nil {
		return nil, storeErr(err, "supplier "+in.SupplierID)
	}
	if !supplier.IsActive() {
		return nil, validation("supplier %s is not active", supplier.Name)
	}

	lines := make([]POLineItemInput, 0, len(reqs))
	var moIDs []string
	for _, r := range reqs {
		lines = append(lines, POLineItemInput{
			ID:              newID(),
			RequirementID:   r.ID,
			MOID:            r.MOID,
			MONumber:        r.MONumber,
			InventoryItemID: r.InventoryItemID,
			SKU:             r.SKU,
			Description:     fmt.Sprintf("%s [%s]", r.Description, r.MONumber),
			Unit:            r.Unit,
			Quantity:        r.Quantity,
			UnitCost:        r.EstimatedUnitCost,
		})
		moIDs = append(moIDs, r.MOID)
	}
	moIDs = uniqueStrings(moIDs)

	currency := in.Currency
	if currency == "" {
		currency = supplier.Currency
	}
	po, err := s.pos.Create(ctx, userID, &CreatePORequest{
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Currency:     currency,
		Prefix:       in.Prefix,
		Subsidiary:   reqs[0].Subsidiary,
		LineItems:    lines,
		LandedCosts:  in.LandedCosts,
		LinkedMOIDs:  moIDs,
		ExpectedDate: in.ExpectedDate,
		Notes:        in.Notes,
	})
	if err != nil {
		return nil, err
	}

	links := make([]repository.RequirementLink, 0, len(po.LineItems))
	for _, l := range po.LineItems {
		links = append(links, repository.RequirementLink{RequirementID: l.RequirementID, POID: po.ID, POLineItemID: l.ID})
	}
	if err := s.requirements.MarkAddedToPO(ctx, links); err != nil {
		// 另一次合单已占用其中的需求，撤销本次新建的PO
		if _, cancelErr := s.pos.Cancel(ctx, po.ID, userID, "requirements consolidated concurrently"); cancelErr != nil {
			s.logger.Warn("cancel orphan PO failed", zap.String("po", po.PONumber), zap.Error(cancelErr))
		}
		return nil, storeErr(err, "mark requirements added to "+po.PONumber)
	}

	for _, moID := range moIDs {
		if err := s.mos.LinkPurchaseOrder(ctx, moID, po.ID); err != nil {
			s.logger.Warn("link PO to MO failed", zap.String("po", po.PONumber), zap.String("mo_id", moID), zap.Error(err))
		}
	}

	s.emit(ctx, Event{
		Type: "requirements.consolidated", EntityType: "po", EntityID: po.ID, EntityCode: po.PONumber, UserID: userID,
		Metadata: map[string]interface{}{"requirements": len(reqs), "mo_ids": moIDs, "supplier_id": supplier.ID},
	})
	return &ConsolidateResult{PO: po, Requirements: len(reqs), LinkedMOIDs: moIDs}, nil
}

// GroupPendingBySupplier 待处理需求按供应商汇总，金额高的在前；未指定供应商的单独一组
func (s *RequirementService) GroupPendingBySupplier(ctx context.Context) ([]SupplierGroup, error) {
	pending, err := s.requirements.FindPending(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list pending requirements: %w", err)
	}
	groups := make(map[string]*SupplierGroup)
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, r := range pending {
		g, ok := groups[r.SupplierID]
		if !ok {
			g = &SupplierGroup{SupplierID: r.SupplierID, SupplierName: r.SupplierName}
			groups[r.SupplierID] = g
			order = append(order, r.SupplierID)
		}
		g.Requirements = append(g.Requirements, r)
		g.MOIDs = append(g.MOIDs, r.MOID)
		totals[r.SupplierID] = totals[r.SupplierID].Add(dec(r.EstimatedTotalCost))
	}

	out := make([]SupplierGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.MOIDs = uniqueStrings(g.MOIDs)
		g.TotalValue = totals[key].Round(2).InexactFloat64()
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalValue > out[j].TotalValue
	})
	return out, nil
}

// SmartConsolidationCandidates 同一供应商下其他MO的待处理需求，按金额降序
func (s *RequirementService) SmartConsolidationCandidates(ctx context.Context, supplierID, excludeMOID string) ([]ConsolidationCandidate, error) {
	if supplierID == "" {
		return nil, validation("supplier is required")
	}
	pending, err := s.requirements.FindPending(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list pending requirements: %w", err)
	}
	byMO := make(map[string]*ConsolidationCandidate)
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, r := range pending {
		if r.MOID == excludeMOID {
			continue
		}
		c, ok := byMO[r.MOID]
		if !ok {
			c = &ConsolidationCandidate{MOID: r.MOID, MONumber: r.MONumber}
			byMO[r.MOID] = c
			order = append(order, r.MOID)
		}
		c.RequirementIDs = append(c.RequirementIDs, r.ID)
		c.ItemCount++
		totals[r.MOID] = totals[r.MOID].Add(dec(r.EstimatedTotalCost))
	}

	out := make([]ConsolidationCandidate, 0, len(order))
	for _, id := range order {
		c := byMO[id]
		c.TotalValue = totals[id].Round(2).InexactFloat64()
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalValue != out[j].TotalValue {
			return out[i].TotalValue > out[j].TotalValue
		}
		return out[i].MONumber < out[j].MONumber
	})
	return out, nil
}

// === 状态回写 ===

// MarkOrderedForPO PO发出后把已加入的需求标记为已下单
func (s *RequirementService) MarkOrderedForPO(ctx context.Context, poID, userID string) (int, error) {
	return s.advanceForPO(ctx, poID, entity.RequirementOrdered, entity.RequirementAddedToPO)
}

// MarkReceivedForPO PO全部收货后把需求标记为已收货
func (s *RequirementService) MarkReceivedForPO(ctx context.Context, poID, userID string) (int, error) {
	return s.advanceForPO(ctx, poID, entity.RequirementReceived, entity.RequirementAddedToPO, entity.RequirementOrdered)
}

func (s *RequirementService) advanceForPO(ctx context.Context, poID string, to entity.RequirementStatus, from ...entity.RequirementStatus) (int, error) {
	reqs, err := s.requirements.FindByPO(ctx, poID)
	if err != nil {
		return 0, fmt.Errorf("list requirements for PO %s: %w", poID, err)
	}
	var errs []error
	n := 0
	for _, r := range reqs {
		eligible := false
		for _, f := range from {
			if r.Status == f {
				eligible = true
				break
			}
		}
		if !eligible {
			continue
		}
		if err := s.requirements.UpdateStatus(ctx, r.ID, r.Status, to, ""); err != nil {
			errs = append(errs, fmt.Errorf("requirement %s: %w", r.ID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Cancel 人工取消需求
func (s *RequirementService) Cancel(ctx context.Context, id, userID, reason string) (*entity.ProcurementRequirement, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanAdvanceTo(entity.RequirementCancelled) {
		return nil, invalidState("requirement %s is %s", id, req.Status)
	}
	if err := s.requirements.UpdateStatus(ctx, id, req.Status, entity.RequirementCancelled, reason); err != nil {
		return nil, storeErr(err, "cancel requirement "+id)
	}
	from := req.Status
	req.Status = entity.RequirementCancelled
	req.CancelReason = reason
	s.emit(ctx, Event{
		Type: "requirement.cancelled", EntityType: "requirement", EntityID: req.ID, EntityCode: req.MONumber,
		UserID: userID, FromStatus: string(from), ToStatus: string(req.Status), Message: reason,
	})
	return req, nil
}
