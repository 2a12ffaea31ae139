package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultVarianceTolerance 默认容差（百分比）
const DefaultVarianceTolerance = 5.0

// Classify 差异百分比分级：低于 -T 为有利，超过 2T 为严重，超过 T 为不利，其余在容差内
func Classify(percent, tolerance float64) entity.VarianceSeverity {
	switch {
	case percent < -tolerance:
		return entity.VarianceFavorable
	case percent > 2*tolerance:
		return entity.VarianceCritical
	case percent > tolerance:
		return entity.VarianceUnfavorable
	}
	return entity.VarianceWithinTolerance
}

// LaborInput 工时登记
type LaborInput struct {
	Stage      entity.ProductionStage `json:"stage"`
	Worker     string                 `json:"worker"`
	Hours      float64                `json:"hours" binding:"required,gt=0"`
	HourlyRate float64                `json:"hourly_rate" binding:"gte=0"`
	Notes      string                 `json:"notes"`
}

// CostVarianceService 预估与实际成本对比
type CostVarianceService struct {
	mos       MOStore
	labor     LaborStore
	variances VarianceStore
	tolerance float64
	logger    *zap.Logger
	now       func() time.Time
	emitter
}

func NewCostVarianceService(mos MOStore, labor LaborStore, variances VarianceStore, tolerance float64, events EventSink, logger *zap.Logger) *CostVarianceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance <= 0 {
		tolerance = DefaultVarianceTolerance
	}
	return &CostVarianceService{
		mos:       mos,
		labor:     labor,
		variances: variances,
		tolerance: tolerance,
		logger:    logger,
		now:       time.Now,
		emitter:   emitter{sink: events, logger: logger},
	}
}

// RecordLabor 登记工时，未指定工序时记到当前工序
func (s *CostVarianceService) RecordLabor(ctx context.Context, moID, userID string, in *LaborInput) (*entity.LaborEntry, error) {
	if in.Hours <= 0 {
		return nil, validation("hours must be positive")
	}
	if in.HourlyRate < 0 {
		return nil, validation("hourly rate must not be negative")
	}
	mo, err := s.mos.FindByID(ctx, moID)
	if err != nil {
		return nil, storeErr(err, "MO "+moID)
	}
	if mo.Status == entity.MOStatusCancelled || mo.Status == entity.MOStatusDraft {
		return nil, invalidState("MO %s cannot record labor while %s", mo.MONumber, mo.Status)
	}
	stage := in.Stage
	if stage == "" {
		stage = mo.CurrentStage
	}
	if !stage.Valid() {
		return nil, validation("unknown stage %q", stage)
	}

	entry := &entity.LaborEntry{
		ID:         newID(),
		MOID:       mo.ID,
		Stage:      stage,
		Worker:     in.Worker,
		Hours:      in.Hours,
		HourlyRate: in.HourlyRate,
		Cost:       dec(in.Hours).Mul(dec(in.HourlyRate)).Round(2).InexactFloat64(),
		Notes:      in.Notes,
		RecordedBy: userID,
		RecordedAt: s.now(),
	}
	if err := s.labor.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("record labor: %w", err)
	}
	return entry, nil
}

func (s *CostVarianceService) ListLabor(ctx context.Context, moID string) ([]entity.LaborEntry, error) {
	return s.labor.FindByMO(ctx, moID)
}

// Get 最近一次计算结果
func (s *CostVarianceService) Get(ctx context.Context, moID string) (*entity.CostVarianceRecord, error) {
	rec, err := s.variances.FindByMO(ctx, moID)
	if err != nil {
		return nil, storeErr(err, "cost variance for MO "+moID)
	}
	return rec, nil
}

func percentOf(variance, estimated decimal.Decimal) float64 {
	if estimated.IsZero() {
		return 0
	}
	return variance.Div(estimated).Mul(hundred).Round(2).InexactFloat64()
}

// consumptionUnitCost 单价优先取当前BOM中匹配的行，其次取消耗时的快照
func consumptionUnitCost(mo *entity.ManufacturingOrder, c entity.MaterialConsumption) (float64, bool) {
	if c.BOMEntryID != "" {
		if e := mo.FindBOMEntry(c.BOMEntryID); e != nil {
			return e.UnitCost, true
		}
	}
	if e := mo.FindBOMEntryByItem(c.InventoryItemID); e != nil {
		return e.UnitCost, true
	}
	if c.UnitCost > 0 {
		return c.UnitCost, true
	}
	return 0, false
}

// Calculate 重新计算并覆盖MO的成本差异
func (s *CostVarianceService) Calculate(ctx context.Context, moID, userID string) (*entity.CostVarianceRecord, error) {
	mo, err := s.mos.FindByID(ctx, moID)
	if err != nil {
		return nil, storeErr(err, "MO "+moID)
	}
	entries, err := s.labor.FindByMO(ctx, mo.ID)
	if err != nil {
		return nil, fmt.Errorf("list labor: %w", err)
	}

	estMaterial := decimal.Zero
	for _, b := range mo.BOM {
		estMaterial = estMaterial.Add(dec(b.TotalCost))
	}
	estLabor := dec(mo.CostSummary.LaborCost)

	stageMaterial := make(map[entity.ProductionStage]decimal.Decimal)
	stageLabor := make(map[entity.ProductionStage]decimal.Decimal)
	stageHours := make(map[entity.ProductionStage]decimal.Decimal)

	var warnings []string
	actMaterial := decimal.Zero
	for _, c := range mo.MaterialConsumptions {
		unit, ok := consumptionUnitCost(mo, c)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("consumption of %s (%v) has no matching BOM entry or unit cost; counted as zero", c.InventoryItemID, c.Quantity))
			continue
		}
		cost := dec(c.Quantity).Mul(dec(unit))
		actMaterial = actMaterial.Add(cost)
		stageMaterial[c.Stage] = stageMaterial[c.Stage].Add(cost)
	}

	actLabor := decimal.Zero
	hours := decimal.Zero
	for _, e := range entries {
		actLabor = actLabor.Add(dec(e.Cost))
		hours = hours.Add(dec(e.Hours))
		stageLabor[e.Stage] = stageLabor[e.Stage].Add(dec(e.Cost))
		stageHours[e.Stage] = stageHours[e.Stage].Add(dec(e.Hours))
	}

	estMaterial = estMaterial.Round(2)
	actMaterial = actMaterial.Round(2)
	estLabor = estLabor.Round(2)
	actLabor = actLabor.Round(2)
	estTotal := estMaterial.Add(estLabor)
	actTotal := actMaterial.Add(actLabor)
	materialVariance := actMaterial.Sub(estMaterial)
	variance := actTotal.Sub(estTotal)
	percent := percentOf(variance, estTotal)

	stages := make([]entity.StageVariance, 0, len(entity.StageSequence))
	for _, st := range entity.StageSequence {
		sv := entity.StageVariance{
			Stage:        st,
			MaterialCost: stageMaterial[st].Round(2).InexactFloat64(),
			LaborCost:    stageLabor[st].Round(2).InexactFloat64(),
			LaborHours:   stageHours[st].Round(2).InexactFloat64(),
			TotalCost:    stageMaterial[st].Add(stageLabor[st]).Round(2).InexactFloat64(),
		}
		sv.EnteredAt, sv.LeftAt = stageWindow(mo.StageHistory, st)
		if sv.EnteredAt != nil && sv.LeftAt != nil {
			sv.DurationHours = dec(sv.LeftAt.Sub(*sv.EnteredAt).Hours()).Round(2).InexactFloat64()
		}
		stages = append(stages, sv)
	}

	rec := &entity.CostVarianceRecord{
		ID:                      newID(),
		MOID:                    mo.ID,
		MONumber:                mo.MONumber,
		EstimatedMaterialCost:   estMaterial.InexactFloat64(),
		ActualMaterialCost:      actMaterial.InexactFloat64(),
		MaterialVariance:        materialVariance.InexactFloat64(),
		MaterialVariancePercent: percentOf(materialVariance, estMaterial),
		EstimatedLaborCost:      estLabor.InexactFloat64(),
		ActualLaborCost:         actLabor.InexactFloat64(),
		LaborHours:              hours.Round(2).InexactFloat64(),
		EstimatedTotalCost:      estTotal.InexactFloat64(),
		ActualTotalCost:         actTotal.InexactFloat64(),
		Variance:                variance.InexactFloat64(),
		VariancePercent:         percent,
		Tolerance:               s.tolerance,
		Severity:                Classify(percent, s.tolerance),
		Stages:                  stages,
		Warnings:                warnings,
		CalculatedBy:            userID,
		CalculatedAt:            s.now(),
	}
	if prev, err := s.variances.FindByMO(ctx, mo.ID); err == nil {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load previous variance: %w", err)
	}
	if err := s.variances.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("save cost variance: %w", err)
	}

	ev := Event{
		Type: "mo.cost_variance_calculated", EntityType: "mo", EntityID: mo.ID, EntityCode: mo.MONumber, UserID: userID,
		Metadata: map[string]interface{}{"variance": rec.Variance, "variance_percent": percent, "severity": rec.Severity},
	}
	if rec.Severity == entity.VarianceCritical {
		ev.Severity = entity.SeverityHigh
		ev.Message = fmt.Sprintf("Cost variance %.2f%% exceeds %.2f%%", percent, 2*s.tolerance)
	}
	s.emit(ctx, ev)
	return rec, nil
}

// stageWindow 首次进入与首次离开该工序的时间
func stageWindow(history []entity.StageTransition, stage entity.ProductionStage) (entered, left *time.Time) {
	for i := range history {
		t := history[i]
		if entered == nil && t.ToStage == stage {
			at := t.TransitionedAt
			entered = &at
		}
		if left == nil && t.FromStage == stage {
			at := t.TransitionedAt
			left = &at
		}
	}
	return entered, left
}
