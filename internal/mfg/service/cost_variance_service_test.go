package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		percent float64
		want    entity.VarianceSeverity
	}{
		{-12, entity.VarianceFavorable},
		{-5.01, entity.VarianceFavorable},
		{-5, entity.VarianceWithinTolerance},
		{0, entity.VarianceWithinTolerance},
		{5, entity.VarianceWithinTolerance},
		{5.01, entity.VarianceUnfavorable},
		{10, entity.VarianceUnfavorable},
		{10.01, entity.VarianceCritical},
		{80, entity.VarianceCritical},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Classify(tt.percent, 5), "percent %v", tt.percent)
	}
}

func TestCostVariance_Calculate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mo := env.inProductionMO(t)

	env.clock.Advance(2 * time.Hour)
	mo, err := env.svc.MO.AdvanceStage(ctx, mo.ID, "lead", "") // queued -> cutting
	require.NoError(t, err)

	// 切割阶段多用了2块橡木
	_, err = env.svc.MO.RecordConsumption(ctx, mo.ID, "lead", []ConsumptionInput{
		{InventoryItemID: "item-oak", WarehouseID: testWarehouse, Quantity: 12},
	})
	require.NoError(t, err)
	_, err = env.svc.Variance.RecordLabor(ctx, mo.ID, "lead", &LaborInput{Worker: "Sam", Hours: 3, HourlyRate: 20})
	require.NoError(t, err)

	env.clock.Advance(3 * time.Hour)
	_, err = env.svc.MO.AdvanceStage(ctx, mo.ID, "lead", "") // cutting -> assembly
	require.NoError(t, err)
	_, err = env.svc.MO.RecordConsumption(ctx, mo.ID, "lead", []ConsumptionInput{
		{InventoryItemID: "item-screw", WarehouseID: testWarehouse, Quantity: 200},
	})
	require.NoError(t, err)

	rec, err := env.svc.Variance.Calculate(ctx, mo.ID, "controller")
	require.NoError(t, err)
	require.Equal(t, 300.0, rec.EstimatedMaterialCost)
	require.Equal(t, 320.0, rec.ActualMaterialCost) // 12*25 + 200*0.1
	require.Equal(t, 20.0, rec.MaterialVariance)
	require.Equal(t, 60.0, rec.ActualLaborCost)
	require.Equal(t, 3.0, rec.LaborHours)
	require.Equal(t, 300.0, rec.EstimatedTotalCost)
	require.Equal(t, 380.0, rec.ActualTotalCost)
	require.Equal(t, 80.0, rec.Variance)
	require.Equal(t, 26.67, rec.VariancePercent)
	require.Equal(t, entity.VarianceCritical, rec.Severity)
	require.Empty(t, rec.Warnings)

	require.Len(t, rec.Stages, len(entity.StageSequence))
	queued, cutting, assembly := rec.Stages[0], rec.Stages[1], rec.Stages[2]
	require.Equal(t, 2.0, queued.DurationHours)
	require.Equal(t, 300.0, cutting.MaterialCost)
	require.Equal(t, 60.0, cutting.LaborCost)
	require.Equal(t, 3.0, cutting.DurationHours)
	require.Equal(t, 20.0, assembly.MaterialCost)
	require.NotNil(t, assembly.EnteredAt)
	require.Nil(t, assembly.LeftAt)
	require.Zero(t, assembly.DurationHours)

	require.Len(t, env.events.ofType("mo.cost_variance_calculated"), 1)
	require.Equal(t, entity.SeverityHigh, env.events.ofType("mo.cost_variance_calculated")[0].Severity)

	// 重新计算覆盖同一条记录
	again, err := env.svc.Variance.Calculate(ctx, mo.ID, "controller")
	require.NoError(t, err)
	require.Equal(t, rec.ID, again.ID)
	got, err := env.svc.Variance.Get(ctx, mo.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
}

func TestCostVariance_UnmatchedConsumptionWarns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mo := env.inProductionMO(t)
	env.inv.SetStock("item-glue", testWarehouse, 10)

	_, err := env.svc.MO.RecordConsumption(ctx, mo.ID, "lead", []ConsumptionInput{
		{InventoryItemID: "item-glue", WarehouseID: testWarehouse, Quantity: 1},
	})
	require.NoError(t, err)

	rec, err := env.svc.Variance.Calculate(ctx, mo.ID, "controller")
	require.NoError(t, err)
	require.Zero(t, rec.ActualMaterialCost)
	require.Len(t, rec.Warnings, 1)
	require.Contains(t, rec.Warnings[0], "item-glue")
	require.Equal(t, -100.0, rec.VariancePercent)
	require.Equal(t, entity.VarianceFavorable, rec.Severity)
}

func TestCostVariance_SnapshotCostSurvivesBOMEdit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mo := env.inProductionMO(t)
	_, err := env.svc.MO.RecordConsumption(ctx, mo.ID, "lead", []ConsumptionInput{
		{InventoryItemID: "item-stain", WarehouseID: testWarehouse, Quantity: 2},
	})
	require.NoError(t, err)

	// BOM 行被删除后仍按消耗时的单价计算
	stored, err := env.stores.MO.FindByID(ctx, mo.ID)
	require.NoError(t, err)
	stored.BOM = stored.BOM[:2]
	require.NoError(t, env.stores.MO.Update(ctx, stored))

	rec, err := env.svc.Variance.Calculate(ctx, mo.ID, "controller")
	require.NoError(t, err)
	require.Equal(t, 30.0, rec.ActualMaterialCost)
	require.Empty(t, rec.Warnings)
}

func TestCostVariance_RecordLaborValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	draft := env.createMO(t, entity.PriorityNormal)

	_, err := env.svc.Variance.RecordLabor(ctx, draft.ID, "lead", &LaborInput{Hours: 0, HourlyRate: 10})
	require.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Variance.RecordLabor(ctx, draft.ID, "lead", &LaborInput{Hours: 1, HourlyRate: 10})
	require.ErrorIs(t, err, ErrInvalidState)

	mo := env.inProductionMO(t)
	_, err = env.svc.Variance.RecordLabor(ctx, mo.ID, "lead", &LaborInput{Stage: "polishing", Hours: 1})
	require.ErrorIs(t, err, ErrValidation)

	entry, err := env.svc.Variance.RecordLabor(ctx, mo.ID, "lead", &LaborInput{Stage: entity.StageFinishing, Hours: 1.5, HourlyRate: 30})
	require.NoError(t, err)
	require.Equal(t, 45.0, entry.Cost)

	entries, err := env.svc.Variance.ListLabor(ctx, mo.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCostVariance_Export(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mo := env.inProductionMO(t)
	_, err := env.svc.Variance.Calculate(ctx, mo.ID, "controller")
	require.NoError(t, err)

	f, name, err := env.svc.Variance.ExportVariance(ctx, mo.ID)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, mo.MONumber+"_cost_variance.xlsx", name)
	v, err := f.GetCellValue("Variance", "B1")
	require.NoError(t, err)
	require.Equal(t, mo.MONumber, v)

	_, _, err = env.svc.Variance.ExportVariance(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
