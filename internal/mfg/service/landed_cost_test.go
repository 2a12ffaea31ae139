package service

import (
	"testing"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sumAllocations(items []entity.POLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range items {
		total = total.Add(dec(l.LandedCostAllocation))
	}
	return total
}

func TestAllocateLandedCosts_EqualSplitRemainder(t *testing.T) {
	items := make([]entity.POLineItem, 6)
	for i := range items {
		items[i] = entity.POLineItem{ID: string(rune('a' + i)), Quantity: 1, UnitCost: 10}
	}
	lc := entity.LandedCosts{Shipping: 60, Customs: 40, DistributionMethod: entity.DistributeEqual}

	out, totals := AllocateLandedCosts(items, lc, "USD")

	for i := 0; i < 4; i++ {
		require.Equal(t, 16.67, out[i].LandedCostAllocation, "line %d", i)
	}
	require.Equal(t, 16.66, out[4].LandedCostAllocation)
	require.Equal(t, 16.66, out[5].LandedCostAllocation)
	require.True(t, sumAllocations(out).Equal(decimal.NewFromInt(100)))
	require.Equal(t, 60.0, totals.Subtotal)
	require.Equal(t, 100.0, totals.LandedCostTotal)
	require.Equal(t, 160.0, totals.GrandTotal)
	require.Equal(t, "USD", totals.Currency)
}

func TestAllocateLandedCosts_Methods(t *testing.T) {
	items := []entity.POLineItem{
		{ID: "1", Quantity: 10, UnitCost: 30, Weight: 1},
		{ID: "2", Quantity: 5, UnitCost: 20, Weight: 3},
	}

	tests := []struct {
		name   string
		lc     entity.LandedCosts
		alloc  []float64
		unit   []float64
		landed float64
	}{
		{
			name:   "proportional value",
			lc:     entity.LandedCosts{Shipping: 80, DistributionMethod: entity.DistributeByValue},
			alloc:  []float64{60, 20},
			unit:   []float64{36, 24},
			landed: 80,
		},
		{
			name:   "defaults to proportional value",
			lc:     entity.LandedCosts{Duties: 40},
			alloc:  []float64{30, 10},
			unit:   []float64{33, 22},
			landed: 40,
		},
		{
			name:   "proportional weight",
			lc:     entity.LandedCosts{Insurance: 20, Handling: 20, DistributionMethod: entity.DistributeByWeight},
			alloc:  []float64{10, 30},
			unit:   []float64{31, 26},
			landed: 40,
		},
		{
			name:   "equal",
			lc:     entity.LandedCosts{Other: 10, DistributionMethod: entity.DistributeEqual},
			alloc:  []float64{5, 5},
			unit:   []float64{30.5, 21},
			landed: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, totals := AllocateLandedCosts(items, tt.lc, "EUR")
			for i := range out {
				require.Equal(t, tt.alloc[i], out[i].LandedCostAllocation, "allocation line %d", i)
				require.Equal(t, tt.unit[i], out[i].EffectiveUnitCost, "unit cost line %d", i)
			}
			require.Equal(t, 400.0, totals.Subtotal)
			require.Equal(t, tt.landed, totals.LandedCostTotal)
			require.Equal(t, 400+tt.landed, totals.GrandTotal)
		})
	}
}

func TestAllocateLandedCosts_ZeroBases(t *testing.T) {
	t.Run("no weights recorded", func(t *testing.T) {
		items := []entity.POLineItem{{ID: "1", Quantity: 2, UnitCost: 5}, {ID: "2", Quantity: 1, UnitCost: 5}}
		out, totals := AllocateLandedCosts(items, entity.LandedCosts{Shipping: 50, DistributionMethod: entity.DistributeByWeight}, "USD")
		require.Zero(t, out[0].LandedCostAllocation)
		require.Zero(t, out[1].LandedCostAllocation)
		require.Equal(t, 5.0, out[0].EffectiveUnitCost)
		require.Equal(t, 50.0, totals.LandedCostTotal)
	})

	t.Run("zero subtotal", func(t *testing.T) {
		items := []entity.POLineItem{{ID: "1", Quantity: 3, UnitCost: 0}}
		out, _ := AllocateLandedCosts(items, entity.LandedCosts{Shipping: 9}, "USD")
		require.Zero(t, out[0].LandedCostAllocation)
		require.Zero(t, out[0].EffectiveUnitCost)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		items := []entity.POLineItem{{ID: "1", Quantity: 1, UnitCost: 10}}
		AllocateLandedCosts(items, entity.LandedCosts{Shipping: 5}, "USD")
		require.Zero(t, items[0].LandedCostAllocation)
		require.Zero(t, items[0].LineTotal)
	})
}

func TestAllocateLandedCosts_SumMatchesTotal(t *testing.T) {
	items := []entity.POLineItem{
		{ID: "1", Quantity: 3, UnitCost: 7.33},
		{ID: "2", Quantity: 7, UnitCost: 1.17},
		{ID: "3", Quantity: 11, UnitCost: 0.99},
	}
	for _, m := range []entity.DistributionMethod{entity.DistributeByValue, entity.DistributeEqual} {
		out, totals := AllocateLandedCosts(items, entity.LandedCosts{Shipping: 33.33, Customs: 0.01, DistributionMethod: m}, "USD")
		require.True(t, sumAllocations(out).Equal(dec(totals.LandedCostTotal)), "method %s", m)
	}
}

func TestAllocateLandedCosts_SmallTotalNeverNegative(t *testing.T) {
	items := make([]entity.POLineItem, 7)
	for i := range items {
		items[i] = entity.POLineItem{ID: string(rune('a' + i)), Quantity: 1, UnitCost: 10}
	}
	out, totals := AllocateLandedCosts(items, entity.LandedCosts{Shipping: 0.05, DistributionMethod: entity.DistributeEqual}, "USD")

	for i, l := range out {
		require.GreaterOrEqual(t, l.LandedCostAllocation, 0.0, "line %d", i)
		require.GreaterOrEqual(t, l.EffectiveUnitCost, l.UnitCost, "line %d", i)
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, 0.01, out[i].LandedCostAllocation, "line %d", i)
	}
	require.Zero(t, out[5].LandedCostAllocation)
	require.Zero(t, out[6].LandedCostAllocation)
	require.True(t, sumAllocations(out).Equal(dec(totals.LandedCostTotal)))
}

func TestAllocateLandedCosts_LargestRemainderGetsCent(t *testing.T) {
	items := []entity.POLineItem{
		{ID: "1", Quantity: 1, UnitCost: 1, Weight: 1},
		{ID: "2", Quantity: 1, UnitCost: 1, Weight: 2},
		{ID: "3", Quantity: 1, UnitCost: 1},
	}
	out, _ := AllocateLandedCosts(items, entity.LandedCosts{Shipping: 0.10, DistributionMethod: entity.DistributeByWeight}, "USD")

	require.Equal(t, 0.03, out[0].LandedCostAllocation)
	require.Equal(t, 0.07, out[1].LandedCostAllocation)
	require.Zero(t, out[2].LandedCostAllocation)
}
