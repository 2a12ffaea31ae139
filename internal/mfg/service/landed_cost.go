package service

import (
	"sort"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// round2 金额统一保留两位小数
func round2(f float64) float64 {
	return dec(f).Round(2).InexactFloat64()
}

// LandedCostTotal 到岸费用合计
func LandedCostTotal(lc entity.LandedCosts) decimal.Decimal {
	return decimal.Sum(dec(lc.Shipping), dec(lc.Customs), dec(lc.Duties),
		dec(lc.Insurance), dec(lc.Handling), dec(lc.Other))
}

// AllocateLandedCosts 按分摊方式把到岸费用分配到各行并重算汇总。
// 每次修改行项或到岸费用都要整体重跑，不做增量修补。
// 各行分摊额先舍到分，差出的分按最大余数法补足，分摊合计等于到岸费用合计且每行不为负。
func AllocateLandedCosts(items []entity.POLineItem, lc entity.LandedCosts, currency string) ([]entity.POLineItem, entity.POTotals) {
	out := make([]entity.POLineItem, len(items))
	copy(out, items)

	totalLanded := LandedCostTotal(lc).Round(2)

	lineTotals := make([]decimal.Decimal, len(out))
	subtotal := decimal.Zero
	for i, l := range out {
		lineTotals[i] = dec(l.Quantity).Mul(dec(l.UnitCost)).Round(2)
		subtotal = subtotal.Add(lineTotals[i])
	}

	// 各行分摊权重
	shares := make([]decimal.Decimal, len(out))
	base := decimal.Zero
	switch lc.DistributionMethod {
	case entity.DistributeEqual:
		for i := range out {
			shares[i] = decimal.NewFromInt(1)
		}
		base = decimal.NewFromInt(int64(len(out)))
	case entity.DistributeByWeight:
		for i, l := range out {
			if l.Weight > 0 {
				shares[i] = dec(l.Weight)
			} else {
				shares[i] = decimal.Zero
			}
			base = base.Add(shares[i])
		}
	default:
		copy(shares, lineTotals)
		base = subtotal
	}

	allocations := make([]decimal.Decimal, len(out))
	fractions := make([]decimal.Decimal, len(out))
	allocated := decimal.Zero
	var eligible []int
	for i := range out {
		allocations[i] = decimal.Zero
		if base.IsZero() || shares[i].IsZero() {
			continue
		}
		raw := shares[i].Mul(totalLanded).Div(base)
		allocations[i] = raw.RoundFloor(2)
		fractions[i] = raw.Sub(allocations[i])
		allocated = allocated.Add(allocations[i])
		eligible = append(eligible, i)
	}

	// 最大余数法：剩余的分按舍去部分从大到小逐分发放，同余数按行序
	sort.SliceStable(eligible, func(a, b int) bool {
		return fractions[eligible[a]].GreaterThan(fractions[eligible[b]])
	})
	cent := decimal.New(1, -2)
	leftover := totalLanded.Sub(allocated).Div(cent).IntPart()
	for k := 0; leftover > 0 && len(eligible) > 0; k++ {
		i := eligible[k%len(eligible)]
		allocations[i] = allocations[i].Add(cent)
		leftover--
	}

	for i := range out {
		out[i].LineTotal = lineTotals[i].InexactFloat64()
		out[i].LandedCostAllocation = allocations[i].InexactFloat64()
		if out[i].Quantity > 0 {
			out[i].EffectiveUnitCost = lineTotals[i].Add(allocations[i]).Div(dec(out[i].Quantity)).Round(2).InexactFloat64()
		} else {
			out[i].EffectiveUnitCost = 0
		}
	}

	totals := entity.POTotals{
		Subtotal:        subtotal.InexactFloat64(),
		LandedCostTotal: totalLanded.InexactFloat64(),
		GrandTotal:      subtotal.Add(totalLanded).InexactFloat64(),
		Currency:        currency,
	}
	return out, totals
}
