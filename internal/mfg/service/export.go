package service

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var poExportHeaders = []string{
	"序号", "SKU", "描述", "来源MO", "单位", "数量", "单价", "小计",
	"重量", "到岸费用分摊", "有效单价", "已收货",
}

var varianceExportHeaders = []string{
	"工序", "物料成本", "人工成本", "工时", "合计", "进入时间", "离开时间", "时长(小时)",
}

func headerStyle(f *excelize.File) int {
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	return style
}

func writeHeaders(f *excelize.File, sheet string, row int, headers []string) {
	style := headerStyle(f)
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s%d", col, row)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, style)
	}
}

func setColWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}

// ExportPO 导出采购订单为xlsx，含到岸费用分摊和有效单价
func (s *POService) ExportPO(ctx context.Context, id string) (*excelize.File, string, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "PO"
	f.SetSheetName("Sheet1", sheet)

	f.SetCellValue(sheet, "A1", "采购单号")
	f.SetCellValue(sheet, "B1", po.PONumber)
	f.SetCellValue(sheet, "D1", "供应商")
	f.SetCellValue(sheet, "E1", po.SupplierName)
	f.SetCellValue(sheet, "G1", "状态")
	f.SetCellValue(sheet, "H1", string(po.Status))
	f.SetCellValue(sheet, "J1", "币种")
	f.SetCellValue(sheet, "K1", po.Totals.Currency)

	writeHeaders(f, sheet, 3, poExportHeaders)
	for i, l := range po.LineItems {
		row := i + 4
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), l.SKU)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), l.Description)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), l.MONumber)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), l.Unit)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), l.Quantity)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), l.UnitCost)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), l.LineTotal)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), l.Weight)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), l.LandedCostAllocation)
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), l.EffectiveUnitCost)
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), l.QuantityReceived)
	}

	// 汇总
	row := len(po.LineItems) + 5
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	lc := po.LandedCosts
	summary := []struct {
		label string
		value interface{}
	}{
		{"小计", po.Totals.Subtotal},
		{"运费", lc.Shipping},
		{"清关", lc.Customs},
		{"关税", lc.Duties},
		{"保险", lc.Insurance},
		{"装卸", lc.Handling},
		{"其他", lc.Other},
		{"分摊方式", string(lc.DistributionMethod)},
		{"到岸费用合计", po.Totals.LandedCostTotal},
		{"总计", po.Totals.GrandTotal},
	}
	for i, item := range summary {
		r := row + i
		f.SetCellValue(sheet, fmt.Sprintf("J%d", r), item.label)
		f.SetCellValue(sheet, fmt.Sprintf("K%d", r), item.value)
		f.SetCellStyle(sheet, fmt.Sprintf("J%d", r), fmt.Sprintf("J%d", r), bold)
	}

	setColWidths(f, sheet, []float64{6, 14, 32, 16, 6, 8, 10, 12, 8, 14, 12, 10})
	return f, fmt.Sprintf("%s.xlsx", po.PONumber), nil
}

// ExportVariance 导出成本差异报告
func (s *CostVarianceService) ExportVariance(ctx context.Context, moID string) (*excelize.File, string, error) {
	rec, err := s.Get(ctx, moID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Variance"
	f.SetSheetName("Sheet1", sheet)
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	overview := []struct {
		label string
		value interface{}
	}{
		{"MO", rec.MONumber},
		{"预估物料成本", rec.EstimatedMaterialCost},
		{"实际物料成本", rec.ActualMaterialCost},
		{"预估人工成本", rec.EstimatedLaborCost},
		{"实际人工成本", rec.ActualLaborCost},
		{"预估合计", rec.EstimatedTotalCost},
		{"实际合计", rec.ActualTotalCost},
		{"差异", rec.Variance},
		{"差异率(%)", rec.VariancePercent},
		{"容差(%)", rec.Tolerance},
		{"等级", string(rec.Severity)},
	}
	for i, item := range overview {
		r := i + 1
		f.SetCellValue(sheet, fmt.Sprintf("A%d", r), item.label)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", r), item.value)
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", r), fmt.Sprintf("A%d", r), bold)
	}

	start := len(overview) + 2
	writeHeaders(f, sheet, start, varianceExportHeaders)
	for i, st := range rec.Stages {
		row := start + 1 + i
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(st.Stage))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), st.MaterialCost)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), st.LaborCost)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), st.LaborHours)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), st.TotalCost)
		if st.EnteredAt != nil {
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), st.EnteredAt.Format("2006-01-02 15:04"))
		}
		if st.LeftAt != nil {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), st.LeftAt.Format("2006-01-02 15:04"))
		}
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), st.DurationHours)
	}

	if len(rec.Warnings) > 0 {
		row := start + len(rec.Stages) + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "警告")
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), bold)
		for i, w := range rec.Warnings {
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row+i), w)
		}
	}

	setColWidths(f, sheet, []float64{16, 14, 14, 10, 14, 18, 18, 12})
	return f, fmt.Sprintf("%s_cost_variance.xlsx", rec.MONumber), nil
}
