package export

import (
	"bytes"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/ecofacility/facility-erp/internal/revenue"
)

const sheetName = "매출 현황"

// DashboardWorkbook renders the dashboard as an xlsx document.
func DashboardWorkbook(d revenue.Dashboard) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("export: new sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("export: delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("export: header style: %w", err)
	}
	moneyFmt := "#,##0"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("export: money style: %w", err)
	}

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", lastColumn(1), headerStyle); err != nil {
		return nil, err
	}

	for i, b := range d.Buckets {
		row := i + 2
		values := []any{b.Month, b.Label, b.Revenue, b.Cost, b.Profit,
			round2(b.ProfitRate), round2(b.PrevMonthChange), optional(b.Target), optional(b.AchievementRate), b.Count}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("export: row %d: %w", row, err)
		}
		from, _ := excelize.CoordinatesToCellName(3, row)
		to, _ := excelize.CoordinatesToCellName(5, row)
		if err := f.SetCellStyle(sheetName, from, to, moneyStyle); err != nil {
			return nil, err
		}
	}

	summaryRow := len(d.Buckets) + 3
	summary := [][]any{
		{"총 매출", d.Summary.TotalRevenue},
		{"총 순이익", d.Summary.TotalProfit},
		{"평균 순이익", d.Summary.AvgProfit},
		{"평균 이익률(%)", d.Summary.AvgProfitRate},
	}
	for i, values := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		row := values
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheetName, "A", "J", 14); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func lastColumn(row int) string {
	cell, _ := excelize.CoordinatesToCellName(len(header), row)
	return cell
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return round2(*v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
