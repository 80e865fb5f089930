package documents

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Korean)

// won formats an integral amount with thousands separators.
func won(v int64) string {
	return printer.Sprintf("%d원", v)
}

// Workbook renders the document as a single-sheet xlsx file.
func Workbook(d Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := d.Kind.Title()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("documents: rename sheet: %w", err)
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 18},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	moneyFmt := "#,##0"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, err
	}

	if err := f.MergeCell(sheet, "A1", "E1"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, "A1", d.Kind.Title()); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", "E1", titleStyle); err != nil {
		return nil, err
	}

	info := [][]any{
		{"문서번호", d.Number},
		{"발행일", d.IssuedAt.Format("2006-01-02")},
		{"사업장명", d.BusinessName},
		{"주소", d.Address},
		{"제조사", d.Manufacturer},
		{"영업점", d.SalesOffice},
	}
	for i, row := range info {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	headerRow := len(info) + 4
	header := []any{"No", "품목", "수량", "단가", "금액"}
	headerCell, _ := excelize.CoordinatesToCellName(1, headerRow)
	if err := f.SetSheetRow(sheet, headerCell, &header); err != nil {
		return nil, err
	}
	headerEnd, _ := excelize.CoordinatesToCellName(len(header), headerRow)
	if err := f.SetCellStyle(sheet, headerCell, headerEnd, headerStyle); err != nil {
		return nil, err
	}

	row := headerRow + 1
	for i, item := range d.Items {
		values := []any{i + 1, item.Name, item.Quantity, item.UnitPrice.IntPart(), item.Amount.IntPart()}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("documents: item row %d: %w", row, err)
		}
		row++
	}

	totals := [][]any{
		{"공급가액", d.Supply.IntPart()},
		{"부가세(10%)", d.VAT.IntPart()},
		{"합계", d.Total.IntPart()},
	}
	row++
	for _, t := range totals {
		label, _ := excelize.CoordinatesToCellName(4, row)
		if err := f.SetSheetRow(sheet, label, &t); err != nil {
			return nil, err
		}
		row++
	}
	from, _ := excelize.CoordinatesToCellName(4, headerRow+1)
	to, _ := excelize.CoordinatesToCellName(5, row)
	if err := f.SetCellStyle(sheet, from, to, moneyStyle); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "D", "E", 16)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("documents: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
