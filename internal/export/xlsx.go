package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Mapa Comparativo"

// headerRow is the 1-based row of the column headers; data follows it.
const headerRow = 4

// RenderXLSX writes the quote map into a single-sheet workbook.
func RenderXLSX(m QuoteMap) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	if err := f.SetCellValue(sheetName, "A1", Title); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", titleStyle); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheetName, "A2", m.GeneratedLine()); err != nil {
		return nil, err
	}
	for i, col := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return nil, fmt.Errorf("export: header %s: %w", col, err)
		}
	}
	if err := f.SetCellStyle(sheetName, "A4", "D4", bold); err != nil {
		return nil, err
	}

	for i, row := range m.Rows {
		r := headerRow + 1 + i
		values := []any{row.Product, row.Quantity, row.TargetPrice, StatusLabel(row.Status)}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("export: row %d: %w", r, err)
			}
		}
		cell := fmt.Sprintf("C%d", r)
		if err := f.SetCellStyle(sheetName, cell, cell, money); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 40); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "B", "D", 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
