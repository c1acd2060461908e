package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

const monthlySheet = "Charges"

var monthlyHeader = []string{"Date", "Orders", "Packages", "Pallets", "Charge"}

// MonthlyXLSX renders the monthly charges as a workbook with one row per day
// and a total row.
func MonthlyXLSX(report MonthlyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", monthlySheet); err != nil {
		return nil, err
	}
	for i, h := range monthlyHeader {
		if err := f.SetCellValue(monthlySheet, cell(i, 1), h); err != nil {
			return nil, err
		}
	}
	row := 2
	for _, day := range report.Days {
		values := []any{day.Date.Format(shared.DateLayout), day.Orders, day.Packages, day.Pallets, day.Charge.InexactFloat64()}
		for i, v := range values {
			if err := f.SetCellValue(monthlySheet, cell(i, row), v); err != nil {
				return nil, err
			}
		}
		row++
	}
	totals := []any{"Total " + report.Month, report.Orders, report.Packages, report.PalletDays, report.Total.InexactFloat64()}
	for i, v := range totals {
		if err := f.SetCellValue(monthlySheet, cell(i, row), v); err != nil {
			return nil, err
		}
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(monthlySheet, cell(4, 2), cell(4, row), style); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("reports: write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// MonthlyCSV writes the same rows as MonthlyXLSX with exact decimal charges.
func MonthlyCSV(w io.Writer, report MonthlyReport) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true
	if err := writer.Write(monthlyHeader); err != nil {
		return err
	}
	for _, day := range report.Days {
		if err := writer.Write([]string{
			day.Date.Format(shared.DateLayout),
			strconv.Itoa(day.Orders),
			strconv.Itoa(day.Packages),
			strconv.FormatInt(day.Pallets, 10),
			day.Charge.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		"Total " + report.Month,
		strconv.Itoa(report.Orders),
		strconv.Itoa(report.Packages),
		strconv.FormatInt(report.PalletDays, 10),
		report.Total.StringFixed(2),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WeeklyCSV writes one row per SKU; undefined values are written as N/A.
func WeeklyCSV(w io.Writer, report WeeklyReport) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true
	if err := writer.Write([]string{"SKU", "Quantity", "RollingAverage", "DaysOfSupply", "Alert"}); err != nil {
		return err
	}
	for _, line := range report.Lines {
		if err := writer.Write([]string{
			line.SKU,
			strconv.FormatInt(line.Quantity, 10),
			optional(line.RollingAverage, 2),
			optional(line.DaysOfSupply, 1),
			string(line.Alert),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func optional(v *float64, precision int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}
