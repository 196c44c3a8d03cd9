package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

const dateLayout = "2006-01-02"

// Table 一张待导出的表
type Table struct {
	Name    string
	Headers []string
	Records [][]string
}

// SeriesTable 连续序列
func SeriesTable(name string, s *types.ContinuousSeries) Table {
	t := Table{Name: name, Headers: []string{"date", "close", "expiration"}}
	if s == nil {
		return t
	}
	for _, p := range s.Points {
		t.Records = append(t.Records, []string{
			p.Date.Format(dateLayout),
			nullDecimal(p.Close.Valid, p.Close.Decimal.String()),
			strconv.Itoa(p.Expiration),
		})
	}
	return t
}

// SpreadTable 价差序列
func SpreadTable(name string, s *types.SpreadSeries) Table {
	t := Table{Name: name, Headers: []string{"date", "spread", "label", "expiration_a", "expiration_b"}}
	if s == nil {
		return t
	}
	for _, p := range s.Points {
		t.Records = append(t.Records, []string{
			p.Date.Format(dateLayout),
			nullDecimal(p.Value.Valid, p.Value.Decimal.String()),
			p.Label,
			strconv.Itoa(p.ExpirationA),
			strconv.Itoa(p.ExpirationB),
		})
	}
	return t
}

// ForecastTable 预测结果, 列名与常见预测工具一致
func ForecastTable(name string, f *types.Forecast) Table {
	t := Table{Name: name, Headers: []string{"ds", "yhat", "yhat_lower", "yhat_upper"}}
	if f == nil {
		return t
	}
	for _, r := range f.Rows {
		t.Records = append(t.Records, []string{
			r.Date.Format(dateLayout),
			formatFloat(r.Estimate),
			formatFloat(r.Lower),
			formatFloat(r.Upper),
		})
	}
	return t
}

func nullDecimal(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV 每张表写一个文件: {dir}/{base}_{table}.csv, 返回写入的路径
func WriteCSV(dir, base string, tables []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.NewStorageError("failed to create output directory", err).WithContext("path", dir)
	}

	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", base, t.Name))
		if err := writeCSVFile(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
		slog.Debug("csv exported", slog.String("path", path), slog.Int("records", len(t.Records)))
	}
	return paths, nil
}

func writeCSVFile(path string, t Table) error {
	file, err := os.Create(path)
	if err != nil {
		return apperr.NewStorageError("failed to create file", err).WithContext("path", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Headers); err != nil {
		return apperr.NewStorageError("failed to write headers", err).WithContext("path", path)
	}
	if err := w.WriteAll(t.Records); err != nil {
		return apperr.NewStorageError("failed to write records", err).WithContext("path", path)
	}
	return nil
}

// WriteXLSX 所有表写入同一个工作簿, 每张表一个工作表
func WriteXLSX(path string, tables []Table) error {
	if len(tables) == 0 {
		return apperr.NewValidationError("no tables to export", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.NewStorageError("failed to create output directory", err).WithContext("path", path)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return apperr.NewStorageError("failed to name sheet", err).WithContext("sheet", t.Name)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return apperr.NewStorageError("failed to create sheet", err).WithContext("sheet", t.Name)
		}

		if err := writeSheetRow(f, t.Name, 1, stringsToCells(t.Headers)); err != nil {
			return err
		}
		for r, record := range t.Records {
			if err := writeSheetRow(f, t.Name, r+2, recordToCells(record)); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return apperr.NewStorageError("failed to save workbook", err).WithContext("path", path)
	}
	slog.Debug("xlsx exported", slog.String("path", path), slog.Int("sheets", len(tables)))
	return nil
}

func writeSheetRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return apperr.NewStorageError("bad cell coordinates", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return apperr.NewStorageError("failed to write row", err).
			WithContext("sheet", sheet).
			WithContext("row", row)
	}
	return nil
}

func stringsToCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// recordToCells 数值列写成数字, 其余写成文本
func recordToCells(record []string) []interface{} {
	cells := make([]interface{}, len(record))
	for i, v := range record {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cells[i] = n
		} else {
			cells[i] = v
		}
	}
	return cells
}
