package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// CSVLoader 按年度文件加载收盘价, 目录结构 {dataDir}/{product}/{month}/{year}.csv.
// 同名 .xlsx 文件作为 CSV 缺失时的备选.
type CSVLoader struct {
	config types.LoaderConfig
	logger *slog.Logger
}

// NewCSVLoader 创建CSV加载器, 未设置的选项使用默认值
func NewCSVLoader(config types.LoaderConfig, logger *slog.Logger) *CSVLoader {
	def := types.DefaultLoaderConfig()
	if config.DataDir == "" {
		config.DataDir = def.DataDir
	}
	if config.Encoding == "" {
		config.Encoding = def.Encoding
	}
	if config.DateFormat == "" {
		config.DateFormat = def.DateFormat
	}
	if config.Delimiter == 0 {
		config.Delimiter = def.Delimiter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVLoader{config: config, logger: logger}
}

// SourceType 返回数据源类型
func (l *CSVLoader) SourceType() string {
	return "csv"
}

// Load 加载一个年度文件
func (l *CSVLoader) Load(product string, month, year int) ([]types.PricePoint, error) {
	path, kind, err := l.resolve(product, month, year)
	if err != nil {
		return nil, err
	}

	var records [][]string
	switch kind {
	case "xlsx":
		records, err = readXLSX(path)
	default:
		records, err = l.readCSV(path)
	}
	if err != nil {
		return nil, apperr.NewParseError("failed to read source file", err).
			WithContext("file", path).
			WithContext("year", year)
	}

	layouts := []string{l.config.DateFormat}
	if kind == "xlsx" {
		layouts = append(layouts, xlsxDateLayouts...)
	}
	points, err := l.parseRecords(records, path, year, layouts)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loaded yearly prices",
		slog.String("product", product),
		slog.Int("month", month),
		slog.Int("year", year),
		slog.String("file", path),
		slog.Int("rows", len(points)))
	return points, nil
}

// Path 返回年度 CSV 文件路径
func (l *CSVLoader) Path(product string, month, year int) string {
	return filepath.Join(l.config.DataDir, product, strconv.Itoa(month), fmt.Sprintf("%d.csv", year))
}

// resolve 定位源文件: 先 .csv 后 .xlsx
func (l *CSVLoader) resolve(product string, month, year int) (string, string, error) {
	csvPath := l.Path(product, month, year)
	if fileExists(csvPath) {
		return csvPath, "csv", nil
	}
	xlsxPath := strings.TrimSuffix(csvPath, ".csv") + ".xlsx"
	if fileExists(xlsxPath) {
		return xlsxPath, "xlsx", nil
	}
	return "", "", apperr.NewNotFoundError("no source file", nil).
		WithContext("product", product).
		WithContext("month", month).
		WithContext("year", year).
		WithContext("path", csvPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// readCSV 按配置的编码读取整个文件, 文件在返回前关闭
func (l *CSVLoader) readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	decoded, err := decodeReader(file, l.config.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	reader.Comma = l.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, nil
}

// decodeReader 将源编码转换为 UTF-8
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "cp1252", "windows-1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	case "utf-8", "utf8", "":
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// parseHeader 解析表头, 返回日期列和收盘价列的索引
func (l *CSVLoader) parseHeader(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, raw := range header {
		col := strings.TrimSpace(raw)
		switch {
		case l.config.DateColumn != "" && col == l.config.DateColumn:
			colIndex["date"] = i
		case l.config.CloseColumn != "" && col == l.config.CloseColumn:
			colIndex["close"] = i
		}
	}
	for i, raw := range header {
		col := strings.TrimSpace(raw)
		switch col {
		case "Fecha", "fecha", "FECHA", "Date", "date", "DATE":
			if _, ok := colIndex["date"]; !ok {
				colIndex["date"] = i
			}
		case "Cierre", "cierre", "CIERRE", "Close", "close", "CLOSE":
			if _, ok := colIndex["close"]; !ok {
				colIndex["close"] = i
			}
		}
	}
	return colIndex
}

// parseRecords 解析表头和数据行, 不重新排序
func (l *CSVLoader) parseRecords(records [][]string, path string, year int, layouts []string) ([]types.PricePoint, error) {
	if len(records) == 0 {
		return nil, apperr.NewParseError("source file has no header", nil).WithContext("file", path)
	}

	colIndex := l.parseHeader(records[0])
	dateIdx, okDate := colIndex["date"]
	closeIdx, okClose := colIndex["close"]
	if !okDate || !okClose {
		return nil, apperr.NewParseError("source file lacks date or close column", nil).
			WithContext("file", path).
			WithContext("header", strings.Join(records[0], ","))
	}

	points := make([]types.PricePoint, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		row := records[i]
		if isBlankRow(row) {
			continue
		}
		if dateIdx >= len(row) || closeIdx >= len(row) {
			return nil, apperr.NewParseError("row has too few fields", nil).
				WithContext("file", path).
				WithContext("row", i+1)
		}

		date, err := parseDate(row[dateIdx], layouts)
		if err != nil {
			return nil, apperr.NewParseError("invalid date", err).
				WithContext("file", path).
				WithContext("row", i+1).
				WithContext("token", row[dateIdx])
		}
		price, err := ParseClose(row[closeIdx])
		if err != nil {
			return nil, apperr.NewParseError("invalid close price", err).
				WithContext("file", path).
				WithContext("row", i+1).
				WithContext("token", row[closeIdx]).
				WithContext("date", date.Format("2006-01-02"))
		}

		points = append(points, types.NewPricePoint(date, price, year))
	}
	return points, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ParseClose 解析收盘价, 逗号小数分隔符统一为句点
func ParseClose(token string) (decimal.Decimal, error) {
	s := strings.TrimSpace(token)
	s = strings.Trim(s, "\"")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty price")
	}
	return decimal.NewFromString(s)
}

// parseDate 依次尝试给定格式解析日期
func parseDate(token string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(token)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return types.DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", s)
}
