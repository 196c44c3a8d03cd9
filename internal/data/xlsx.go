package data

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// xlsx 单元格按显示格式返回, 日期可能是 ISO 或 excelize 的内置格式
var xlsxDateLayouts = []string{"2006-01-02", "01-02-06", "1/2/06"}

// readXLSX 读取工作簿第一个工作表的所有行
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
