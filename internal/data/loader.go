package data

import (
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// SeriesLoader 年度价格加载器接口
type SeriesLoader interface {
	// Load 加载某产品某合约月份某一年的收盘价, 每个点的到期年份为 year.
	// 找不到源文件返回 NOT_FOUND, 日期或价格无法解析返回 PARSING.
	Load(product string, month, year int) ([]types.PricePoint, error)

	// SourceType 数据源类型
	SourceType() string
}
