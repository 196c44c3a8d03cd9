package types

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint 单日收盘价 (来自某一年度的源文件)
type PricePoint struct {
	Date       time.Time           `json:"date"`       // 交易日 (UTC 零点, 无时间部分)
	Close      decimal.NullDecimal `json:"close"`      // 收盘价, Valid=false 表示无法转换为数值
	Expiration int                 `json:"expiration"` // 到期年份, 即来源文件的年份
}

// NewPricePoint 创建有效收盘价的数据点
func NewPricePoint(date time.Time, close decimal.Decimal, expiration int) PricePoint {
	return PricePoint{
		Date:       DateOnly(date),
		Close:      decimal.NewNullDecimal(close),
		Expiration: expiration,
	}
}

// ContinuousSeries 某一合约月份拼接后的连续价格序列
type ContinuousSeries struct {
	Product string       `json:"product"`
	Month   int          `json:"month"` // 合约月份 1-12
	Points  []PricePoint `json:"points"`
}

// Len 返回数据点数量
func (s *ContinuousSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// FirstDate 返回首个交易日
func (s *ContinuousSeries) FirstDate() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.Points[0].Date, true
}

// LastDate 返回最后一个交易日
func (s *ContinuousSeries) LastDate() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.Points[len(s.Points)-1].Date, true
}

// Expirations 按出现顺序返回不重复的到期年份
func (s *ContinuousSeries) Expirations() []int {
	if s == nil {
		return nil
	}
	seen := make(map[int]bool)
	var result []int
	for _, p := range s.Points {
		if !seen[p.Expiration] {
			seen[p.Expiration] = true
			result = append(result, p.Expiration)
		}
	}
	return result
}

// ByExpiration 按到期年份分组 (每组保持原有日期顺序)
func (s *ContinuousSeries) ByExpiration() map[int][]PricePoint {
	groups := make(map[int][]PricePoint)
	if s == nil {
		return groups
	}
	for _, p := range s.Points {
		groups[p.Expiration] = append(groups[p.Expiration], p)
	}
	return groups
}

// Leg 价差的一条腿
type Leg struct {
	Product string `json:"product"`
	Month   int    `json:"month"`
}

// SpreadPoint 价差序列中的一行
type SpreadPoint struct {
	Date        time.Time           `json:"date"`
	Value       decimal.NullDecimal `json:"value"` // A 腿收盘价 - B 腿收盘价
	Label       string              `json:"label"`
	ExpirationA int                 `json:"expiration_a"`
	ExpirationB int                 `json:"expiration_b"`
}

// SpreadSeries 两条连续序列按日期合并后的价差序列
type SpreadSeries struct {
	LegA   Leg           `json:"leg_a"`
	LegB   Leg           `json:"leg_b"`
	Points []SpreadPoint `json:"points"`
}

// Len 返回价差行数
func (s *SpreadSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Labels 按出现顺序返回不重复的价差标签
func (s *SpreadSeries) Labels() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	var result []string
	for _, p := range s.Points {
		if !seen[p.Label] {
			seen[p.Label] = true
			result = append(result, p.Label)
		}
	}
	return result
}

// Observation 预测引擎的输入观测值
type Observation struct {
	Date  time.Time `json:"ds"`
	Value float64   `json:"y"`
}

// ForecastRow 预测结果的一行 (历史日期或未来日期)
type ForecastRow struct {
	Date     time.Time `json:"ds"`
	Estimate float64   `json:"yhat"`
	Lower    float64   `json:"yhat_lower"`
	Upper    float64   `json:"yhat_upper"`
}

// Forecast 预测结果, 平滑后的结果使用同一结构
type Forecast struct {
	Rows []ForecastRow `json:"rows"`
}

// Len 返回预测行数
func (f *Forecast) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Dates 返回日期列
func (f *Forecast) Dates() []time.Time {
	dates := make([]time.Time, f.Len())
	if f == nil {
		return dates
	}
	for i, r := range f.Rows {
		dates[i] = r.Date
	}
	return dates
}

// DateOnly 去掉时间部分, 统一为 UTC 零点
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SortDates 升序排列日期 (返回新切片)
func SortDates(dates []time.Time) []time.Time {
	result := make([]time.Time, len(dates))
	copy(result, dates)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})
	return result
}
