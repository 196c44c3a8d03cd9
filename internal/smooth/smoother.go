package smooth

import (
	"math"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// DefaultWindow 默认平滑窗口 (行数)
const DefaultWindow = 7

// Smooth 对预测的点估计和上下界分别做居中滑动平均.
// 窗口按行号计算, 不按日历天; 边缘处窗口截断, 只要窗口内有一个有效值就输出.
func Smooth(f *types.Forecast, window int) (*types.Forecast, error) {
	if window < 1 {
		return nil, apperr.NewValidationError("smoothing window must be at least 1", nil).
			WithContext("window", window)
	}
	if f == nil {
		return &types.Forecast{Rows: []types.ForecastRow{}}, nil
	}

	n := len(f.Rows)
	estimate := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i, r := range f.Rows {
		estimate[i] = r.Estimate
		lower[i] = r.Lower
		upper[i] = r.Upper
	}
	estimate = CenteredMean(estimate, window)
	lower = CenteredMean(lower, window)
	upper = CenteredMean(upper, window)

	rows := make([]types.ForecastRow, n)
	for i, r := range f.Rows {
		rows[i] = types.ForecastRow{
			Date:     r.Date,
			Estimate: estimate[i],
			Lower:    lower[i],
			Upper:    upper[i],
		}
	}
	return &types.Forecast{Rows: rows}, nil
}

// CenteredMean 居中滑动平均, 第 i 行的窗口为 [i-w/2, i+(w-1)/2].
// NaN 不计入均值, 窗口内全为 NaN 时结果为 NaN; 窗口内有效值全部相同时原样返回该值.
func CenteredMean(values []float64, window int) []float64 {
	n := len(values)
	result := make([]float64, n)
	if window < 1 {
		window = 1
	}

	for i := 0; i < n; i++ {
		lo := max(i-window/2, 0)
		hi := min(i+(window-1)/2, n-1)

		sum := 0.0
		count := 0
		first := math.NaN()
		constant := true
		for _, v := range values[lo : hi+1] {
			if math.IsNaN(v) {
				continue
			}
			if count == 0 {
				first = v
			} else if v != first {
				constant = false
			}
			sum += v
			count++
		}

		switch {
		case count == 0:
			result[i] = math.NaN()
		case constant:
			result[i] = first
		default:
			result[i] = sum / float64(count)
		}
	}
	return result
}
