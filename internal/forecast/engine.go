package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/sartorproj/goarima/sarima"
	"github.com/sartorproj/goarima/timeseries"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// Engine 外部预测引擎接口.
// 返回每个历史日期一行, 之后追加 horizon 个未来日期, 每行带点估计和双侧区间.
type Engine interface {
	Forecast(obs []types.Observation, horizon int) ([]types.ForecastRow, error)
}

// AREngine 默认引擎: ARIMA(p,1,0), 由 goarima 的 sarima 模型拟合 (季节阶数为零).
// 历史行取一步拟合值, 未来行取模型的预测区间.
type AREngine struct {
	order         int
	intervalWidth float64
}

// NewAREngine 创建默认引擎
func NewAREngine(config types.EngineConfig) *AREngine {
	def := types.DefaultEngineConfig()
	if config.AROrder < 0 {
		config.AROrder = def.AROrder
	}
	if config.IntervalWidth <= 0 || config.IntervalWidth >= 1 {
		config.IntervalWidth = def.IntervalWidth
	}
	return &AREngine{order: config.AROrder, intervalWidth: config.IntervalWidth}
}

// MinObservations 拟合所需的最少观测数, 与 sarima.Model.Fit 的下限一致
func (e *AREngine) MinObservations() int {
	return e.order + 1 + 20
}

// Forecast 拟合并预测
func (e *AREngine) Forecast(obs []types.Observation, horizon int) ([]types.ForecastRow, error) {
	if len(obs) < e.MinObservations() {
		return nil, apperr.NewForecastEngineError("insufficient observations", nil).
			WithContext("observations", len(obs)).
			WithContext("required", e.MinObservations())
	}
	if horizon < 1 {
		return nil, apperr.NewForecastEngineError("horizon must be at least 1", nil).
			WithContext("horizon", horizon)
	}

	dates := make([]time.Time, len(obs))
	y := make([]float64, len(obs))
	for i, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, apperr.NewForecastEngineError("observation is not finite", nil).
				WithContext("date", o.Date.Format("2006-01-02"))
		}
		dates[i] = o.Date
		y[i] = o.Value
	}

	series, err := timeseries.NewWithTimestamps(dates, y)
	if err != nil {
		return nil, apperr.NewForecastEngineError("failed to build series", err)
	}

	model := sarima.New(e.order, 1, 0, 0, 0, 0, 0)
	if err := model.Fit(series); err != nil {
		return nil, apperr.NewForecastEngineError("model fit failed", err).
			WithContext("order", e.String())
	}

	estimates, lower, upper, err := model.PredictWithInterval(horizon, e.intervalWidth)
	if err != nil {
		return nil, apperr.NewForecastEngineError("model prediction failed", err).
			WithContext("horizon", horizon)
	}

	// 差分尺度上的拟合值加上前一日实际值, 还原为原始尺度
	fitted := model.FittedValues()
	halfWidth := (upper[0] - lower[0]) / 2

	rows := make([]types.ForecastRow, 0, len(obs)+horizon)
	rows = append(rows, band(dates[0], y[0], halfWidth))
	for t := 1; t < len(y); t++ {
		rows = append(rows, band(dates[t], y[t-1]+fitted[t-1], halfWidth))
	}

	last := dates[len(dates)-1]
	for h := 0; h < horizon; h++ {
		rows = append(rows, types.ForecastRow{
			Date:     last.AddDate(0, 0, h+1),
			Estimate: estimates[h],
			Lower:    lower[h],
			Upper:    upper[h],
		})
	}

	return rows, nil
}

func band(date time.Time, estimate, halfWidth float64) types.ForecastRow {
	return types.ForecastRow{
		Date:     date,
		Estimate: estimate,
		Lower:    estimate - halfWidth,
		Upper:    estimate + halfWidth,
	}
}

// String 引擎描述
func (e *AREngine) String() string {
	return fmt.Sprintf("ARIMA(%d,1,0) interval=%.2f", e.order, e.intervalWidth)
}
