package forecast

import (
	"log/slog"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// Adapter 价差序列与预测引擎之间的边界, 只负责输入输出的转换和检查
type Adapter struct {
	engine Engine
	logger *slog.Logger
}

// NewAdapter 创建适配器
func NewAdapter(engine Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, logger: logger}
}

// Observations 将价差行转换为引擎观测值, 跳过无效值
func Observations(s *types.SpreadSeries) []types.Observation {
	obs := make([]types.Observation, 0, s.Len())
	if s == nil {
		return obs
	}
	for _, p := range s.Points {
		if !p.Value.Valid {
			continue
		}
		v, _ := p.Value.Decimal.Float64()
		obs = append(obs, types.Observation{Date: p.Date, Value: v})
	}
	return obs
}

// Forecast 把价差序列交给引擎, 检查返回的形状
func (a *Adapter) Forecast(s *types.SpreadSeries, horizon int) (*types.Forecast, error) {
	if horizon < 1 {
		return nil, apperr.NewValidationError("horizon must be at least 1", nil).
			WithContext("horizon", horizon)
	}

	obs := Observations(s)
	if len(obs) == 0 {
		return nil, apperr.NewForecastEngineError("no observations to fit", nil).
			WithContext("spread_rows", s.Len())
	}

	rows, err := a.engine.Forecast(obs, horizon)
	if err != nil {
		if apperr.IsType(err, apperr.ErrTypeForecastEngine) {
			return nil, err
		}
		return nil, apperr.NewForecastEngineError("engine failed", err)
	}

	if err := checkShape(obs, rows, horizon); err != nil {
		return nil, err
	}

	a.logger.Info("forecast completed",
		slog.Int("observations", len(obs)),
		slog.Int("horizon", horizon),
		slog.Int("rows", len(rows)))

	result := make([]types.ForecastRow, len(rows))
	copy(result, rows)
	return &types.Forecast{Rows: result}, nil
}

// checkShape 历史行数 + horizon, 日期严格递增
func checkShape(obs []types.Observation, rows []types.ForecastRow, horizon int) error {
	if len(rows) != len(obs)+horizon {
		return apperr.NewForecastEngineError("unexpected forecast row count", nil).
			WithContext("rows", len(rows)).
			WithContext("expected", len(obs)+horizon)
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Date.After(rows[i-1].Date) {
			return apperr.NewForecastEngineError("forecast dates not ascending", nil).
				WithContext("date", rows[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}
