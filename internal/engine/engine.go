package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/internal/data"
	"github.com/opsxjacky/spread-forecast/internal/exporter"
	"github.com/opsxjacky/spread-forecast/internal/forecast"
	"github.com/opsxjacky/spread-forecast/internal/smooth"
	"github.com/opsxjacky/spread-forecast/internal/spread"
	"github.com/opsxjacky/spread-forecast/internal/stitch"
	"github.com/opsxjacky/spread-forecast/internal/store"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// SeriesStore 已拼接序列的持久化
type SeriesStore interface {
	SaveSeries(series *types.ContinuousSeries) error
	LoadSeries(product string, month int) (*types.ContinuousSeries, error)
	Watermark(product string, month int) (*time.Time, error)
	RecordRun(run store.RunRecord) error
}

// SpreadEngine 串联 加载/拼接 -> 价差 -> 预测 -> 平滑 的流水线
type SpreadEngine struct {
	loader     data.SeriesLoader
	forecaster forecast.Engine
	store      SeriesStore
	logger     *slog.Logger
	result     *Result
}

// Result 一次运行的结果
type Result struct {
	RunID        uuid.UUID
	Request      types.SpreadRequest
	SeriesA      *types.ContinuousSeries
	SeriesB      *types.ContinuousSeries
	Spread       *types.SpreadSeries
	Observations []types.Observation // 参与拟合的历史观测
	Forecast     *types.Forecast     // 原始预测
	Smoothed     *types.Forecast     // 平滑后的预测
}

// Presented 请求要求平滑时返回平滑结果, 否则返回原始预测
func (r *Result) Presented() *types.Forecast {
	if r.Request.Smoothed {
		return r.Smoothed
	}
	return r.Forecast
}

// New 创建流水线引擎
func New(logger *slog.Logger) *SpreadEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpreadEngine{logger: logger}
}

// SetLoader 设置年度文件加载器
func (e *SpreadEngine) SetLoader(loader data.SeriesLoader) {
	e.loader = loader
}

// SetForecaster 设置预测引擎
func (e *SpreadEngine) SetForecaster(f forecast.Engine) {
	e.forecaster = f
}

// SetStore 设置持久化存储, 为 nil 时不保存也不续拼
func (e *SpreadEngine) SetStore(s SeriesStore) {
	e.store = s
}

// validate 检查依赖是否齐全
func (e *SpreadEngine) validate() error {
	if e.loader == nil {
		return apperr.NewConfigError("series loader not set", nil)
	}
	if e.forecaster == nil {
		return apperr.NewConfigError("forecast engine not set", nil)
	}
	return nil
}

// LoadContinuousSeries 拼接一条连续序列.
// 设置了存储且请求未带水位时, 若已保存序列从请求的起始年份开始且不超过结束年份,
// 以其最后日期为水位续拼, 新点追加保存后返回请求年份内的累积序列.
// 已保存序列与请求年份不符时直接重新拼接, 不改动存储.
func (e *SpreadEngine) LoadContinuousSeries(req types.SeriesRequest) (*types.ContinuousSeries, error) {
	if e.loader == nil {
		return nil, apperr.NewConfigError("series loader not set", nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	save := e.store != nil
	resumed := false
	if e.store != nil {
		wm, err := e.store.Watermark(req.Product, req.Month)
		if err != nil {
			return nil, err
		}
		if wm != nil {
			stored, err := e.store.LoadSeries(req.Product, req.Month)
			if err != nil {
				return nil, err
			}
			save = false
			if req.Watermark == nil && resumable(stored, req) {
				req.Watermark = wm
				save = true
				resumed = true
				e.logger.Info("resuming stored series",
					slog.String("product", req.Product),
					slog.Int("month", req.Month),
					slog.String("watermark", wm.Format("2006-01-02")))
			} else {
				e.logger.Debug("stored series not reused",
					slog.String("product", req.Product),
					slog.Int("month", req.Month),
					slog.Any("stored_expirations", stored.Expirations()))
			}
		}
	}

	series, err := stitch.New(e.loader, e.logger).Stitch(req)
	if err != nil {
		return nil, err
	}

	if !save {
		return series, nil
	}
	if err := e.store.SaveSeries(series); err != nil {
		return nil, err
	}
	if !resumed {
		return series, nil
	}
	merged, err := e.store.LoadSeries(req.Product, req.Month)
	if err != nil {
		return nil, err
	}
	return withinYears(merged, req.BegYear, req.EndYear), nil
}

// resumable 已保存序列须从请求的起始年份开始, 且到期年份不超过请求的结束年份
func resumable(stored *types.ContinuousSeries, req types.SeriesRequest) bool {
	exps := stored.Expirations()
	if len(exps) == 0 || exps[0] != req.BegYear {
		return false
	}
	for _, exp := range exps {
		if exp < req.BegYear || exp > req.EndYear {
			return false
		}
	}
	return true
}

// withinYears 只保留到期年份在 [beg, end] 内的点
func withinYears(s *types.ContinuousSeries, beg, end int) *types.ContinuousSeries {
	out := &types.ContinuousSeries{Product: s.Product, Month: s.Month, Points: make([]types.PricePoint, 0, s.Len())}
	for _, p := range s.Points {
		if p.Expiration >= beg && p.Expiration <= end {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// BuildSpreadSeries 构建价差序列
func (e *SpreadEngine) BuildSpreadSeries(a, b *types.ContinuousSeries, sameYear bool) *types.SpreadSeries {
	return spread.NewBuilder(e.logger).Build(a, b, sameYear)
}

// ForecastSpread 对价差序列做预测
func (e *SpreadEngine) ForecastSpread(s *types.SpreadSeries, horizon int) (*types.Forecast, error) {
	if e.forecaster == nil {
		return nil, apperr.NewConfigError("forecast engine not set", nil)
	}
	return forecast.NewAdapter(e.forecaster, e.logger).Forecast(s, horizon)
}

// SmoothForecast 平滑预测结果
func (e *SpreadEngine) SmoothForecast(f *types.Forecast, window int) (*types.Forecast, error) {
	return smooth.Smooth(f, window)
}

// Run 运行完整流水线
func (e *SpreadEngine) Run(req types.SpreadRequest) (*Result, error) {
	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.New(), Request: req}
	log := e.logger.With(slog.String("run_id", result.RunID.String()))
	log.Info("run started",
		slog.String("leg_a", fmt.Sprintf("%s/%d", req.A.Product, req.A.Month)),
		slog.String("leg_b", fmt.Sprintf("%s/%d", req.B.Product, req.B.Month)),
		slog.Bool("same_year", req.SameYear),
		slog.Int("horizon", req.Horizon))

	var err error
	if result.SeriesA, err = e.LoadContinuousSeries(req.A); err != nil {
		return nil, err
	}
	if result.SeriesB, err = e.LoadContinuousSeries(req.B); err != nil {
		return nil, err
	}

	result.Spread = e.BuildSpreadSeries(result.SeriesA, result.SeriesB, req.SameYear)
	result.Observations = forecast.Observations(result.Spread)

	if result.Forecast, err = e.ForecastSpread(result.Spread, req.Horizon); err != nil {
		return nil, err
	}
	if result.Smoothed, err = e.SmoothForecast(result.Forecast, req.Window); err != nil {
		return nil, err
	}

	e.recordRun(result)
	e.result = result

	log.Info("run completed",
		slog.Int("spread_rows", result.Spread.Len()),
		slog.Int("forecast_rows", result.Forecast.Len()),
		slog.Bool("smoothed", req.Smoothed))
	return result, nil
}

// recordRun 写入运行记录, 失败只记录警告
func (e *SpreadEngine) recordRun(result *Result) {
	if e.store == nil {
		return
	}
	params, err := json.Marshal(result.Request)
	if err != nil {
		e.logger.Warn("failed to encode run params", slog.Any("error", err))
		return
	}
	run := store.RunRecord{ID: result.RunID, CreatedAt: time.Now(), Kind: "spread", Params: params}
	if err := e.store.RecordRun(run); err != nil {
		e.logger.Warn("failed to record run", slog.String("run_id", result.RunID.String()), slog.Any("error", err))
	}
}

// GetResult 获取最近一次运行结果
func (e *SpreadEngine) GetResult() *Result {
	return e.result
}

// ResultSummary 结果摘要
type ResultSummary struct {
	RunID         string    `json:"run_id"`
	LegA          types.Leg `json:"leg_a"`
	LegB          types.Leg `json:"leg_b"`
	SameYear      bool      `json:"same_year"`
	Labels        []string  `json:"labels"`
	SpreadRows    int       `json:"spread_rows"`
	Observations  int       `json:"observations"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Horizon       int       `json:"horizon"`
	ForecastRows  int       `json:"forecast_rows"`
	ForecastEnd   time.Time `json:"forecast_end"`
	FinalEstimate float64   `json:"final_estimate"`
	Smoothed      bool      `json:"smoothed"`
}

// getSummary 获取结果摘要
func (e *SpreadEngine) getSummary() ResultSummary {
	r := e.result
	s := ResultSummary{
		RunID:        r.RunID.String(),
		LegA:         r.Spread.LegA,
		LegB:         r.Spread.LegB,
		SameYear:     r.Request.SameYear,
		Labels:       r.Spread.Labels(),
		SpreadRows:   r.Spread.Len(),
		Observations: len(r.Observations),
		Horizon:      r.Request.Horizon,
		ForecastRows: r.Forecast.Len(),
		Smoothed:     r.Request.Smoothed,
	}
	if n := len(r.Observations); n > 0 {
		s.StartDate = r.Observations[0].Date
		s.EndDate = r.Observations[n-1].Date
	}
	if presented := r.Presented(); presented.Len() > 0 {
		last := presented.Rows[presented.Len()-1]
		s.ForecastEnd = last.Date
		s.FinalEstimate = last.Estimate
	}
	return s
}

// ExportResults 按格式导出结果到目录, 返回写入的文件路径.
// json 写一个文件, csv 每张表一个文件, xlsx 一个工作簿.
func (e *SpreadEngine) ExportResults(dir, format string) ([]string, error) {
	if e.result == nil {
		return nil, apperr.NewValidationError("no results to export, run the pipeline first", nil)
	}

	base := "spread_" + e.result.RunID.String()[:8]
	tables := []exporter.Table{
		exporter.SpreadTable("spread", e.result.Spread),
		exporter.ForecastTable("forecast", e.result.Forecast),
		exporter.ForecastTable("smoothed", e.result.Smoothed),
	}

	var paths []string
	switch format {
	case "json":
		path := filepath.Join(dir, base+".json")
		if err := e.exportJSON(path); err != nil {
			return nil, err
		}
		paths = []string{path}
	case "csv":
		written, err := exporter.WriteCSV(dir, base, tables)
		if err != nil {
			return nil, err
		}
		paths = written
	case "xlsx":
		path := filepath.Join(dir, base+".xlsx")
		if err := exporter.WriteXLSX(path, tables); err != nil {
			return nil, err
		}
		paths = []string{path}
	default:
		return nil, apperr.NewValidationError("unsupported export format", nil).
			WithContext("format", format)
	}

	for _, p := range paths {
		e.logger.Info("results exported", slog.String("path", p))
	}
	return paths, nil
}

func (e *SpreadEngine) exportJSON(path string) error {
	output := struct {
		Summary  ResultSummary       `json:"summary"`
		Spread   []types.SpreadPoint `json:"spread"`
		Forecast []types.ForecastRow `json:"forecast"`
		Smoothed []types.ForecastRow `json:"smoothed"`
	}{
		Summary:  e.getSummary(),
		Spread:   e.result.Spread.Points,
		Forecast: e.result.Forecast.Rows,
		Smoothed: e.result.Smoothed.Rows,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return apperr.NewStorageError("failed to marshal results", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.NewStorageError("failed to create output directory", err).WithContext("path", path)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperr.NewStorageError("failed to write file", err).WithContext("path", path)
	}
	return nil
}

// PrintSummary 打印运行摘要
func (e *SpreadEngine) PrintSummary(w io.Writer) {
	if e.result == nil {
		fmt.Fprintln(w, "No results available")
		return
	}

	s := e.getSummary()
	fmt.Fprintln(w, "\n========== Spread Forecast Summary ==========")
	fmt.Fprintf(w, "Run: %s\n", s.RunID)
	fmt.Fprintf(w, "Legs: %s %s vs %s %s (same_year=%t)\n",
		s.LegA.Product, spread.MonthName(s.LegA.Month),
		s.LegB.Product, spread.MonthName(s.LegB.Month), s.SameYear)
	fmt.Fprintf(w, "Spread rows: %d (%d observations)\n", s.SpreadRows, s.Observations)
	if s.Observations > 0 {
		fmt.Fprintf(w, "History: %s to %s\n", s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"))
	}
	for _, label := range s.Labels {
		fmt.Fprintf(w, "  %s\n", label)
	}
	fmt.Fprintf(w, "Horizon: %d days, %d forecast rows\n", s.Horizon, s.ForecastRows)
	if s.ForecastRows > 0 {
		kind := "raw"
		if s.Smoothed {
			kind = "smoothed"
		}
		fmt.Fprintf(w, "Final estimate (%s) on %s: %.4f\n", kind, s.ForecastEnd.Format("2006-01-02"), s.FinalEstimate)
	}
	fmt.Fprintln(w, "=============================================")
}
