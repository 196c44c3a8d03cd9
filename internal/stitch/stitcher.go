package stitch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opsxjacky/spread-forecast/internal/data"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// Stitcher 将逐年的价格记录拼接为一条连续序列
type Stitcher struct {
	loader data.SeriesLoader
	logger *slog.Logger
}

// New 创建拼接器
func New(loader data.SeriesLoader, logger *slog.Logger) *Stitcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stitcher{loader: loader, logger: logger}
}

// state 逐年折叠的累积状态
type state struct {
	watermark *time.Time // 已保留的最晚日期, nil 表示尚无水位
	points    []types.PricePoint
}

// Stitch 按年份升序加载并拼接. 每年只保留日期严格晚于水位的记录,
// 保留集非空时水位更新为该年最后保留的日期. 任一年份加载失败则整体失败.
func (s *Stitcher) Stitch(req types.SeriesRequest) (*types.ContinuousSeries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc := state{}
	if req.Watermark != nil {
		wm := types.DateOnly(*req.Watermark)
		acc.watermark = &wm
	}

	for _, year := range req.Years() {
		next, err := s.step(acc, req.Product, req.Month, year)
		if err != nil {
			return nil, fmt.Errorf("stitch %s/%d: %w", req.Product, req.Month, err)
		}
		acc = next
	}

	s.logger.Info("stitched continuous series",
		slog.String("product", req.Product),
		slog.Int("month", req.Month),
		slog.Int("beg_year", req.BegYear),
		slog.Int("end_year", req.EndYear),
		slog.Int("points", len(acc.points)))

	return &types.ContinuousSeries{
		Product: req.Product,
		Month:   req.Month,
		Points:  acc.points,
	}, nil
}

// step 加载一年并返回新的累积状态, 不修改传入的状态
func (s *Stitcher) step(acc state, product string, month, year int) (state, error) {
	loaded, err := s.loader.Load(product, month, year)
	if err != nil {
		return acc, err
	}

	kept := Truncate(loaded, acc.watermark)
	s.logger.Debug("stitch year",
		slog.Int("year", year),
		slog.Int("loaded", len(loaded)),
		slog.Int("kept", len(kept)))

	if len(kept) == 0 {
		return acc, nil
	}

	last := kept[len(kept)-1].Date
	points := make([]types.PricePoint, 0, len(acc.points)+len(kept))
	points = append(points, acc.points...)
	points = append(points, kept...)
	return state{watermark: &last, points: points}, nil
}

// Truncate 返回日期严格晚于水位的记录 (水位为 nil 时返回全部)
func Truncate(points []types.PricePoint, watermark *time.Time) []types.PricePoint {
	if watermark == nil {
		return points
	}
	kept := make([]types.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Date.After(*watermark) {
			kept = append(kept, p)
		}
	}
	return kept
}
