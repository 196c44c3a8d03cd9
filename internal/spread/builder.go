package spread

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// Builder 构建两条连续序列之间的价差序列
type Builder struct {
	logger *slog.Logger
}

// NewBuilder 创建价差构建器
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// Build 按日期内连接后按到期年份过滤.
// sameYear 为 true 时保留 A/B 到期年份不同的行, 为 false 时保留到期年份相同的行.
func (b *Builder) Build(legA, legB *types.ContinuousSeries, sameYear bool) *types.SpreadSeries {
	joined := Join(legA, legB)
	filtered := Filter(joined, sameYear)

	b.logger.Info("built spread series",
		slog.String("leg_a", legName(joined.LegA)),
		slog.String("leg_b", legName(joined.LegB)),
		slog.Bool("same_year", sameYear),
		slog.Int("joined", joined.Len()),
		slog.Int("kept", filtered.Len()))
	return filtered
}

// Join 对两条序列按日期做内连接, 输出按日期升序, 不做到期过滤.
// 输入序列需满足日期严格递增; nil 序列按空序列处理.
func Join(a, b *types.ContinuousSeries) *types.SpreadSeries {
	result := &types.SpreadSeries{
		LegA:   legOf(a),
		LegB:   legOf(b),
		Points: make([]types.SpreadPoint, 0),
	}

	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		pa, pb := a.Points[i], b.Points[j]
		switch {
		case pa.Date.Before(pb.Date):
			i++
		case pb.Date.Before(pa.Date):
			j++
		default:
			result.Points = append(result.Points, types.SpreadPoint{
				Date:        pa.Date,
				Value:       Difference(pa.Close, pb.Close),
				Label:       Label(a.Product, a.Month, pa.Expiration, b.Product, b.Month, pb.Expiration),
				ExpirationA: pa.Expiration,
				ExpirationB: pb.Expiration,
			})
			i++
			j++
		}
	}
	return result
}

func legOf(s *types.ContinuousSeries) types.Leg {
	if s == nil {
		return types.Leg{}
	}
	return types.Leg{Product: s.Product, Month: s.Month}
}

// Filter 按到期年份策略过滤, 返回新的序列
func Filter(s *types.SpreadSeries, sameYear bool) *types.SpreadSeries {
	if s == nil {
		s = &types.SpreadSeries{}
	}
	result := &types.SpreadSeries{
		LegA:   s.LegA,
		LegB:   s.LegB,
		Points: make([]types.SpreadPoint, 0, len(s.Points)),
	}
	for _, p := range s.Points {
		if Keep(p, sameYear) {
			result.Points = append(result.Points, p)
		}
	}
	return result
}

// Keep 判断单行是否保留.
// TODO: sameYear=true 实际保留跨年组合, 与名称相反; 调用方依赖这一行为, 改名需同步修改配置键 same_year.
func Keep(p types.SpreadPoint, sameYear bool) bool {
	if sameYear {
		return p.ExpirationA != p.ExpirationB
	}
	return p.ExpirationA == p.ExpirationB
}

// Difference 计算 A - B, 任一侧无效时结果无效
func Difference(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || !b.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Decimal.Sub(b.Decimal))
}

// Label 生成价差标签, 例如 corn_december_2023_vs_corn_april_2024
func Label(productA string, monthA, expA int, productB string, monthB, expB int) string {
	return fmt.Sprintf("%s_%s_%d_vs_%s_%s_%d",
		productA, MonthName(monthA), expA,
		productB, MonthName(monthB), expB)
}

// MonthName 返回小写英文月份名
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("month%d", month)
	}
	return strings.ToLower(time.Month(month).String())
}

func legName(l types.Leg) string {
	return fmt.Sprintf("%s_%s", l.Product, MonthName(l.Month))
}
