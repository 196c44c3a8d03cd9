package stitch

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// fakeLoader 内存加载器, 记录调用的年份
type fakeLoader struct {
	years map[int][]types.PricePoint
	calls []int
}

func (f *fakeLoader) Load(product string, month, year int) ([]types.PricePoint, error) {
	f.calls = append(f.calls, year)
	points, ok := f.years[year]
	if !ok {
		return nil, apperr.NewNotFoundError("no source file", nil).
			WithContext("product", product).
			WithContext("month", month).
			WithContext("year", year)
	}
	return points, nil
}

func (f *fakeLoader) SourceType() string { return "memory" }

func jan(d int) time.Time {
	return time.Date(2023, time.January, d, 0, 0, 0, 0, time.UTC)
}

func points(year int, startDay int, closes ...int64) []types.PricePoint {
	result := make([]types.PricePoint, len(closes))
	for i, c := range closes {
		result[i] = types.NewPricePoint(jan(startDay+i), decimal.NewFromInt(c), year)
	}
	return result
}

func closes(s *types.ContinuousSeries) []string {
	result := make([]string, len(s.Points))
	for i, p := range s.Points {
		result[i] = p.Close.Decimal.String()
	}
	return result
}

func request(beg, end int) types.SeriesRequest {
	return types.SeriesRequest{Product: "corn", Month: 12, BegYear: beg, EndYear: end}
}

func TestStitch_Rollover(t *testing.T) {
	loader := &fakeLoader{years: map[int][]types.PricePoint{
		2022: points(2022, 1, 100, 101, 102, 103, 104),
		2023: points(2023, 3, 200, 201, 202, 203, 204),
	}}

	series, err := New(loader, nil).Stitch(request(2022, 2023))
	require.NoError(t, err)

	require.Equal(t, 7, series.Len())
	assert.Equal(t, []string{"100", "101", "102", "103", "104", "203", "204"}, closes(series))
	for i := 0; i < 5; i++ {
		assert.Equal(t, 2022, series.Points[i].Expiration)
	}
	assert.Equal(t, jan(6), series.Points[5].Date)
	assert.Equal(t, 2023, series.Points[5].Expiration)
	assert.Equal(t, jan(7), series.Points[6].Date)
	assert.Equal(t, "corn", series.Product)
	assert.Equal(t, 12, series.Month)
}

func TestStitch_SingleYearUnchanged(t *testing.T) {
	year := points(2022, 1, 100, 101, 102)
	loader := &fakeLoader{years: map[int][]types.PricePoint{2022: year}}

	series, err := New(loader, nil).Stitch(request(2022, 2022))
	require.NoError(t, err)
	assert.Equal(t, year, series.Points)
}

func TestStitch_Watermark(t *testing.T) {
	loader := &fakeLoader{years: map[int][]types.PricePoint{
		2022: points(2022, 1, 100, 101, 102, 103, 104),
		2023: points(2023, 3, 200, 201, 202, 203, 204),
	}}

	req := request(2022, 2023)
	wm := jan(2)
	req.Watermark = &wm

	series, err := New(loader, nil).Stitch(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "103", "104", "203", "204"}, closes(series))
}

func TestStitch_WatermarkPastFirstYear(t *testing.T) {
	loader := &fakeLoader{years: map[int][]types.PricePoint{
		2022: points(2022, 1, 100, 101, 102, 103, 104),
		2023: points(2023, 3, 200, 201, 202, 203, 204),
	}}

	req := request(2022, 2023)
	wm := jan(5)
	req.Watermark = &wm

	series, err := New(loader, nil).Stitch(req)
	require.NoError(t, err)
	// 2022 全部被截断, 水位保持 1 月 5 日
	assert.Equal(t, []string{"203", "204"}, closes(series))
}

func TestStitch_EmptyAndCoveredYears(t *testing.T) {
	loader := &fakeLoader{years: map[int][]types.PricePoint{
		2021: points(2021, 1, 10, 11, 12, 13, 14),
		2022: {},
		2023: points(2023, 2, 20, 21, 22),
		2024: points(2024, 5, 30, 31),
	}}

	series, err := New(loader, nil).Stitch(request(2021, 2024))
	require.NoError(t, err)
	// 2022 为空, 2023 完全落在水位之前, 2024 从 1 月 6 日开始保留
	assert.Equal(t, []string{"10", "11", "12", "13", "14", "31"}, closes(series))
	assert.Equal(t, []int{2021, 2022, 2023, 2024}, loader.calls)
}

func TestStitch_MissingYearAborts(t *testing.T) {
	loader := &fakeLoader{years: map[int][]types.PricePoint{
		2021: points(2021, 1, 10, 11),
		2023: points(2023, 5, 20, 21),
	}}

	series, err := New(loader, nil).Stitch(request(2021, 2023))
	require.Error(t, err)
	assert.Nil(t, series)
	assert.True(t, apperr.IsType(err, apperr.ErrTypeNotFound))
	assert.Contains(t, err.Error(), "year=2022")
	assert.Contains(t, err.Error(), "stitch corn/12")
	assert.Equal(t, []int{2021, 2022}, loader.calls)
}

func TestStitch_ValidatesBeforeLoading(t *testing.T) {
	loader := &fakeLoader{years: map[int][]types.PricePoint{}}

	_, err := New(loader, nil).Stitch(types.SeriesRequest{Product: "corn", Month: 13, BegYear: 2020, EndYear: 2021})
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.ErrTypeValidation))
	assert.Empty(t, loader.calls)
}

func TestStitch_UniqueAscendingDates(t *testing.T) {
	// 每年覆盖 40 天, 相邻年份重叠 15 天
	years := make(map[int][]types.PricePoint)
	for i, year := range []int{2019, 2020, 2021, 2022, 2023} {
		closesForYear := make([]int64, 40)
		for j := range closesForYear {
			closesForYear[j] = int64(year*100 + j)
		}
		years[year] = points(year, 1+i*25, closesForYear...)
	}

	series, err := New(&fakeLoader{years: years}, nil).Stitch(request(2019, 2023))
	require.NoError(t, err)

	seen := make(map[time.Time]bool)
	for i, p := range series.Points {
		assert.False(t, seen[p.Date], "duplicate date %s", p.Date)
		seen[p.Date] = true
		if i > 0 {
			assert.True(t, p.Date.After(series.Points[i-1].Date), "dates not increasing at %d", i)
		}
	}
	// 1 月 1 日起共 4*25+40 天
	assert.Equal(t, 140, series.Len())
	// 重叠日期取最早年份的记录
	assert.Equal(t, 2019, series.Points[30].Expiration)
}

func TestTruncate(t *testing.T) {
	in := points(2023, 1, 1, 2, 3)
	assert.Equal(t, in, Truncate(in, nil))

	wm := jan(2)
	out := Truncate(in, &wm)
	require.Len(t, out, 1)
	assert.Equal(t, jan(3), out[0].Date)
	assert.Len(t, in, 3)
}
