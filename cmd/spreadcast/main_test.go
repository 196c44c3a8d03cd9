package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeYear 写入一年的源文件: 当年 1 月至 3 月的工作日, 逗号小数
func writeYear(t *testing.T, dir, product string, month, year int, base float64) {
	t.Helper()
	folder := filepath.Join(dir, product, strconv.Itoa(month))
	require.NoError(t, os.MkdirAll(folder, 0755))

	var b strings.Builder
	b.WriteString("Fecha,Cierre\n")
	i := 0
	for d := time.Date(year, time.January, 2, 0, 0, 0, 0, time.UTC); d.Month() <= time.March; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		price := base + float64(i%7)*0.25 + float64(i)*0.1
		fmt.Fprintf(&b, "%q,%q\n", d.Format("02/01/2006"), strings.Replace(strconv.FormatFloat(price, 'f', 2, 64), ".", ",", 1))
		i++
	}
	require.NoError(t, os.WriteFile(filepath.Join(folder, strconv.Itoa(year)+".csv"), []byte(b.String()), 0644))
}

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, year := range []int{2022, 2023} {
		writeYear(t, dir, "corn", 12, year, 600)
		writeYear(t, dir, "corn", 4, year, 580)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSeriesCommand(t *testing.T) {
	out, err := execute(t, "--data-dir", fixture(t),
		"series", "--product", "corn", "--month", "12", "--beg", "2022", "--end", "2023")
	require.NoError(t, err)

	assert.Contains(t, out, "corn december:")
	assert.Contains(t, out, "2022:")
	assert.Contains(t, out, "2023:")
}

func TestSpreadCommand_Export(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	out, err := execute(t, "--data-dir", fixture(t), "--output", outDir, "--format", "csv",
		"spread",
		"--a-product", "corn", "--a-month", "12", "--a-beg", "2022", "--a-end", "2023",
		"--b-product", "corn", "--b-month", "4", "--b-beg", "2022", "--b-end", "2023",
		"--export")
	require.NoError(t, err)

	assert.Contains(t, out, "corn_december_2022_vs_corn_april_2022")
	assert.Contains(t, out, "corn_december_2023_vs_corn_april_2023")
	_, err = os.Stat(filepath.Join(outDir, "spread_corn_december_vs_corn_april_spread.csv"))
	assert.NoError(t, err)
}

func TestForecastCommand(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	storePath := filepath.Join(t.TempDir(), "spread.db")
	args := []string{"--data-dir", fixture(t), "--output", outDir, "--store", storePath,
		"forecast",
		"--a-product", "corn", "--a-month", "12", "--a-beg", "2022", "--a-end", "2023",
		"--b-product", "corn", "--b-month", "4", "--b-beg", "2022", "--b-end", "2023",
		"--horizon", "10", "--smoothed", "--export"}

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Spread Forecast Summary")
	assert.Contains(t, out, "Horizon: 10 days")
	assert.Contains(t, out, "Results exported to:")

	matches, err := filepath.Glob(filepath.Join(outDir, "spread_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	out, err = execute(t, "--store", storePath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "spread")
	assert.Contains(t, out, `"horizon":10`)
}

func TestForecastCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing legs",
			args: []string{"forecast"},
			want: "VALIDATION",
		},
		{
			name: "missing year",
			args: []string{"forecast",
				"--a-product", "corn", "--a-month", "12", "--a-beg", "2021", "--a-end", "2023",
				"--b-product", "corn", "--b-month", "4", "--b-beg", "2022", "--b-end", "2023"},
			want: "NOT_FOUND",
		},
		{
			name: "runs without store",
			args: []string{"runs"},
			want: "no store configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--data-dir", fixture(t)}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
