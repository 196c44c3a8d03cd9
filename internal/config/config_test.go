package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
)

const sampleYAML = `
data:
  dir: /srv/futures
  encoding: utf-8
  delimiter: ";"
legs:
  a:
    product: corn
    month: 12
    beg_year: 2021
    end_year: 2023
  b:
    product: corn
    month: 4
    beg_year: 2022
    end_year: 2024
    watermark: "2021-06-30"
  same_year: true
forecast:
  horizon: 60
smoothing:
  enabled: true
  window: 5
output:
  format: csv
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/futures", cfg.Data.Dir)
	assert.Equal(t, "utf-8", cfg.Data.Encoding)
	assert.Equal(t, "Fecha", cfg.Data.DateColumn)
	assert.Equal(t, "Cierre", cfg.Data.CloseColumn)
	assert.Equal(t, "2/1/2006", cfg.Data.DateFormat)
	assert.Equal(t, 60, cfg.Forecast.Horizon)
	assert.Equal(t, 2, cfg.Forecast.AROrder)
	assert.Equal(t, 0.8, cfg.Forecast.IntervalWidth)
	assert.Equal(t, 5, cfg.Smoothing.Window)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, "output", cfg.GetOutputPath())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SPREAD_DATA_DIR", "/mnt/prices")
	t.Setenv("SPREAD_FORECAST_HORIZON", "30")
	t.Setenv("SPREAD_FORECAST_AR_ORDER", "3")
	t.Setenv("SPREAD_LEGS_A_PRODUCT", "wheat")
	t.Setenv("SPREAD_STORE_SQLITE_PATH", "/tmp/spreads.db")
	t.Setenv("SPREAD_LOGGING_LEVEL", "debug")
	t.Setenv("SPREAD_OUTPUT_PATH", "reports")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/mnt/prices", cfg.Data.Dir)
	assert.Equal(t, 30, cfg.Forecast.Horizon)
	assert.Equal(t, 3, cfg.Forecast.AROrder)
	assert.Equal(t, "wheat", cfg.Legs.A.Product)
	assert.Equal(t, "/tmp/spreads.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "reports", cfg.GetOutputPath())

	// 未设置的环境变量不覆盖文件内容
	assert.Equal(t, "utf-8", cfg.Data.Encoding)
	assert.Equal(t, 5, cfg.Smoothing.Window)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Data, cfg.Data)
	assert.Equal(t, 200, cfg.Forecast.Horizon)
	assert.Equal(t, 7, cfg.Smoothing.Window)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "data: [unclosed"))
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.ErrTypeConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "unknown encoding", mutate: func(c *Config) { c.Data.Encoding = "ebcdic" }, wantErr: "Encoding"},
		{name: "long delimiter", mutate: func(c *Config) { c.Data.Delimiter = ";;" }, wantErr: "Delimiter"},
		{name: "interval width", mutate: func(c *Config) { c.Forecast.IntervalWidth = 1.5 }, wantErr: "IntervalWidth"},
		{name: "export format", mutate: func(c *Config) { c.Output.Format = "parquet" }, wantErr: "Format"},
		{name: "log file needs path", mutate: func(c *Config) { c.Logging.Output = "file" }, wantErr: "FilePath"},
		{name: "negative window", mutate: func(c *Config) { c.Smoothing.Window = -1 }, wantErr: "Window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.IsType(err, apperr.ErrTypeConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToSpreadRequest(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	req, err := cfg.ToSpreadRequest()
	require.NoError(t, err)
	require.NoError(t, req.Validate())

	assert.Equal(t, "corn", req.A.Product)
	assert.Equal(t, 12, req.A.Month)
	assert.Equal(t, 2021, req.A.BegYear)
	assert.Nil(t, req.A.Watermark)
	require.NotNil(t, req.B.Watermark)
	assert.Equal(t, time.Date(2021, time.June, 30, 0, 0, 0, 0, time.UTC), *req.B.Watermark)
	assert.True(t, req.SameYear)
	assert.Equal(t, 60, req.Horizon)
	assert.Equal(t, 5, req.Window)
	assert.True(t, req.Smoothed)
}

func TestToSpreadRequest_BadWatermark(t *testing.T) {
	cfg := Default()
	cfg.Legs.A.Watermark = "30/06/2021"

	_, err := cfg.ToSpreadRequest()
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.ErrTypeConfig))
	assert.Contains(t, err.Error(), "leg=a")
}

func TestToLoaderAndEngineConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	lc := cfg.ToLoaderConfig()
	assert.Equal(t, "/srv/futures", lc.DataDir)
	assert.Equal(t, ';', lc.Delimiter)
	assert.Equal(t, "Fecha", lc.DateColumn)

	ec := cfg.ToEngineConfig()
	assert.Equal(t, 2, ec.AROrder)
	assert.Equal(t, 0.8, ec.IntervalWidth)
}
