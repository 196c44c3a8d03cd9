package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// EnvPrefix 环境变量前缀, 例如 SPREAD_DATA_DIR
const EnvPrefix = "SPREAD"

// Config 配置文件结构
type Config struct {
	Data      DataSection      `yaml:"data" envconfig:"DATA"`
	Legs      LegsSection      `yaml:"legs" envconfig:"LEGS"`
	Forecast  ForecastSection  `yaml:"forecast" envconfig:"FORECAST"`
	Smoothing SmoothingSection `yaml:"smoothing" envconfig:"SMOOTHING"`
	Store     StoreSection     `yaml:"store" envconfig:"STORE"`
	Output    OutputSection    `yaml:"output" envconfig:"OUTPUT"`
	Logging   LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
}

// DataSection 源文件配置
type DataSection struct {
	Dir         string `yaml:"dir" split_words:"true" validate:"required"`
	Encoding    string `yaml:"encoding" split_words:"true" validate:"oneof=latin1 latin-1 iso-8859-1 iso8859-1 cp1252 windows-1252 utf-8 utf8"`
	DateColumn  string `yaml:"date_column" split_words:"true"`
	CloseColumn string `yaml:"close_column" split_words:"true"`
	DateFormat  string `yaml:"date_format" split_words:"true" validate:"required"`
	Delimiter   string `yaml:"delimiter" split_words:"true" validate:"len=1"`
}

// LegSection 单条腿的配置
type LegSection struct {
	Product   string `yaml:"product" split_words:"true"`
	Month     int    `yaml:"month" split_words:"true"`
	BegYear   int    `yaml:"beg_year" split_words:"true"`
	EndYear   int    `yaml:"end_year" split_words:"true"`
	Watermark string `yaml:"watermark" split_words:"true"` // 2006-01-02, 可选
}

// LegsSection 价差两条腿
type LegsSection struct {
	A        LegSection `yaml:"a" envconfig:"A"`
	B        LegSection `yaml:"b" envconfig:"B"`
	SameYear bool       `yaml:"same_year" split_words:"true"`
}

// ForecastSection 预测配置
type ForecastSection struct {
	Horizon       int     `yaml:"horizon" split_words:"true" validate:"min=1"`
	AROrder       int     `yaml:"ar_order" split_words:"true" validate:"min=0,max=30"`
	IntervalWidth float64 `yaml:"interval_width" split_words:"true" validate:"gt=0,lt=1"`
}

// SmoothingSection 平滑配置
type SmoothingSection struct {
	Enabled bool `yaml:"enabled" split_words:"true"`
	Window  int  `yaml:"window" split_words:"true" validate:"min=1"`
}

// StoreSection 持久化配置, SQLitePath 为空时不启用
type StoreSection struct {
	SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
}

// OutputSection 输出配置
type OutputSection struct {
	Format string `yaml:"format" split_words:"true" validate:"oneof=json csv xlsx"`
	Path   string `yaml:"path" split_words:"true"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" split_words:"true" validate:"oneof=text json"`
	Output   string `yaml:"output" split_words:"true" validate:"oneof=stderr stdout file"`
	FilePath string `yaml:"file_path" split_words:"true" validate:"required_if=Output file"`
}

// Default 返回全部默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig 从文件加载配置, 再应用环境变量覆盖和默认值.
// path 为空或文件不存在时只使用环境变量和默认值.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, apperr.NewConfigError("failed to read config file", err).
				WithContext("path", path)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperr.NewConfigError("failed to parse config file", err).
					WithContext("path", path)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperr.NewConfigError("failed to apply environment overrides", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults 零值字段使用默认值
func (c *Config) applyDefaults() {
	loader := types.DefaultLoaderConfig()
	engine := types.DefaultEngineConfig()

	if c.Data.Dir == "" {
		c.Data.Dir = loader.DataDir
	}
	if c.Data.Encoding == "" {
		c.Data.Encoding = loader.Encoding
	}
	if c.Data.DateColumn == "" {
		c.Data.DateColumn = "Fecha"
	}
	if c.Data.CloseColumn == "" {
		c.Data.CloseColumn = "Cierre"
	}
	if c.Data.DateFormat == "" {
		c.Data.DateFormat = loader.DateFormat
	}
	if c.Data.Delimiter == "" {
		c.Data.Delimiter = string(loader.Delimiter)
	}
	if c.Forecast.Horizon == 0 {
		c.Forecast.Horizon = 200
	}
	if c.Forecast.AROrder == 0 {
		c.Forecast.AROrder = engine.AROrder
	}
	if c.Forecast.IntervalWidth == 0 {
		c.Forecast.IntervalWidth = engine.IntervalWidth
	}
	if c.Smoothing.Window == 0 {
		c.Smoothing.Window = 7
	}
	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

var validate = validator.New()

// Validate 校验配置取值. 两条腿的参数在 ToSpreadRequest 之后由请求本身校验.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.NewConfigError(
				fmt.Sprintf("invalid value for %s", fe.Namespace()), err).
				WithContext("rule", fe.Tag()).
				WithContext("value", fe.Value())
		}
		return apperr.NewConfigError("invalid config", err)
	}
	return nil
}

// ToSpreadRequest 转换为价差请求
func (c *Config) ToSpreadRequest() (types.SpreadRequest, error) {
	a, err := c.Legs.A.toSeriesRequest("a")
	if err != nil {
		return types.SpreadRequest{}, err
	}
	b, err := c.Legs.B.toSeriesRequest("b")
	if err != nil {
		return types.SpreadRequest{}, err
	}

	return types.SpreadRequest{
		A:        a,
		B:        b,
		SameYear: c.Legs.SameYear,
		Horizon:  c.Forecast.Horizon,
		Window:   c.Smoothing.Window,
		Smoothed: c.Smoothing.Enabled,
	}, nil
}

func (l LegSection) toSeriesRequest(name string) (types.SeriesRequest, error) {
	req := types.SeriesRequest{
		Product: l.Product,
		Month:   l.Month,
		BegYear: l.BegYear,
		EndYear: l.EndYear,
	}
	if l.Watermark != "" {
		wm, err := time.Parse("2006-01-02", l.Watermark)
		if err != nil {
			return types.SeriesRequest{}, apperr.NewConfigError("invalid watermark", err).
				WithContext("leg", name).
				WithContext("watermark", l.Watermark)
		}
		req.Watermark = &wm
	}
	return req, nil
}

// ToLoaderConfig 转换为加载器配置
func (c *Config) ToLoaderConfig() types.LoaderConfig {
	delim, _ := utf8.DecodeRuneInString(c.Data.Delimiter)
	return types.LoaderConfig{
		DataDir:     c.Data.Dir,
		Encoding:    c.Data.Encoding,
		DateColumn:  c.Data.DateColumn,
		CloseColumn: c.Data.CloseColumn,
		DateFormat:  c.Data.DateFormat,
		Delimiter:   delim,
	}
}

// ToEngineConfig 转换为预测引擎配置
func (c *Config) ToEngineConfig() types.EngineConfig {
	return types.EngineConfig{
		AROrder:       c.Forecast.AROrder,
		IntervalWidth: c.Forecast.IntervalWidth,
	}
}

// GetOutputPath 获取输出路径
func (c *Config) GetOutputPath() string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	return "output"
}
