package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opsxjacky/spread-forecast/internal/config"
	"github.com/opsxjacky/spread-forecast/internal/data"
	"github.com/opsxjacky/spread-forecast/internal/engine"
	"github.com/opsxjacky/spread-forecast/internal/forecast"
	"github.com/opsxjacky/spread-forecast/internal/logging"
	"github.com/opsxjacky/spread-forecast/internal/store"
)

// app 命令共享的运行环境
type app struct {
	configPath string
	overrides  overrides

	cfg      *config.Config
	logger   *slog.Logger
	engine   *engine.SpreadEngine
	store    *store.SQLiteStore
	closeLog func() error
}

// overrides 命令行对配置文件的覆盖
type overrides struct {
	dataDir   string
	storePath string
	logLevel  string
	format    string
	output    string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "spreadcast",
		Short:         "Stitch futures contracts into continuous series and forecast calendar spreads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "config.yaml", "config file (YAML)")
	flags.StringVar(&a.overrides.dataDir, "data-dir", "", "root directory of the yearly price files")
	flags.StringVar(&a.overrides.storePath, "store", "", "SQLite file for stitched series and the run log")
	flags.StringVar(&a.overrides.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&a.overrides.format, "format", "", "export format: json, csv or xlsx")
	flags.StringVarP(&a.overrides.output, "output", "o", "", "export directory")

	root.AddCommand(newSeriesCmd(a), newSpreadCmd(a), newForecastCmd(a), newRunsCmd(a))
	return root
}

// setup 加载配置, 应用命令行覆盖, 初始化日志与流水线
func (a *app) setup(flags *pflag.FlagSet) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.applyOverrides(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog

	a.engine = engine.New(logger)
	a.engine.SetLoader(data.NewCSVLoader(cfg.ToLoaderConfig(), logger))
	a.engine.SetForecaster(forecast.NewAREngine(cfg.ToEngineConfig()))

	if cfg.Store.SQLitePath != "" {
		st, err := store.NewSQLiteStore(cfg.Store.SQLitePath, logger)
		if err != nil {
			return err
		}
		a.store = st
		a.engine.SetStore(st)
	}
	return nil
}

func (a *app) applyOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("data-dir") {
		cfg.Data.Dir = a.overrides.dataDir
	}
	if flags.Changed("store") {
		cfg.Store.SQLitePath = a.overrides.storePath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.overrides.logLevel
	}
	if flags.Changed("format") {
		cfg.Output.Format = a.overrides.format
	}
	if flags.Changed("output") {
		cfg.Output.Path = a.overrides.output
	}
}

func (a *app) teardown() error {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return err
		}
	}
	if a.closeLog != nil {
		return a.closeLog()
	}
	return nil
}
