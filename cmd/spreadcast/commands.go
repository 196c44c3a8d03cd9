package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/internal/config"
	"github.com/opsxjacky/spread-forecast/internal/exporter"
	"github.com/opsxjacky/spread-forecast/internal/spread"
	"github.com/opsxjacky/spread-forecast/pkg/types"
)

// legFlags 单条腿的命令行参数
type legFlags struct {
	prefix  string
	product string
	month   int
	beg     int
	end     int
}

func (l *legFlags) register(flags *pflag.FlagSet, prefix, name string) {
	l.prefix = prefix
	flags.StringVar(&l.product, prefix+"product", "", name+" product directory name")
	flags.IntVar(&l.month, prefix+"month", 0, name+" contract month (1-12)")
	flags.IntVar(&l.beg, prefix+"beg", 0, name+" first expiration year")
	flags.IntVar(&l.end, prefix+"end", 0, name+" last expiration year")
}

// apply 只覆盖显式给出的参数
func (l *legFlags) apply(flags *pflag.FlagSet, leg *config.LegSection) {
	if flags.Changed(l.prefix + "product") {
		leg.Product = l.product
	}
	if flags.Changed(l.prefix + "month") {
		leg.Month = l.month
	}
	if flags.Changed(l.prefix + "beg") {
		leg.BegYear = l.beg
	}
	if flags.Changed(l.prefix + "end") {
		leg.EndYear = l.end
	}
}

// spreadFlags 两条腿和到期过滤参数
type spreadFlags struct {
	a, b     legFlags
	sameYear bool
	export   bool
}

func (s *spreadFlags) register(flags *pflag.FlagSet) {
	s.a.register(flags, "a-", "leg A")
	s.b.register(flags, "b-", "leg B")
	flags.BoolVar(&s.sameYear, "same-year", false, "keep rows whose legs expire in different years (false keeps matching years)")
	flags.BoolVar(&s.export, "export", false, "write results to the output directory")
}

func (s *spreadFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	s.a.apply(flags, &cfg.Legs.A)
	s.b.apply(flags, &cfg.Legs.B)
	if flags.Changed("same-year") {
		cfg.Legs.SameYear = s.sameYear
	}
}

func newSeriesCmd(a *app) *cobra.Command {
	var (
		leg    legFlags
		export bool
	)

	cmd := &cobra.Command{
		Use:   "series",
		Short: "Stitch one contract month into a continuous series and report it by expiration",
		RunE: func(cmd *cobra.Command, args []string) error {
			leg.apply(cmd.Flags(), &a.cfg.Legs.A)
			req, err := a.cfg.ToSpreadRequest()
			if err != nil {
				return err
			}

			series, err := a.engine.LoadContinuousSeries(req.A)
			if err != nil {
				return err
			}
			printSeries(cmd, series)

			if export {
				name := fmt.Sprintf("series_%s_%s", series.Product, spread.MonthName(series.Month))
				return a.export(cmd, name, []exporter.Table{exporter.SeriesTable("series", series)}, series)
			}
			return nil
		},
	}

	leg.register(cmd.Flags(), "", "series")
	cmd.Flags().BoolVar(&export, "export", false, "write the series to the output directory")
	return cmd
}

func printSeries(cmd *cobra.Command, s *types.ContinuousSeries) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s: %d points\n", s.Product, spread.MonthName(s.Month), s.Len())

	groups := s.ByExpiration()
	for _, exp := range s.Expirations() {
		points := groups[exp]
		fmt.Fprintf(out, "  %d: %4d points  %s .. %s\n", exp, len(points),
			points[0].Date.Format("2006-01-02"),
			points[len(points)-1].Date.Format("2006-01-02"))
	}
}

func newSpreadCmd(a *app) *cobra.Command {
	var (
		sf       spreadFlags
		noFilter bool
	)

	cmd := &cobra.Command{
		Use:   "spread",
		Short: "Build the spread between two continuous series",
		RunE: func(cmd *cobra.Command, args []string) error {
			sf.apply(cmd.Flags(), a.cfg)
			req, err := a.cfg.ToSpreadRequest()
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}

			legA, err := a.engine.LoadContinuousSeries(req.A)
			if err != nil {
				return err
			}
			legB, err := a.engine.LoadContinuousSeries(req.B)
			if err != nil {
				return err
			}
			var s *types.SpreadSeries
			if noFilter {
				s = spread.Join(legA, legB)
			} else {
				s = a.engine.BuildSpreadSeries(legA, legB, req.SameYear)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d spread rows\n", s.Len())
			counts := make(map[string]int)
			for _, p := range s.Points {
				counts[p.Label]++
			}
			for _, label := range s.Labels() {
				fmt.Fprintf(out, "  %-50s %d\n", label, counts[label])
			}

			if sf.export {
				name := fmt.Sprintf("spread_%s_%s_vs_%s_%s",
					s.LegA.Product, spread.MonthName(s.LegA.Month),
					s.LegB.Product, spread.MonthName(s.LegB.Month))
				return a.export(cmd, name, []exporter.Table{exporter.SpreadTable("spread", s)}, s)
			}
			return nil
		},
	}

	sf.register(cmd.Flags())
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "show the joined rows without the expiration filter")
	return cmd
}

func newForecastCmd(a *app) *cobra.Command {
	var (
		sf       spreadFlags
		horizon  int
		window   int
		smoothed bool
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Build the spread, forecast it and smooth the forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			sf.apply(flags, a.cfg)
			if flags.Changed("horizon") {
				a.cfg.Forecast.Horizon = horizon
			}
			if flags.Changed("window") {
				a.cfg.Smoothing.Window = window
			}
			if flags.Changed("smoothed") {
				a.cfg.Smoothing.Enabled = smoothed
			}

			req, err := a.cfg.ToSpreadRequest()
			if err != nil {
				return err
			}
			if _, err := a.engine.Run(req); err != nil {
				return err
			}
			a.engine.PrintSummary(cmd.OutOrStdout())

			if sf.export {
				paths, err := a.engine.ExportResults(a.cfg.GetOutputPath(), a.cfg.Output.Format)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintf(cmd.OutOrStdout(), "Results exported to: %s\n", p)
				}
			}
			return nil
		},
	}

	sf.register(cmd.Flags())
	cmd.Flags().IntVar(&horizon, "horizon", 0, "number of future daily rows")
	cmd.Flags().IntVar(&window, "window", 0, "smoothing window in rows")
	cmd.Flags().BoolVar(&smoothed, "smoothed", false, "present the smoothed forecast")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent forecast runs recorded in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.store == nil {
				return apperr.NewConfigError("no store configured, set store.sqlite_path or --store", nil)
			}
			runs, err := a.store.Runs(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %-8s %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Kind, string(r.Params))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

// export 按配置格式写出表格; json 格式直接序列化 payload
func (a *app) export(cmd *cobra.Command, name string, tables []exporter.Table, payload interface{}) error {
	dir := a.cfg.GetOutputPath()

	var paths []string
	switch a.cfg.Output.Format {
	case "csv":
		written, err := exporter.WriteCSV(dir, name, tables)
		if err != nil {
			return err
		}
		paths = written
	case "xlsx":
		path := filepath.Join(dir, name+".xlsx")
		if err := exporter.WriteXLSX(path, tables); err != nil {
			return err
		}
		paths = []string{path}
	default:
		path := filepath.Join(dir, name+".json")
		if err := writeJSON(path, payload); err != nil {
			return err
		}
		paths = []string{path}
	}

	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to: %s\n", p)
	}
	return nil
}

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return apperr.NewStorageError("failed to marshal export", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.NewStorageError("failed to create output directory", err).WithContext("path", path)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperr.NewStorageError("failed to write file", err).WithContext("path", path)
	}
	return nil
}
