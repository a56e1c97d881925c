package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"kuanb/gosm-linematch/config"
	"kuanb/gosm-linematch/geom"
	"kuanb/gosm-linematch/matching"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/osm"
	"kuanb/gosm-linematch/store"
	"kuanb/gosm-linematch/track"
)

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

type options struct {
	configPath string
	mode       string
	date       string
	input      string
	everything bool
	verbose    verbosity
	filters    config.FiltersConfig
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("linematch", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.configPath, "config", "config.yml", "YAML configuration file")
	fs.StringVar(&o.mode, "mode", "run", "run | serve | import-lines | import-samples | status")
	fs.StringVar(&o.date, "date", "", "(YYYY-MM-DD) day of samples to match in run mode")
	fs.StringVar(&o.input, "input", "", "input file for the import modes (.osm.pbf or .geojson)")
	fs.BoolVar(&o.everything, "everything", false, "process all data without any filter on either bus or lines; required when no black- or whitelist is given")
	fs.StringVar(&o.filters.BusWhitelist, "bus-whitelist", "", "bus identifiers to keep, comma or line separated")
	fs.StringVar(&o.filters.BusBlacklist, "bus-blacklist", "", "bus identifiers to drop, comma or line separated")
	fs.StringVar(&o.filters.LineWhitelist, "line-whitelist", "", "line identifiers to keep, comma or line separated")
	fs.StringVar(&o.filters.LineBlacklist, "line-blacklist", "", "line identifiers to drop, comma or line separated")
	fs.Var(&o.verbose, "v", "verbosity, repeat for more (-v warnings, -v -v info, -v -v -v debug)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// mergeFilters lets command line lists override the configured ones.
func mergeFilters(cfg config.FiltersConfig, flags config.FiltersConfig) config.FiltersConfig {
	pick := func(cli, conf string) string {
		if cli != "" {
			return cli
		}
		return conf
	}
	return config.FiltersConfig{
		BusWhitelist:  pick(flags.BusWhitelist, cfg.BusWhitelist),
		BusBlacklist:  pick(flags.BusBlacklist, cfg.BusBlacklist),
		LineWhitelist: pick(flags.LineWhitelist, cfg.LineWhitelist),
		LineBlacklist: pick(flags.LineBlacklist, cfg.LineBlacklist),
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	monitoring.InitLogging()
	monitoring.SetLevel(monitoring.LevelFromVerbosity(int(opts.verbose)))

	if err := run(opts); err != nil {
		monitoring.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg.Filters = mergeFilters(cfg.Filters, opts.filters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}

	switch opts.mode {
	case "run":
		return runMode(ctx, st, cfg, opts)
	case "serve":
		return serveMode(ctx, st, cfg, opts)
	case "import-lines":
		return importLines(ctx, st, opts.input)
	case "import-samples":
		return importSamples(ctx, st, opts.input)
	case "status":
		return statusMode(ctx, st)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
}

func runMode(ctx context.Context, st *store.Store, cfg *config.AppConfig, opts *options) error {
	if opts.date == "" {
		return errors.New("-date is required in run mode")
	}
	day, err := time.Parse(time.DateOnly, opts.date)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	flt, err := loadFilters(cfg.Filters, opts.everything)
	if err != nil {
		return err
	}
	_, err = runMatch(ctx, st, cfg, day, day.AddDate(0, 0, 1), flt)
	return err
}

func serveMode(ctx context.Context, st *store.Store, cfg *config.AppConfig, opts *options) error {
	flt, err := loadFilters(cfg.Filters, true)
	if err != nil {
		return err
	}
	paths, err := st.LoadReferencePaths(ctx, flt.lines)
	if err != nil {
		return err
	}
	batch, err := track.NewPathBatch(paths)
	if err != nil {
		return err
	}
	monitoring.Infof("Loaded %d line paths (%d points)", batch.Len(), batch.TotalPoints())

	kernel := geom.NewKernel(cfg.Kernel, cfg.Detection.Workers)
	detector, err := matching.NewDetector(cfg.Detection, kernel)
	if err != nil {
		return err
	}
	corrector, err := matching.NewCorrector(cfg.Correction, kernel)
	if err != nil {
		return err
	}
	server := NewServer(batch, detector, corrector)

	if cfg.Server.MetricsIntervalSec > 0 {
		monitoring.StartMetricsLogger(time.Duration(cfg.Server.MetricsIntervalSec)*time.Second, ctx.Done())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	monitoring.Logf("Listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func importLines(ctx context.Context, st *store.Store, input string) error {
	if input == "" {
		return errors.New("-input is required in import-lines mode")
	}
	var (
		paths []track.ReferencePath
		err   error
	)
	switch {
	case strings.HasSuffix(input, ".osm.pbf"):
		paths, err = osm.LoadRoutes(input)
	case strings.EqualFold(filepath.Ext(input), ".geojson"), strings.EqualFold(filepath.Ext(input), ".json"):
		var data []byte
		if data, err = os.ReadFile(input); err == nil {
			paths, err = track.DecodeReferencePaths(data)
		}
	default:
		return fmt.Errorf("unsupported line source %s: expected .osm.pbf or .geojson", input)
	}
	if err != nil {
		return err
	}
	n, err := st.ReplaceLinePaths(ctx, paths)
	if err != nil {
		return err
	}
	monitoring.Logf("Imported %d line paths (%d points) from %s", len(paths), n, input)
	return nil
}

func importSamples(ctx context.Context, st *store.Store, input string) error {
	if input == "" {
		return errors.New("-input is required in import-samples mode")
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	trajectories, err := track.DecodeTrajectories(data)
	if err != nil {
		return err
	}
	n, err := st.InsertSamples(ctx, trajectories)
	if err != nil {
		return err
	}
	monitoring.Logf("Imported %d samples of %d vehicles from %s", n, len(trajectories), input)
	return nil
}

func statusMode(ctx context.Context, st *store.Store) error {
	sum, err := st.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("schema version: %d (dirty=%v)\n", sum.Version, sum.Dirty)
	fmt.Printf("samples: %d from %d vehicles, %d labelled, %d agreeing with the reported line\n",
		sum.Samples, sum.Vehicles, sum.LabelledSamples, sum.AgreeingSamples)
	fmt.Printf("line directions: %d\n", sum.LineDirections)
	if r := sum.LastRun; r != nil {
		fmt.Printf("last run: %s %s, window %s to %s\n", r.ID, r.Status,
			r.WindowStart.Format(time.DateOnly), r.WindowEnd.Format(time.DateOnly))
		if r.Error != "" {
			fmt.Printf("last run error: %s\n", r.Error)
		}
	}
	return nil
}
