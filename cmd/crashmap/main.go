package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/crashmap/internal/analysis"
	"github.com/rewired-gh/crashmap/internal/config"
	"github.com/rewired-gh/crashmap/internal/fetch"
	"github.com/rewired-gh/crashmap/internal/loader"
	"github.com/rewired-gh/crashmap/internal/logger"
	"github.com/rewired-gh/crashmap/internal/models"
	"github.com/rewired-gh/crashmap/internal/querycache"
	"github.com/rewired-gh/crashmap/internal/report"
	"github.com/rewired-gh/crashmap/internal/storage"
	"github.com/rewired-gh/crashmap/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	hourFlag   = flag.Int("hour", 0, "Hour of day to analyse, 0-23 (default from config)")
	injured    = flag.Int("min-injured", 0, "Minimum injured persons for the map (default from config)")
	classFlag  = flag.String("class", "", "Injury class for the street ranking: pedestrians, cyclists or motorists")
	format     = flag.String("format", "text", "Output format: text or json")
	outPath    = flag.String("out", "", "report: also write the JSON report to this file")
	notify     = flag.Bool("notify", false, "report: send the digest to Telegram")
)

const usage = `Usage: crashmap [flags] <command>

Commands:
  report    all views for the current parameters (default)
  map       collisions with at least -min-injured injured persons
  minutes   per-minute breakdown of -hour
  hexbins   hexagon density bins of -hour and the view centre
  streets   top dangerous streets for -class
  raw       raw records of -hour
  explore   interactive shell that recomputes on every parameter change

Flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "report"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	if !knownCommand(command) {
		flag.Usage()
		os.Exit(2)
	}
	if *format != "text" && *format != "json" {
		log.Fatalf("Invalid -format %q: must be text or json", *format)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	params, err := paramsFromFlags(cfg)
	if err != nil {
		logger.Fatal("Invalid parameters: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the snapshot
	src, err := newLoader(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize loader: %v", err)
	}
	start := time.Now()
	store, err := storage.Build(ctx, src)
	if err != nil {
		logger.Fatal("Failed to load collisions: %v", err)
	}
	logStats(store, time.Since(start))

	// Initialize query cache
	var cache *querycache.Cache
	if cfg.Cache.Enabled {
		cache, err = querycache.New(cfg.Cache.Size)
		if err != nil {
			logger.Fatal("Failed to initialize query cache: %v", err)
		}
	}

	fallback := models.GeoPoint{Lat: cfg.Query.FallbackLat, Lon: cfg.Query.FallbackLon}
	analyzer, err := analysis.New(store, analysis.Options{
		RadiusMeters:   cfg.Query.HexRadiusM,
		TopK:           cfg.Query.TopK,
		CenterFallback: cfg.Query.CenterFallback,
		FallbackCenter: &fallback,
		Cache:          cache,
	})
	if err != nil {
		logger.Fatal("Failed to initialize analyzer: %v", err)
	}

	if err := run(ctx, command, cfg, analyzer, params); err != nil {
		logger.Fatal("%s failed: %v", command, err)
	}

	hits, misses := cache.Stats()
	logger.Debug("Query cache: %d hits, %d misses, %d entries", hits, misses, cache.Len())
}

func knownCommand(name string) bool {
	switch name {
	case "report", "map", "minutes", "hexbins", "streets", "raw", "explore":
		return true
	}
	return false
}

// paramsFromFlags starts from the configured defaults and applies the flags
// given on the command line.
func paramsFromFlags(cfg *config.Config) (report.Params, error) {
	class, err := models.ParseInjuryClass(cfg.Query.InjuryClass)
	if err != nil {
		return report.Params{}, err
	}
	p := report.Params{Hour: cfg.Query.Hour, MinInjured: cfg.Query.MinInjured, Class: class}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hour":
			p.Hour = *hourFlag
		case "min-injured":
			p.MinInjured = *injured
		case "class":
			class, err := models.ParseInjuryClass(*classFlag)
			if err != nil {
				flagErr = err
				return
			}
			p.Class = class
		}
	})
	return p, flagErr
}

// newLoader builds the record loader for the configured source.
func newLoader(cfg *config.Config) (loader.Loader, error) {
	switch cfg.Data.Source {
	case "csv":
		client := fetch.NewClient(cfg.Data.Timeout, fetch.ClientConfig{
			MaxRetries:     cfg.Data.MaxRetries,
			RetryDelayBase: cfg.Data.RetryDelayBase,
		})
		return &loader.CSVLoader{
			Path:    cfg.Data.CSVPath(),
			MaxRows: cfg.Data.MaxRows,
			Remote:  client,
		}, nil
	case "sqlite", "postgres":
		driver, err := loader.NormalizeDriver(cfg.Data.Source)
		if err != nil {
			return nil, err
		}
		return &loader.SQLLoader{
			Driver:  driver,
			DSN:     cfg.Data.DSN,
			Table:   cfg.Data.Table,
			MaxRows: cfg.Data.MaxRows,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported data source: %s", cfg.Data.Source)
	}
}

func logStats(store *storage.Store, took time.Duration) {
	stats := store.Stats()
	logger.Info("Loaded %s collisions from %s in %v (snapshot %s)",
		humanize.Comma(int64(store.Len())), store.Source(), took.Round(time.Millisecond), store.ID())
	if skipped := stats.Malformed + stats.MissingCoordinate; skipped > 0 {
		logger.Warn("Skipped %s of %s rows: %s malformed, %s without coordinates",
			humanize.Comma(int64(skipped)), humanize.Comma(int64(stats.Rows)),
			humanize.Comma(int64(stats.Malformed)), humanize.Comma(int64(stats.MissingCoordinate)))
	}
	logger.Debug("Load stats: %s, max injured %d", stats, store.MaxInjured())
}

// run executes one command and writes its result to stdout.
func run(ctx context.Context, command string, cfg *config.Config, a *analysis.Analyzer, p report.Params) error {
	out := os.Stdout
	asJSON := *format == "json"

	switch command {
	case "map":
		points, err := a.MapPoints(p.MinInjured)
		if err != nil {
			return err
		}
		if asJSON {
			return report.WriteJSON(out, points)
		}
		return report.WriteMapPoints(out, points)

	case "minutes":
		counts, err := a.Minutes(p.Hour)
		if err != nil {
			return err
		}
		if asJSON {
			return report.WriteJSON(out, counts)
		}
		return report.WriteMinutes(out, counts)

	case "hexbins":
		view, err := a.Hexagons(p.Hour)
		if err != nil {
			return err
		}
		if asJSON {
			return report.WriteJSON(out, view)
		}
		return report.WriteHexagons(out, view)

	case "streets":
		streets, err := a.TopStreets(p.Class)
		if err != nil {
			return err
		}
		if asJSON {
			return report.WriteJSON(out, streets)
		}
		return report.WriteStreets(out, streets)

	case "raw":
		records, err := a.Raw(p.Hour)
		if err != nil {
			return err
		}
		if asJSON {
			return report.WriteJSON(out, records)
		}
		return report.WriteRecords(out, records)

	case "explore":
		sh := newShell(os.Stdin, out, a, p, cfg.Query.MaxInjured)
		sh.asJSON = asJSON
		return sh.run(ctx)
	}

	// report
	r, err := report.Build(ctx, a, p)
	if err != nil {
		if *notify {
			notifyFailure(cfg, err)
		}
		return err
	}
	if *outPath != "" {
		if err := report.Save(*outPath, r); err != nil {
			return err
		}
		logger.Info("Report %s written to %s", r.ID, *outPath)
	}
	if *notify {
		if err := sendDigest(cfg, r); err != nil {
			return err
		}
	}
	if asJSON {
		return report.WriteJSON(out, r)
	}
	return report.WriteText(out, r)
}

func newTelegram(cfg *config.Config) (*telegram.Client, error) {
	if !cfg.Telegram.Enabled {
		logger.Warn("-notify given but telegram is disabled in config")
		return nil, nil
	}
	client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	return client, nil
}

func notifyFailure(cfg *config.Config, cause error) {
	client, err := newTelegram(cfg)
	if err != nil || client == nil {
		return
	}
	if err := client.SendError(cause); err != nil {
		logger.Warn("Failed to send error notification to Telegram: %v", err)
	}
}

func sendDigest(cfg *config.Config, r *report.Report) error {
	client, err := newTelegram(cfg)
	if err != nil || client == nil {
		return err
	}
	if err := client.SendReport(r); err != nil {
		return err
	}
	logger.Info("Report digest sent to Telegram")
	return nil
}
