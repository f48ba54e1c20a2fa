package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/wellscope/pkg/classifier"
	"github.com/umputun/wellscope/pkg/config"
	"github.com/umputun/wellscope/pkg/db"
	"github.com/umputun/wellscope/pkg/extract"
	"github.com/umputun/wellscope/pkg/feed"
	"github.com/umputun/wellscope/pkg/insight"
	"github.com/umputun/wellscope/pkg/normalize"
	"github.com/umputun/wellscope/pkg/report"
	"github.com/umputun/wellscope/pkg/repository"
	"github.com/umputun/wellscope/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"f" long:"config" env:"CONFIG" default:"config.yml" description:"config file"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides config"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Printf("[ERROR] can't load config %s: %v", opts.Config, err)
		os.Exit(1)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	setupLog(opts.Debug, cfg.Classifier.Remote.Token, cfg.Classifier.OpenAI.APIKey)

	log.Printf("[INFO] starting wellscope version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts.Debug); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

// run wires all components together and blocks until the context ends
func run(ctx context.Context, cfg *config.Config, debug bool) error {
	database, err := db.New(db.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			log.Printf("[WARN] failed to close database: %v", closeErr)
		}
	}()

	reports := repository.NewReports(database.DB())

	// analysis pipeline: classifier gateway -> normalizer -> extractor -> aggregator
	gateway := classifier.NewGatewayFromConfig(cfg.Classifier)

	var translator normalize.Translator
	if t := normalize.NewHTTPTranslator(cfg.Normalizer); t != nil {
		translator = t
	}
	normalizer := normalize.New(translator)

	extractor := extract.New(gateway, normalizer, cfg.Classifier.SentimentThreshold)

	var strategy insight.RecommendationStrategy = insight.NewTemplateStrategy()
	if cfg.Analysis.Recommendations == "llm" {
		strategy = insight.NewLLMStrategy(cfg.Classifier.OpenAI)
	}
	aggregator, err := insight.NewAggregator(cfg.Analysis, strategy)
	if err != nil {
		return fmt.Errorf("setup aggregator: %w", err)
	}

	feedClient := feed.NewClient(cfg.Feed)

	orchestrator := report.NewOrchestrator(feedClient, extractor, aggregator, report.Config{
		MaxItems:     cfg.Feed.MaxItems,
		CommentDepth: cfg.Feed.CommentDepth,
		Workers:      cfg.Analysis.Workers,
	})

	dispatcher := report.NewDispatcher(reports, orchestrator, report.DispatcherConfig{})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	srv := server.New(server.Config{
		Listen:  cfg.Server.Listen,
		Timeout: cfg.Server.Timeout,
	}, reports, orchestrator, revision, debug)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	var secrets []string
	for _, s := range secs {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
