package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"newsriver/aggregator/internal/config"
	"newsriver/aggregator/internal/database"
	"newsriver/aggregator/internal/image"
	"newsriver/aggregator/internal/query"
	"newsriver/aggregator/internal/scheduler"
	"newsriver/aggregator/internal/server"
	"newsriver/aggregator/internal/store"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func usage() {
	fmt.Println("Usage: newsriver [command] [options]")
	fmt.Println("Commands:")
	fmt.Println("  run     Run the ingestion scheduler and the API server in one process")
	fmt.Println("  fetch   Run a single ingestion cycle and exit")
	fmt.Println("  server  Run the API server only (read-only database)")
	fmt.Println("\nFor command-specific options, use: newsriver [command] -h")
}

func main() {
	cfg := config.DefaultConfig()

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	fetchCmd := flag.NewFlagSet("fetch", flag.ExitOnError)
	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)

	var feedsStr, logLevelStr string
	var intervalSeconds int

	for _, cmd := range []*flag.FlagSet{runCmd, fetchCmd, serverCmd} {
		cmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
			"Path to the SQLite database file (env: NEWSRIVER_DB_PATH)")
		cmd.StringVar(&logLevelStr, "log-level", cfg.LogLevel.String(),
			"Log level: debug, info, warn, error (env: NEWSRIVER_LOG_LEVEL)")
	}

	for _, cmd := range []*flag.FlagSet{runCmd, fetchCmd} {
		cmd.StringVar(&feedsStr, "feeds", strings.Join(cfg.FeedURLs, ","),
			"Comma-separated feed source URLs (env: NEWSRIVER_FEED_URLS)")
		cmd.IntVar(&cfg.FetchLimit, "limit", cfg.FetchLimit,
			"Maximum entries ingested per source per cycle (env: NEWSRIVER_FETCH_LIMIT)")
	}

	runCmd.IntVar(&intervalSeconds, "interval", int(cfg.FetchInterval.Seconds()),
		"Seconds between ingestion cycles (env: NEWSRIVER_FETCH_INTERVAL)")

	for _, cmd := range []*flag.FlagSet{runCmd, serverCmd} {
		cmd.StringVar(&cfg.ServerHost, "host", cfg.ServerHost,
			"Host to bind the server to (env: NEWSRIVER_HOST)")
		cmd.IntVar(&cfg.ServerPort, "port", cfg.ServerPort,
			"Port to listen on (env: NEWSRIVER_PORT)")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	applyCommon := func() {
		if level, err := zerolog.ParseLevel(logLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)
		if feedsStr != "" {
			cfg.FeedURLs = config.SplitList(feedsStr)
		}
	}

	switch os.Args[1] {
	case "run":
		runCmd.Parse(os.Args[2:])
		applyCommon()
		cfg.FetchInterval = time.Duration(intervalSeconds) * time.Second

		if err := runAll(cfg); err != nil {
			log.Error().Err(err).Msg("Run failed")
			os.Exit(1)
		}

	case "fetch":
		fetchCmd.Parse(os.Args[2:])
		applyCommon()

		if err := runFetch(cfg); err != nil {
			log.Error().Err(err).Msg("Fetch failed")
			os.Exit(1)
		}

	case "server":
		serverCmd.Parse(os.Args[2:])
		applyCommon()

		if err := runServer(cfg); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		usage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		usage()
		os.Exit(1)
	}
}

// runAll hosts the ingestion scheduler and the API server in one
// process sharing one store; the deployment shape this system is built
// for.
func runAll(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	st := store.New(db, cfg.PreferredSource)
	resolver := image.NewResolver(cfg.ImageTimeout)
	svc := query.NewService(st, resolver)
	sched := scheduler.New(st, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx)

	return server.Run(ctx, svc, st, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}

// runFetch executes one ingestion cycle and exits.
func runFetch(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	st := store.New(db, cfg.PreferredSource)
	sched := scheduler.New(st, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	results := sched.RunCycle(ctx)
	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("sources", len(results)).
		Msg("Ingestion cycle finished")

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed == len(results) && failed > 0 {
		return fmt.Errorf("all %d sources failed", failed)
	}
	return nil
}

// runServer starts the read-only HTTP API server.
func runServer(cfg *config.Config) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.ReadOnly = true

	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	st := store.New(db, cfg.PreferredSource)
	resolver := image.NewResolver(cfg.ImageTimeout)
	svc := query.NewService(st, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, svc, st, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}
