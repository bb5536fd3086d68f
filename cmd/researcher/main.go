package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/adapter/chromedp_search"
	"github.com/tomichandesu/research-tool-sub000/internal/adapter/embedding"
	"github.com/tomichandesu/research-tool-sub000/internal/adapter/httpimage"
	"github.com/tomichandesu/research-tool-sub000/internal/adapter/jsonfile"
	"github.com/tomichandesu/research-tool-sub000/internal/adapter/postgres"
	redis_adapter "github.com/tomichandesu/research-tool-sub000/internal/adapter/redis"
	"github.com/tomichandesu/research-tool-sub000/internal/adapter/suggest"
	"github.com/tomichandesu/research-tool-sub000/internal/delivery/http/handler"
	"github.com/tomichandesu/research-tool-sub000/internal/delivery/http/router"
	"github.com/tomichandesu/research-tool-sub000/internal/filter"
	"github.com/tomichandesu/research-tool-sub000/internal/matcher"
	"github.com/tomichandesu/research-tool-sub000/internal/proxy"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/internal/usecase"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
)

const (
	submittedExpiry = 24 * time.Hour
	queuePoll       = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

const usage = `Usage: researcher <mode> [flags] [keyword...]

Modes:
  auto [seed...]   explore keywords from the seeds (or the saved frontier with --resume)
  batch kw...      research a fixed keyword list concurrently
  serve            run the ops API and drain the redis batch queue
  compact          rewrite the known-product registry without duplicates
  login            open the source marketplace login in a visible browser to store the session

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "researcher:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	resume     bool
	reset      bool
	serveAPI   bool
}

func run(argv []string) error {
	fs := pflag.NewFlagSet("researcher", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.configPath, "config", os.Getenv("RESEARCH_CONFIG"), "path to a YAML configuration file")
	fs.BoolVar(&opts.resume, "resume", false, "continue from the saved exploration state")
	fs.BoolVar(&opts.reset, "reset", false, "discard the saved exploration state first")
	fs.BoolVar(&opts.serveAPI, "http", false, "serve the ops API while exploring (auto mode)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("port", "8080", "ops API port")
	fs.Int("max-keywords", 0, "stop after exploring this many keywords")
	fs.Int("max-minutes", 0, "stop after this many minutes")
	fs.Int("max-candidates", 0, "stop after finding this many products (0 means no limit)")
	fs.String("state", "", "exploration state file")
	fs.Int("concurrency", 0, "keywords researched in parallel in batch mode")
	fs.Bool("headless", true, "run the browser headless")

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing mode")
	}
	mode, args := fs.Arg(0), fs.Args()[1:]

	cfg, err := config.Load(opts.configPath, fs)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log}
	defer a.close()

	switch mode {
	case "auto":
		return a.runAuto(ctx, args, opts)
	case "batch":
		return a.runBatch(ctx, args)
	case "serve":
		return a.runServe(ctx)
	case "compact":
		return a.runCompact(ctx)
	case "login":
		return a.runLogin(ctx)
	default:
		fs.Usage()
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// app builds the collaborators a mode needs and releases them on close.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	rdb     *redis.Client
	closers []func()

	outcomeStore repository.OutcomeRepository
	outcomeReady bool
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) initMetrics() {
	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.reg)
}

func (a *app) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	if a.cfg.RedisAddr == "" {
		return nil, errors.New("redis_addr is not configured")
	}
	rdb, err := redis_adapter.NewClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.log.Info("Redis connection established", zap.String("addr", a.cfg.RedisAddr))
	a.rdb = rdb
	a.closers = append(a.closers, func() { rdb.Close() })
	return rdb, nil
}

type knownRegistry interface {
	repository.KnownProductRepository
	Compact(ctx context.Context) (int, error)
}

func (a *app) registry(ctx context.Context) (knownRegistry, error) {
	switch a.cfg.Registry.Backend {
	case config.RegistryBackendRedis:
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, fmt.Errorf("known-product registry: %w", err)
		}
		return redis_adapter.NewKnownRepo(rdb, a.cfg.Registry.RedisKey), nil
	default:
		return jsonfile.NewKnownStore(a.cfg.Registry.Path), nil
	}
}

// outcomes returns the postgres outcome store, or nil when none is configured.
func (a *app) outcomes(ctx context.Context) (repository.OutcomeRepository, error) {
	if a.outcomeReady || a.cfg.PostgresURL == "" {
		return a.outcomeStore, nil
	}
	db, err := postgres.NewPool(ctx, a.cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	a.log.Info("PostgreSQL connection pool established")
	a.outcomeStore, a.outcomeReady = postgres.NewOutcomeRepo(db), true
	return a.outcomeStore, nil
}

// researcher wires the keyword research pipeline and the suggestion client.
func (a *app) researcher(ctx context.Context) (usecase.KeywordResearcher, repository.SuggestRepository, error) {
	cfg := a.cfg
	proxies := proxy.NewManager(cfg.Browser.Proxies, cfg.Browser.UserAgents)
	fetcher := httpimage.NewFetcher(cfg.Search.ImageFetchTimeout, proxies)

	var embedder repository.ImageEmbedder
	if c := embedding.NewClient(cfg.Embedding); c.Available() {
		embedder = c
	} else {
		a.log.Info("no embedding endpoint configured, matching on local features only")
	}

	search, err := chromedp_search.NewSearchRepo(cfg.Search, cfg.Browser, proxies, fetcher, a.log)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, search.Close)

	outcomes, err := a.outcomes(ctx)
	if err != nil {
		return nil, nil, err
	}

	mcfg := cfg.Matcher
	mcfg.NGWords = cfg.SourcingNGWords()

	pipeline := filter.NewPipeline(cfg.Filter, filter.NewSalesEstimator(cfg.Sales))
	r := usecase.NewResearcher(
		search,
		pipeline,
		matcher.New(mcfg, fetcher, embedder, a.log, a.metrics),
		filter.NewProfitCalculator(cfg.Profit, cfg.Fees),
		outcomes,
		cfg.Matcher,
		a.log,
		a.metrics,
	)
	sugg := suggest.NewClient(cfg.Search.SuggestURL, cfg.Search.SuggestMarketplaceID, cfg.Search.SuggestTimeout, proxies, a.log)
	return r, sugg, nil
}

func (a *app) runAuto(ctx context.Context, seeds []string, opts options) error {
	if len(seeds) == 0 && !opts.resume {
		return errors.New("auto needs at least one seed keyword or --resume")
	}
	a.initMetrics()

	research, sugg, err := a.researcher(ctx)
	if err != nil {
		return err
	}
	known, err := a.registry(ctx)
	if err != nil {
		return err
	}

	excluded := append([]string{}, a.cfg.Explore.ExcludedKeywords...)
	excluded = append(excluded, a.cfg.Filter.ProhibitedKeywords...)
	excluded = append(excluded, a.cfg.Filter.ExcludedBrands...)

	sched := usecase.NewScheduler(
		a.cfg.Explore,
		excluded,
		research,
		sugg,
		jsonfile.NewStateStore(a.cfg.Explore.StatePath, a.log),
		known,
		a.log,
		a.metrics,
	)

	if opts.serveAPI {
		srv := a.server(handler.NewHandler(sched, nil, nil, a.log))
		go a.listen(srv)
		defer a.shutdown(srv)
	}

	sum, err := sched.Run(ctx, seeds, usecase.RunOptions{Resume: opts.resume, Reset: opts.reset})
	if err != nil {
		return err
	}
	return printJSON(sum)
}

func (a *app) runBatch(ctx context.Context, keywords []string) error {
	if len(keywords) == 0 {
		return errors.New("batch needs at least one keyword")
	}
	a.initMetrics()

	research, _, err := a.researcher(ctx)
	if err != nil {
		return err
	}
	known, err := a.registry(ctx)
	if err != nil {
		return err
	}

	runner := usecase.NewBatchRunner(research, known, a.cfg.Explore.BatchConcurrency, a.cfg.Explore.KeywordTimeout, a.log, a.metrics)
	res, err := runner.Run(ctx, keywords)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) runServe(ctx context.Context) error {
	a.initMetrics()

	rdb, err := a.redis(ctx)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	research, _, err := a.researcher(ctx)
	if err != nil {
		return err
	}
	known, err := a.registry(ctx)
	if err != nil {
		return err
	}
	outcomes, err := a.outcomes(ctx)
	if err != nil {
		return err
	}

	queue := redis_adapter.NewQueueRepo(rdb)
	keywords := usecase.NewKeywordManager(redis_adapter.NewSubmittedRepo(rdb), queue, submittedExpiry, a.log)
	runner := usecase.NewBatchRunner(research, known, a.cfg.Explore.BatchConcurrency, a.cfg.Explore.KeywordTimeout, a.log, a.metrics)
	worker := usecase.NewQueueWorker(queue, runner, a.cfg.Explore.BatchConcurrency, queuePoll, a.log, a.metrics)

	srv := a.server(handler.NewHandler(nil, keywords, outcomes, a.log))
	go a.listen(srv)

	worker.Start(ctx)
	a.shutdown(srv)
	return nil
}

func (a *app) runCompact(ctx context.Context) error {
	known, err := a.registry(ctx)
	if err != nil {
		return err
	}
	removed, err := known.Compact(ctx)
	if err != nil {
		return err
	}
	a.log.Info("known-product registry compacted", zap.String("backend", a.cfg.Registry.Backend), zap.Int("removed", removed))
	return nil
}

// runLogin opens the login page in a visible browser on the shared profile
// and waits for an interrupt, leaving the stored session to later runs.
func (a *app) runLogin(ctx context.Context) error {
	if a.cfg.Browser.UserDataDir == "" {
		return errors.New("login needs browser.user_data_dir to keep the session")
	}
	bcfg := a.cfg.Browser
	bcfg.Headless = false
	bcfg.RequestDelay = 0
	proxies := proxy.NewManager(bcfg.Proxies, bcfg.UserAgents)
	search, err := chromedp_search.NewSearchRepo(a.cfg.Search, bcfg, proxies, nil, a.log)
	if err != nil {
		return err
	}
	defer search.Close()
	return search.Login(ctx, a.cfg.Search.LoginURL)
}

func (a *app) server(h *handler.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + a.cfg.ServerPort,
		Handler:      router.New(h, a.reg, a.log, a.metrics),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (a *app) listen(srv *http.Server) {
	a.log.Info("Starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("Could not listen", zap.String("addr", srv.Addr), zap.Error(err))
	}
}

func (a *app) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Warn("server shutdown", zap.Error(err))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
