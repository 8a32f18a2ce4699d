package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/LeventeLantos/meme-forwarder/internal/api"
	"github.com/LeventeLantos/meme-forwarder/internal/cache"
	"github.com/LeventeLantos/meme-forwarder/internal/client"
	"github.com/LeventeLantos/meme-forwarder/internal/config"
	"github.com/LeventeLantos/meme-forwarder/internal/logging"
	"github.com/LeventeLantos/meme-forwarder/internal/quota"
	"github.com/LeventeLantos/meme-forwarder/internal/repo"
	"github.com/LeventeLantos/meme-forwarder/internal/scheduler"
	"github.com/LeventeLantos/meme-forwarder/internal/scoring"
	"github.com/LeventeLantos/meme-forwarder/internal/service"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "meme-forwarder",
		Usage: "forward the funniest photos from a folder of channels to one target channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the JSON or YAML config file",
				Value:   config.DefaultPath,
				EnvVars: []string{config.PathEnv},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "poll the source folders and forward qualifying memes",
				Action: runForwarder,
			},
			{
				Name:   "ledger",
				Usage:  "print the stored forwarding watermarks",
				Action: printLedger,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the config, then exit",
				Action: checkConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("meme-forwarder failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(cctx *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadAll(cctx.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runForwarder(cctx *cli.Context) error {
	cfg, logger, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("meme-forwarder starting",
		"addr", cfg.Server.Address,
		"check_period", cfg.Scheduler.CheckPeriod.String(),
		"folders", cfg.Scheduler.Folders,
		"target", cfg.Telegram.TargetChannel,
		"ledger", cfg.Ledger.Backend,
		"redis", cfg.Redis.Enabled,
	)

	rdb := newRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	ledgerRepo, closeLedger, err := openLedger(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	ledger := service.NewLedger(ctx, ledgerRepo, logger.With("component", "ledger"))

	q, err := quota.New(cfg.Quota.MaxMessagesToSend, cfg.Quota.SendInterval, cfg.Quota.MinSendGap)
	if err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	tgClient, err := client.NewTelegram(client.TelegramConfig{
		APIID:         cfg.Telegram.APIID,
		APIHash:       cfg.Telegram.APIHash,
		StringSession: cfg.Telegram.StringSession,
		TargetChannel: cfg.Telegram.TargetChannel,
	}, logger.With("component", "telegram"))
	if err != nil {
		return err
	}

	fwd := newForwarder(cfg, tgClient, ledger, q, logger)
	if rdb != nil {
		fwd.WithHooks(auditHook(cache.NewRedisCache(rdb, cfg.Redis.TTL), tgClient.Target()))
	}

	return tgClient.Run(ctx, func(ctx context.Context) error {
		sched, err := scheduler.New(cfg.Scheduler.CheckPeriod, func(ctx context.Context) {
			if _, err := fwd.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sweep failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		sched.WithLogger(logger.With("component", "scheduler"))

		srv := &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           loggingMiddleware(api.Router(api.NewHandler(sched, ledger, q))),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
			}
		}()

		sched.Start()

		<-ctx.Done()
		logger.Info("shutting down")

		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func newForwarder(cfg *config.Config, p service.Platform, ledger *service.Ledger, q *quota.Quota, logger *slog.Logger) *service.Forwarder {
	resolver := service.NewResolver(p,
		cfg.Scoring.InvolvementCoefficient,
		cfg.Retry.MetadataMaxAttempts,
		logger.With("component", "resolver"),
	)

	gate := service.NewGate(service.GateConfig{
		FunnyCoefficient:     cfg.Scoring.FunnyCoefficient,
		SpreadingCoefficient: cfg.Scoring.SpreadingCoefficient,
		MinAge:               cfg.Scoring.MemeAgeThreshold,
		Positive:             scoring.NewReactionSet(cfg.Scoring.PositiveReactions),
		Negative:             scoring.NewReactionSet(cfg.Scoring.NegativeReactions),
	}, q)

	return service.NewForwarder(p, resolver, gate, q, ledger, service.ForwarderConfig{
		Folders:              cfg.Scheduler.Folders,
		HistoryDepth:         cfg.Scheduler.HistoryDepth,
		IterationMaxAttempts: cfg.Retry.IterationMaxAttempts,
		IterationRetryDelay:  cfg.Retry.IterationRetryDelay,
		SendMaxAttempts:      cfg.Retry.SendMaxAttempts,
	}, logger.With("component", "forwarder"))
}

func auditHook(fc cache.ForwardCache, target string) func(ctx context.Context, ev service.ForwardedEvent) error {
	return func(ctx context.Context, ev service.ForwardedEvent) error {
		return fc.StoreForwarded(ctx, cache.ForwardRecord{
			ChannelKey:  ev.Channel.Channel.Key(),
			MessageID:   ev.Message.ID,
			Target:      target,
			FunnyScore:  ev.FunnyScore,
			Involvement: ev.Channel.Involvement,
			ForwardedAt: ev.ForwardedAt,
		})
	}
}

func newRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func openLedger(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (repo.LedgerRepository, func(), error) {
	noop := func() {}

	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		if rdb == nil {
			return nil, noop, errors.New("redis ledger requires REDIS_ADDR")
		}
		return repo.NewRedisLedger(rdb, cfg.Ledger.RedisKey), noop, nil

	case config.LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.Ledger.PostgresURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		pl := repo.NewPostgresLedger(pool)
		if err := pl.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return pl, pool.Close, nil

	default:
		return repo.NewFileLedger(cfg.Ledger.File, logger.With("component", "ledger_file")), noop, nil
	}
}

func printLedger(cctx *cli.Context) error {
	cfg, logger, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	rdb := newRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	ledgerRepo, closeLedger, err := openLedger(cctx.Context, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	entries, err := ledgerRepo.Load(cctx.Context)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	enc := json.NewEncoder(cctx.App.Writer)
	for _, k := range keys {
		if err := enc.Encode(map[string]any{"channel": k, "lastMessageId": entries[k]}); err != nil {
			return err
		}
	}
	return nil
}

func checkConfig(cctx *cli.Context) error {
	cfg, _, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cctx.App.Writer, "config ok: folders=%v target=%s ledger=%s check_period=%s\n",
		cfg.Scheduler.Folders, cfg.Telegram.TargetChannel, cfg.Ledger.Backend, cfg.Scheduler.CheckPeriod)
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
