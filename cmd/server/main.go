package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/config"
	"github.com/arenax/tournament-engine/internal/engine"
	"github.com/arenax/tournament-engine/internal/ledger"
	"github.com/arenax/tournament-engine/internal/metrics"
	"github.com/arenax/tournament-engine/internal/pricefeed"
	"github.com/arenax/tournament-engine/internal/ranking"
	"github.com/arenax/tournament-engine/internal/store"
	"github.com/arenax/tournament-engine/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Database.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Database.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Database.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price feed ---
	var feed pricefeed.Feed
	if cfg.PriceFeed.URL != "" {
		feed = pricefeed.NewHTTPFeed(cfg.PriceFeed.URL, cfg.PriceFeed.Timeout, cfg.PriceFeed.RequestsPerSec)
		slog.Info("price feed configured", "url", cfg.PriceFeed.URL)
	} else {
		slog.Warn("PRICE_FEED_URL not set, using static development feed")
		feed = pricefeed.NewStaticFeed(devPrices())
	}

	// --- WebSocket hub ---
	wsHub := engine.NewWSHub()
	go wsHub.Run()

	// --- Core services ---
	clk := clock.Real{}
	tokens := wallet.NewMemoryWallet()
	fees := ledger.ProportionalFee{Rate: cfg.Engine.FeeRate, Minimum: cfg.Engine.FeeMinimum}
	led := ledger.New(st, feed, tokens, clk, fees)
	rankSvc := ranking.NewService(st, clk)
	svc := engine.NewService(st, led, rankSvc, clk, wsHub)

	// --- Revaluation scheduler ---
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	sched := engine.NewScheduler(st, led, rankSvc, feed, clk, wsHub, cfg.Engine.RevaluationInterval)
	go sched.Run(schedCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"tournament-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for trade/ranking/status events.
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tournament-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	schedCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down tournament-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tournament-engine stopped")
}

// devPrices seeds the static feed when no upstream is configured.
func devPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(230),
		"MSFT": decimal.NewFromInt(420),
		"NVDA": decimal.NewFromInt(135),
		"TSLA": decimal.NewFromInt(250),
		"SPY":  decimal.NewFromInt(580),
	}
}
