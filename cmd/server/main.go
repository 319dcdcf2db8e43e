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
	"github.com/rs/cors"

	"github.com/mithai/sim-engine/internal/config"
	"github.com/mithai/sim-engine/internal/game"
	"github.com/mithai/sim-engine/internal/metrics"
	"github.com/mithai/sim-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	env, err := config.ParseEnv()
	if err != nil {
		slog.Error("invalid environment", "err", err)
		os.Exit(1)
	}

	// --- Game rules ---
	rules, err := config.LoadRules(env.RulesFile)
	if err != nil {
		slog.Error("failed to load rules", "path", env.RulesFile, "err", err)
		os.Exit(1)
	}
	if env.RulesFile != "" {
		slog.Info("rules loaded", "path", env.RulesFile)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if env.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), env.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if env.RedisURL != "" {
			opt, err := redis.ParseURL(env.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
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

	// --- WebSocket hub ---
	wsHub := game.NewWSHub()
	go wsHub.Run()

	// --- Game service ---
	svc := game.NewService(st, rules, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS for the facilitator dashboard and team consoles.
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"sim-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for round event updates.
		r.Get("/ws", wsHub.HandleWS)

		// Team roster.
		r.Post("/teams", svc.CreateTeam)
		r.Get("/teams", svc.ListTeams)

		// Per-round bidding and processing.
		r.Route("/rounds/{quarter}/{month}", func(r chi.Router) {
			r.Post("/rm-bids", svc.SubmitRMBid)
			r.Get("/rm-bids", svc.GetRMAllocations)
			r.Post("/customer-bids", svc.SubmitCustomerBid)
			r.Get("/customer-bids", svc.GetCustomerAllocations)
			r.Post("/rm-allocation", svc.RunRMAllocation)
			r.Post("/customer-auction", svc.RunCustomerAuction)
			r.Post("/settlement", svc.SettleMonth)
			r.Get("/financials", svc.GetFinancials)
		})

		// Quarter close.
		r.Post("/quarters/{quarter}/liquidation", svc.LiquidateQuarter)

		// Standings.
		r.Get("/leaderboard", svc.GetLeaderboard)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + env.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sim-engine listening", "port", env.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down sim-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("sim-engine stopped")
}
