package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"circulate/internal/circulation"
	circulationStore "circulate/internal/circulation/store"
	"circulate/internal/config"
	"circulate/internal/copypool"
	poolStore "circulate/internal/copypool/store"
	"circulate/internal/database"
	"circulate/internal/event"
	"circulate/internal/fine"
	circulateHttp "circulate/internal/http"
	circulationHandler "circulate/internal/http/circulation"
	titleHandler "circulate/internal/http/title"
	"circulate/internal/sweeper"
	"circulate/internal/token"
	tokenStore "circulate/internal/token/store"
	"circulate/internal/waitlist"
	waitlistStore "circulate/internal/waitlist/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := event.NewBus()
	bus.Subscribe(event.LogHandler(slog.Default()))

	var (
		pool   = copypool.NewService(poolStore.New(db))
		queue  = waitlist.NewQueue(waitlistStore.New(db))
		issuer = token.NewIssuer([]byte(cfg.Token.Secret), cfg.Policy.HoldTTL, tokenStore.New(db))
		fines  = fine.NewCalculator(cfg.Policy.FineDailyRate)
	)

	svc := circulation.NewService(circulation.Params{
		Repo:                  circulationStore.New(db),
		Pool:                  pool,
		Waitlist:              queue,
		Tokens:                issuer,
		Fines:                 fines,
		Events:                bus,
		HoldTTL:               cfg.Policy.HoldTTL,
		LoanPeriod:            cfg.Policy.LoanPeriod,
		MaxActivePerRequester: cfg.Policy.MaxActivePerRequester,
	})

	sw := sweeper.New(svc, cfg.Policy.SweepInterval, cfg.Policy.ExpiryWarningWindow, slog.Default())
	go sw.Run(ctx)

	var (
		circulationH = circulationHandler.NewHandler(svc)
		titlesH      = titleHandler.NewHandler(pool, svc)
	)

	router := circulateHttp.New(circulationH, titlesH)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.App.Port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
