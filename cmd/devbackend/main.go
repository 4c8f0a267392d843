package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/backend"
	"github.com/ovaphlow/pitchfork/client-session-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	cfg := backend.ConfigFromEnv()
	sugar.Infow("starting devbackend", "addr", cfg.Addr, "prefix", cfg.Prefix, "token_ttl", cfg.TokenTTL)

	dir := backend.NewDirectory(nil)
	if err := backend.SeedDemo(dir); err != nil {
		sugar.Fatalf("seed accounts: %v", err)
	}
	tokens, err := backend.NewTokenService(cfg.Issuer, cfg.TokenTTL, nil)
	if err != nil {
		sugar.Fatalf("token service: %v", err)
	}
	handler := backend.RegisterRoutes(sugar, backend.NewHandler(dir, tokens, sugar), cfg.Prefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	sugar.Info("devbackend is running; press Ctrl+C to stop")
	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}
