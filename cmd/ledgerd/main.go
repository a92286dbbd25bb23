// Command ledgerd serves an append-only anchoring chain over HTTP. The
// medvault server talks to it when LEDGER_MODE=http.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"medvault/internal/ledger"
	"medvault/internal/platform/config"
	"medvault/internal/platform/logger"
	"medvault/pkg/platform/middleware/request"
)

func main() {
	log := logger.New()
	cfg := config.LedgerNodeFromEnv()

	chain, err := ledger.OpenChain(cfg.DataDir)
	if err != nil {
		log.Error("failed to open chain", "data_dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := chain.Close(); err != nil {
			log.Error("failed to close chain", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Refuse to serve a chain whose links no longer verify.
	report, err := chain.Verify(ctx)
	if err != nil {
		log.Error("chain verification failed", "error", err)
		os.Exit(1)
	}
	if !report.Valid {
		log.Error("chain is corrupt", "height", report.Height, "broken_at", report.BrokenAt, "reason", report.Reason)
		os.Exit(1)
	}
	log.Info("chain verified", "height", report.Height)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	ledger.NewServer(chain, log).Register(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ledger node", "addr", cfg.Addr, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("ledger node stopped with error", "error", err)
		return
	}
	log.Info("ledger node stopped")
}
