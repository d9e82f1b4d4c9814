// Command coach-gateway serves the realtime conversation coaching
// websocket and its health endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/echo-ai/coach-gateway/pkg/gateway/config"
	gatewayserver "github.com/echo-ai/coach-gateway/pkg/gateway/server"
	"github.com/echo-ai/coach-gateway/pkg/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newStore     func(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error)
	newGateway   func(config.Config, *slog.Logger, store.Store) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		newStore:     buildStore,
		newGateway:   gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) },
		signalStop:   signal.Stop,
	}
}

// buildStore picks Redis when configured, in-memory otherwise. The
// returned func closes the store.
func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory session store", "ttl", cfg.SessionTTL)
		return store.NewMemory(cfg.SessionTTL), func() {}, nil
	}
	rs, err := store.NewRedis(ctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("using redis session store", "ttl", cfg.SessionTTL)
	return rs, func() { _ = rs.Close() }, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil || deps.newStore == nil || deps.newGateway == nil {
		return errors.New("missing gateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, closeStore, err := deps.newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer closeStore()

	gw := deps.newGateway(cfg, logger, st)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting coach gateway", "addr", cfg.Addr, "auth_mode", cfg.AuthMode)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	notified := gw.NotifySessionsDraining()
	logger.Info("draining", "sessions_notified", notified)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		canceled := gw.CancelSessions()
		logger.Warn("grace period expired", "sessions_canceled", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("coach gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	// A missing .env file is fine; env vars may come from the process.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "coach-gateway: load .env: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "coach-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
