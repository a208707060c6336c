package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/config"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	if err := runFn(ctx, os.Args[1:], os.Getenv, listenAndServe); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

func run(ctx context.Context, args []string, getenv envFn, listen listenFn) error {
	fs := flag.NewFlagSet("trusai-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to trusai config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(firstNonEmpty(*configPath, getenv("TRUSAI_CONFIG_PATH")))
	if err != nil {
		return err
	}
	cfg.ListenAddr = firstNonEmpty(getenv("TRUSAI_LISTEN_ADDR"), cfg.ListenAddr)
	cfg.Admin.Token = firstNonEmpty(getenv("TRUSAI_ADMIN_TOKEN"), cfg.Admin.Token)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return serve(ctx, a, listen)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// serve runs the HTTP server and, when configured, the fairness loop until
// ctx is cancelled or one of them fails.
func serve(ctx context.Context, a *app, listen listenFn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("trusai-gateway listening", zap.String("addr", a.server.Addr))
		if err := listen(a.server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("trusai-gateway shutting down")
		return a.server.Shutdown(shutdownCtx)
	})
	if a.monitor != nil && a.fairnessInterval > 0 {
		g.Go(func() error {
			return a.monitor.Loop(gctx, a.fairnessInterval)
		})
	}
	return g.Wait()
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
