// Command toolrtd runs the tool dispatch runtime as a standalone process,
// serving its JSON-RPC surface over stdio or HTTP depending on
// configuration. Wiring order mirrors cmd/buckley/main.go's
// dependency-construction style: config, then the pieces that depend on
// it, then the surface that ties them together.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voocel/toolrt/internal/cache"
	"github.com/voocel/toolrt/internal/config"
	"github.com/voocel/toolrt/internal/dispatcher"
	"github.com/voocel/toolrt/internal/finder"
	"github.com/voocel/toolrt/internal/hook"
	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/registry"
	"github.com/voocel/toolrt/internal/rpc"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolrtd: loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "toolrtd: invalid config: %v\n", err)
		os.Exit(1)
	}

	log := obslog.New("toolrtd", parseLevel(cfg.LogLevel), os.Stderr)

	reg := registry.New()

	cachePath, err := resolveCachePath(cfg.Cache.Path)
	if err != nil {
		log.Error("toolrtd: resolving cache path", "error", err)
		os.Exit(1)
	}
	cacheEngine, err := cache.New(cache.Options{
		MemorySize: cfg.Cache.MemorySize,
		Persist:    cfg.Cache.Enabled && cfg.Cache.Persist,
		Path:       cachePath,
		Logger:     log,
	})
	if err != nil {
		log.Error("toolrtd: initializing cache", "error", err)
		os.Exit(1)
	}
	defer cacheEngine.Close()

	hooks := hook.New(log)
	disp := dispatcher.New(dispatcher.Options{
		Registry:      reg,
		Cache:         cacheEngine,
		Hooks:         hooks,
		GlobalWorkers: cfg.Dispatcher.GlobalWorkers,
		Logger:        log,
	})
	find := finder.New(finder.Options{Registry: reg, Logger: log})

	handler := rpc.New(rpc.Options{Registry: reg, Dispatcher: disp, Finder: find, Logger: log})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.RPC.Transport {
	case "http":
		runHTTP(ctx, cfg.RPC.HTTPAddr, handler, log)
	default:
		runStdio(ctx, handler, log)
	}
}

func runStdio(ctx context.Context, handler *rpc.Handler, log *obslog.Logger) {
	server := rpc.NewStdioServer(handler, log)
	log.Info("toolrtd: serving JSON-RPC over stdio")
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("toolrtd: stdio server exited with error", "error", err)
		os.Exit(1)
	}
}

func runHTTP(ctx context.Context, addr string, handler *rpc.Handler, log *obslog.Logger) {
	router := rpc.NewHTTPRouter(handler, log)
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("toolrtd: serving JSON-RPC over HTTP", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("toolrtd: http server exited with error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
