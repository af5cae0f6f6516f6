// Command vcompleted is the vcomplete daemon.
// It serves Verilog completion requests over HTTP, runs them through the
// configured model backend and returns the cleaned completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	vcomplete "github.com/vcomplete/vcomplete"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request and response to stderr")
	configPath := flag.String("config", "", "path to config.toml (default: $VCOMPLETE_CONFIG_DIR/config.toml)")
	addr := flag.String("addr", "", "listen address (overrides config and VCOMPLETE_ADDR)")
	flag.Parse()

	if *showVersion {
		fmt.Println("vcompleted", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	load := func() (*vcomplete.Config, error) {
		if *configPath != "" {
			return vcomplete.LoadConfigFile(*configPath)
		}
		return vcomplete.LoadConfig()
	}

	cfg, err := load()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = vcomplete.DefaultConfig()
	}
	for _, w := range vcomplete.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = vcomplete.ResolveAddr(cfg)
	}

	srv, err := NewServer(listenAddr, cfg, load)
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	if err := run(srv); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM, then shuts down gracefully.
func run(srv *Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("ready", "addr", srv.Addr())
		return srv.Serve()
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
