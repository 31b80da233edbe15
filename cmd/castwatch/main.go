// Package main provides the entry point for the castwatch server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/castwatch/castwatch/internal/server"
	"github.com/castwatch/castwatch/pkg/platform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	watch       bool
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "address", "", "Listen address, overriding the configuration")
	flag.BoolVar(&opts.watch, "watch", false, "Hot-reload scopes and tokens on config changes")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func loadConfig(opts serverOptions) (*platform.Config, error) {
	if opts.configPath == "" {
		cfg := &platform.Config{}
		return cfg, nil
	}
	return platform.LoadConfig(opts.configPath)
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("castwatch version %s\n", server.Version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}

	p, err := platform.New(platform.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx := setupSignalHandler()

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	if opts.watch && opts.configPath != "" {
		if err := p.WatchConfig(opts.configPath); err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
	}

	srv := server.New(p)
	serveErr := srv.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		p.Logger().Warn("engine shutdown reported errors", "error", err)
	}

	return serveErr
}
