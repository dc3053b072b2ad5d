// Command vmulinkd runs the VMU network bridge daemon: it maintains the TCP
// link to the companion peer and serves the HTTP gateway on top of it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vmulink/vmulink/internal/config"
	"github.com/vmulink/vmulink/internal/gateway"
	"github.com/vmulink/vmulink/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (defaults apply when empty)")
		peerAddr   = flag.String("addr", "", "override link peer address (host:port)")
	)
	flag.Parse()

	if err := run(*configPath, *peerAddr); err != nil {
		fmt.Fprintln(os.Stderr, "vmulinkd:", err)
		os.Exit(1)
	}
}

func run(configPath, peerAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if peerAddr != "" {
		cfg.Link.Addr = peerAddr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting vmulinkd",
		zap.String("peer", cfg.Link.Addr),
		zap.String("listen", cfg.Gateway.ListenAddr),
		zap.String("store", cfg.Store.Path))

	return gateway.New(cfg, db, log).Start(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, errors.New("log level must be one of debug|info|warn|error")
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
