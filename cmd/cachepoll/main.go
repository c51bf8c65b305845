// Command cachepoll reads one cache key every poll interval and logs the
// value, staying up through store outages. It takes no flags: the config
// file path comes from RESCACHE_CONFIG (default config.yaml).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/config"
	rzap "github.com/unkn0wn-root/rescache/log/zap"
	"github.com/unkn0wn-root/rescache/store"
	"github.com/unkn0wn-root/rescache/store/memory"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cachepoll:", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("RESCACHE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []rescache.SharedOption{
		rescache.WithLogger(rzap.New(logger.Named("rescache"))),
		rescache.WithConnectTimeout(cfg.ConnectTimeout()),
		rescache.WithRetryInterval(cfg.RetryInterval()),
	}
	if strings.HasPrefix(cfg.ConnectionString, memory.Scheme) {
		d, err := memory.New(memory.Config{NumCounters: cfg.Memory.NumCounters, MaxCost: cfg.Memory.MaxCost})
		if err != nil {
			return err
		}
		defer d.Close()
		opts = append(opts, rescache.WithDialer(d))
	}

	m, err := rescache.Shared(ctx, cfg.ConnectionString, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close(context.Background()) }()

	values, err := rescache.NewAccessor[string](m, rescache.AccessorOptions[string]{Codec: codec.String{}})
	if err != nil {
		return err
	}

	logger.Info("polling",
		zap.String("key", cfg.Key),
		zap.Duration("interval", cfg.PollInterval()),
		zap.String("state", m.State().String()))
	poll(ctx, logger, values, cfg.Key, cfg.PollInterval())
	logger.Info("stopped", zap.Any("stats", m.Stats()))
	return nil
}

func poll(ctx context.Context, logger *zap.Logger, values *rescache.Accessor[string], key string, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			v, err := values.Get(ctx, key, store.FlagPreferReplica)
			if err != nil {
				logger.Warn("read failed", zap.String("key", key), zap.Error(err))
				continue
			}
			logger.Info("read", zap.String("key", key), zap.String("value", v))
		}
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         strings.ToLower(cfg.Encoding),
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build(zap.AddStacktrace(zapcore.DPanicLevel))
}
