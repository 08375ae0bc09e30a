// Command techu serves the search proxy over HTTP.
//
// Usage:
//
//	techu --config techu.jsonc [--listen :8080] [--log-level debug]
//
// Flags override the matching configuration keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/techu/techu"
	"github.com/techu/techu/contrib/techuhttp"
	"github.com/techu/techu/internal/metrics"
	"github.com/techu/techu/pkg/engine"
	"github.com/techu/techu/pkg/logger"
	"github.com/techu/techu/pkg/metadata"
	"github.com/techu/techu/pkg/store"
)

const (
	shutdownTimeout = 5 * time.Second
	janitorInterval = time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("techu", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Path to the JSONC configuration file")
	listen := flags.String("listen", "", "Address to serve on, overrides listen")
	logLevel := flags.String("log-level", "", "debug, info, warn or error, overrides log_level")
	logPath := flags.String("log-path", "", "Append logs to this file instead of stdout, overrides log_path")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := techu.DefaultConfig()
	if *configPath != "" {
		loaded, err := techu.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}

	l, err := logger.New().FromPath(cfg.LogPath).Level(cfg.LogLevel).Make()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer l.Close()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := []engine.Option{engine.WithLogger(l)}
	for index, dsn := range cfg.SphinxDSNs {
		opts = append(opts, engine.WithIndexDSN(index, dsn))
	}
	eng := engine.NewSQL(cfg.SphinxDSN, opts...)
	defer eng.Close()

	resolver, closeResolver, err := openResolver(cfg)
	if err != nil {
		return err
	}
	defer closeResolver()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	proxy, err := techu.New(techu.Params{
		Config:   cfg,
		Engine:   eng,
		Cache:    s,
		Queue:    s,
		Resolver: resolver,
		Logger:   l,
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	router := techuhttp.NewServer(proxy, l).Router()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	l.Info("techu listening", "addr", cfg.Listen, "indexes", len(cfg.Indexes))

	select {
	case <-ctx.Done():
		l.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

type closableStore interface {
	store.Store
	Close() error
}

// openStore dials Redis, or falls back to an in-process store when no
// redis_url is configured. The fallback is not shared between replicas.
func openStore(ctx context.Context, cfg techu.Config) (closableStore, error) {
	if cfg.RedisURL == "" {
		m := store.NewMemory()
		go sweep(ctx, m)
		return nopCloser{m}, nil
	}
	r, err := store.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return r, nil
}

// sweep drops expired keys of m until ctx ends.
func sweep(ctx context.Context, m *store.Memory) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HardDeleteExpired()
		}
	}
}

type nopCloser struct {
	*store.Memory
}

func (nopCloser) Close() error { return nil }

func openResolver(cfg techu.Config) (metadata.Resolver, func(), error) {
	if cfg.MetadataDSN == "" {
		return metadata.NewStatic(cfg.Indexes), func() {}, nil
	}
	g, err := metadata.OpenGorm(cfg.MetadataDSN)
	if err != nil {
		return nil, nil, err
	}
	return g, func() { _ = g.Close() }, nil
}
