package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lightforgemedia/go-nanorpc/internal/config"
	"github.com/lightforgemedia/go-nanorpc/internal/tracer"
	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"github.com/lightforgemedia/go-nanorpc/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag      string
	envFileFlag     string
	rpcURLFlag      string
	wsURLFlag       string
	logLevelFlag    string
	metricsAddrFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// ensureConfig loads the configuration once, applies flag overrides and builds the logger and
// metrics registry.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		bootLogger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
		cfg, err := config.Load(strings.TrimSpace(c.configFlag), strings.TrimSpace(c.envFileFlag), bootLogger)
		if err != nil {
			c.configErr = err
			return
		}
		if c.rpcURLFlag != "" {
			cfg.RPC.URL = c.rpcURLFlag
		}
		if c.wsURLFlag != "" {
			cfg.WS.URL = c.wsURLFlag
		}
		if c.logLevelFlag != "" {
			cfg.Log.Level = strings.ToLower(c.logLevelFlag)
		}
		if c.metricsAddrFlag != "" {
			cfg.Metrics.Addr = c.metricsAddrFlag
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}

		c.config = cfg
		c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
		c.registry = prometheus.NewRegistry()
		c.metrics = metrics.New(c.registry)
	})
	return c.config, c.configErr
}

// rpcClient builds the HTTP client with tracing. The returned function flushes spans.
func (c *commandContext) rpcClient(ctx context.Context, cmd *cobra.Command) (*rpc.Client, func(), error) {
	cfg, err := c.ensureConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	ep, err := cfg.RPCEndpoint()
	if err != nil {
		return nil, nil, err
	}
	tr, shutdown, err := tracer.Setup(ctx, tracer.Config{
		Exporter:    cfg.Tracing.Exporter,
		ServiceName: cfg.Tracing.ServiceName,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}

	opts := append(cfg.RPCOptions(), rpc.WithLogger(c.logger), rpc.WithMetrics(c.metrics), rpc.WithTracer(tr))
	flush := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			c.logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	return rpc.New(ep, opts...), flush, nil
}

// serveMetrics serves /metrics until ctx is done. It is a no-op without an address.
func (c *commandContext) serveMetrics(ctx context.Context) {
	if c.config == nil || c.config.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry}))
	srv := &http.Server{Addr: c.config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		c.logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
