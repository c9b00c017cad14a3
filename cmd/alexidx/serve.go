package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/alexandria-go/alexidx/internal/config"
	"github.com/alexandria-go/alexidx/internal/httpapi"
	"github.com/alexandria-go/alexidx/internal/index"
	"github.com/alexandria-go/alexidx/internal/kvstore"
	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/query"
	"github.com/alexandria-go/alexidx/internal/querycache"
	"github.com/alexandria-go/alexidx/internal/resolver"
	"github.com/alexandria-go/alexidx/internal/shardfile"
	"github.com/alexandria-go/alexidx/internal/tokenizer"
	"github.com/alexandria-go/alexidx/internal/workerpool"
)

// Exit codes per spec §6: 0 clean shutdown, 1 socket-bind failure, 2
// index open failure.
const (
	exitOK           = 0
	exitBindFailure  = 1
	exitIndexFailure = 2
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query server",
	Long: `serve starts alexidx's HTTP/JSON query server (spec §6). It reads
all configuration from the environment (ALEX_WORKER_COUNT, ALEX_INDEX_ROOT,
ALEX_WEIGHTS, ALEX_LISTEN, ...) per spec §6's CLI surface, which accepts no
positional arguments.`,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	logx.Configure()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logx.Error("serve: invalid configuration: %v", err)
		os.Exit(exitIndexFailure)
	}

	mainIdx, err := index.Open(cfg.IndexRoot, "main", cfg.NumShards, shardfile.MainCodec)
	if err != nil {
		logx.Error("serve: opening main index: %v", err)
		os.Exit(exitIndexFailure)
	}
	urlLinkIdx, err := index.Open(cfg.IndexRoot, "url_link", cfg.NumShards, shardfile.URLLinkCodec)
	if err != nil {
		logx.Error("serve: opening url-link index: %v", err)
		os.Exit(exitIndexFailure)
	}
	domainLinkIdx, err := index.Open(cfg.IndexRoot, "domain_link", cfg.NumShards, shardfile.DomainLinkCodec)
	if err != nil {
		logx.Error("serve: opening domain-link index: %v", err)
		os.Exit(exitIndexFailure)
	}
	defer mainIdx.Close()
	defer urlLinkIdx.Close()
	defer domainLinkIdx.Close()

	store, err := kvstore.LoadFile(cfg.SnippetStorePath)
	if err != nil {
		logx.Error("serve: loading snippet store: %v", err)
		os.Exit(exitIndexFailure)
	}
	res, err := resolver.New(store, cfg.SnippetCacheSize)
	if err != nil {
		logx.Error("serve: building resolver cache: %v", err)
		os.Exit(exitIndexFailure)
	}

	engine := &query.Engine{
		Main:         mainIdx,
		URLLink:      urlLinkIdx,
		DomainLink:   domainLinkIdx,
		Resolver:     res,
		Weights:      cfg.Weights,
		DefaultLimit: cfg.ResultLimit,
		Timeout:      cfg.QueryTimeout,
		TokenizerCfg: tokenizer.DefaultConfig(),
		DocCount:     cfg.DocCount,
	}

	pool := workerpool.New(cfg.WorkerCount)

	var cache *querycache.Cache[*query.Response]
	if cfg.ResponseCacheSize > 0 {
		cache = querycache.New[*query.Response](cfg.ResponseCacheSize, cfg.ResponseCacheTTL)
		defer cache.Close()
	}

	srv := httpapi.New(engine, pool, cache, cfg)
	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsListen,
		Handler: promhttp.Handler(),
	}

	bindErrCh := make(chan error, 1)
	go func() {
		logx.Info("serve: query server listening on %s", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			bindErrCh <- err
		}
	}()
	go func() {
		logx.Info("serve: metrics server listening on %s", cfg.MetricsListen)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Warn("serve: metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-bindErrCh:
		logx.Error("serve: query server failed to bind %s: %v", cfg.Listen, err)
		os.Exit(exitBindFailure)
	case sig := <-sigCh:
		logx.Info("serve: received signal %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logx.Error("serve: graceful shutdown error: %v", err)
	}
	_ = metricsServer.Shutdown(ctx)

	logx.Info("serve: shutdown complete")
	os.Exit(exitOK)
	return nil
}
