// Package server wires the vault, sharing, link and breach components to a
// storage backend and runs the gRPC and HTTP servers until shutdown.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/breach"
	"github.com/dmitrijs2005/keepershare/internal/cryptox"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	"github.com/dmitrijs2005/keepershare/internal/metrics"
	"github.com/dmitrijs2005/keepershare/internal/server/config"
	"github.com/dmitrijs2005/keepershare/internal/server/httpapi"
	"github.com/dmitrijs2005/keepershare/internal/sharing"
	"github.com/dmitrijs2005/keepershare/internal/vault"

	gs "github.com/dmitrijs2005/keepershare/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   kv.Store
	metrics *metrics.Metrics
	audit   *audit.Log
	vault   *vault.Store
	shares  *sharing.Manager
	links   *links.Protocol
	breach  *breach.Client
}

// openStore is a seam for tests.
var openStore = func(ctx context.Context, c *config.Config) (kv.Store, error) {
	switch c.Storage {
	case config.StorageMemory:
		return kv.NewMemoryStore(), nil
	case config.StoragePostgres:
		return kv.OpenPostgres(ctx, c.DatabaseDSN)
	case config.StorageS3:
		return kv.NewS3Store(ctx, kv.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
			Prefix:       c.S3Prefix,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Storage)
}

func NewApp(ctx context.Context, c *config.Config, out io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.New(c.LogLevel, c.LogFormat, out)

	store, err := openStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	key := cryptox.DeriveMasterKey([]byte(c.MasterPassword), []byte(c.MasterSalt))
	enc := cryptox.AESGCM{}

	auditLog := audit.NewLog(store, logger).WithObserver(m)
	vs := vault.NewStore(store, enc, key, auditLog, logger)

	app := &App{
		config:  c,
		logger:  logger,
		store:   store,
		metrics: m,
		audit:   auditLog,
		vault:   vs,
		shares:  sharing.NewManager(store, vs, auditLog, logger),
		links: links.NewProtocol(store, enc, key, auditLog, logger, links.Limits{
			MaxTTL:   c.LinkMaxTTL,
			MaxViews: c.LinkMaxViews,
		}).WithObserver(m),
		breach: breach.NewClient(breach.Config{
			BaseURL:     c.BreachBaseURL,
			Timeout:     c.BreachTimeout,
			MinInterval: c.BreachMinInterval,
			CacheTTL:    c.BreachCacheTTL,
		}, logger).WithObserver(m),
	}
	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, gs.Services{
		Vault:  app.vault,
		Shares: app.shares,
		Links:  app.links,
		Breach: app.breach,
		Audit:  app.audit,
	}, gs.LinkSettings{
		DefaultTTL:    app.config.LinkDefaultTTL,
		PublicBaseURL: app.config.PublicBaseURL,
	}, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.links, app.metrics, httpapi.Options{
		RateLimit:      app.config.HTTPRateLimit,
		RateBurst:      app.config.HTTPRateBurst,
		TrustedProxies: app.config.HTTPTrustedProxies,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// sweepLinks reclaims storage held by dead links. Expiry is enforced on read,
// so a failed sweep is only logged.
func (app *App) sweepLinks(ctx context.Context) {
	interval := app.config.LinkSweepInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.links.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				app.logger.Warn(ctx, "link sweep failed", "error", err)
			}
		}
	}
}

func (app *App) close(ctx context.Context) {
	if c, ok := app.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			app.logger.Error(ctx, "storage close error", "error", err)
		}
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweepLinks(ctx)
	}()

	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}
