// Package app wires the inventory runtime: storage, the write-path service,
// saga handlers, projections, the outbox dispatcher, and the health endpoint.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/command"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/projection"
	"github.com/louisbranch/stockroom/internal/inventory/saga"
	"github.com/louisbranch/stockroom/internal/inventory/service"
	inventorysqlite "github.com/louisbranch/stockroom/internal/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls inventory startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	ClaimBatch    int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultInventoryPort = 8091
	defaultInventoryDB   = "data/inventory.db"
)

// Runtime bundles the wired inventory dependencies. Embedders reach the
// write path through Service; Run drives the dispatcher loop and the health
// endpoint until the context is canceled.
type Runtime struct {
	Service    *service.Service
	Store      *inventorysqlite.Store
	Dispatcher *Dispatcher
	cfg        RuntimeConfig
}

// NewRuntime opens storage and wires the inventory dependencies.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Port <= 0 {
		cfg.Port = defaultInventoryPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultInventoryDB
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create inventory storage dir: %w", err)
		}
	}

	store, err := inventorysqlite.Open(cfg.DBPath, event.DefaultRegistry())
	if err != nil {
		return nil, fmt.Errorf("open inventory sqlite store: %w", err)
	}

	commandRegistry, err := command.DefaultRegistry()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build command registry: %w", err)
	}
	svc, err := service.NewService(commandRegistry, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build inventory service: %w", err)
	}

	prepareHandler, err := saga.NewPrepareHandler(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build prepare handler: %w", err)
	}
	carrierHandler, err := saga.NewCarrierHandler(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build carrier handler: %w", err)
	}
	projections, err := projection.NewApplier(store, store, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build projection applier: %w", err)
	}
	dispatcher, err := NewDispatcher(
		store,
		store,
		store,
		[]saga.Handler{prepareHandler, carrierHandler},
		projections,
		Config{
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			ClaimBatch:    cfg.ClaimBatch,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		},
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	return &Runtime{
		Service:    svc,
		Store:      store,
		Dispatcher: dispatcher,
		cfg:        cfg,
	}, nil
}

// Close releases runtime resources.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Run serves the health endpoint and drives the dispatcher loop until the
// context is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on inventory port %d: %w", r.cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("inventory.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("inventory server listening at %v", listener.Addr())
	return r.Dispatcher.Run(ctx)
}

// Run opens the runtime, serves it, and closes it when the context ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	runtime, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			log.Printf("close inventory runtime: %v", closeErr)
		}
	}()
	return runtime.Run(ctx)
}
