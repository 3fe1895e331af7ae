// Package server wires the budget runtime: ledger, service, gRPC and HTTP
// listeners and their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/openkfw/trubudget/internal/platform/metrics"
	"github.com/openkfw/trubudget/internal/platform/timeouts"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	budgetgrpc "github.com/openkfw/trubudget/internal/services/budget/api/grpc/budget"
	"github.com/openkfw/trubudget/internal/services/budget/api/rest"
	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	ledgerbbolt "github.com/openkfw/trubudget/internal/services/budget/ledger/bbolt"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/memory"
	ledgersqlite "github.com/openkfw/trubudget/internal/services/budget/ledger/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Ledger backends.
const (
	BackendSQLite = "sqlite"
	BackendBBolt  = "bbolt"
	BackendMemory = "memory"
)

// Config is the runtime configuration of a budget node.
type Config struct {
	GRPCAddr       string
	HTTPAddr       string
	LedgerBackend  string
	LedgerPath     string
	JWTSecret      string
	Organization   string
	SeedPath       string
	MetricsEnabled bool
}

// Server hosts the budget gRPC and HTTP APIs over one ledger.
type Server struct {
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpListener net.Listener
	httpServer   *http.Server
	closeLedger  func() error
}

// New opens the ledger, bootstraps the service and binds both listeners.
func New(ctx context.Context, cfg Config) (*Server, error) {
	verifier, err := auth.NewVerifier(cfg.JWTSecret, nil)
	if err != nil {
		return nil, err
	}
	store, closeLedger, err := openLedger(cfg.LedgerBackend, cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	s := &Server{closeLedger: closeLedger}

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.New()
	}
	svc, err := app.New(store, app.Options{Organization: cfg.Organization, Metrics: recorder})
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := svc.Bootstrap(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("bootstrap ledger: %w", err)
	}
	if path := strings.TrimSpace(cfg.SeedPath); path != "" {
		seed, err := app.LoadSeed(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := svc.ApplySeed(ctx, seed); err != nil {
			s.Close()
			return nil, fmt.Errorf("apply seed: %w", err)
		}
	}

	s.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(budgetgrpc.AuthInterceptor(verifier)),
	)
	budgetgrpc.Register(s.grpcServer, budgetgrpc.NewService(svc))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(budgetgrpc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	var metricsHandler http.Handler
	if recorder != nil {
		metricsHandler = recorder.Handler()
	}
	s.httpServer = &http.Server{
		Handler:           rest.NewRouter(svc, verifier, metricsHandler),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s, nil
}

// GRPCAddr returns the bound gRPC address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a budget node until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs both servers until ctx is cancelled or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	defer s.Close()

	log.Printf("budget gRPC listening at %v", s.grpcListener.Addr())
	log.Printf("budget HTTP listening at %v", s.httpListener.Addr())
	serveErr := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("serve gRPC: %w", err)
			return
		}
		serveErr <- nil
	}()
	go func() {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve HTTP: %w", err)
			return
		}
		serveErr <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	if s.health != nil {
		s.health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown HTTP: %v", err)
		}
	}
	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			s.grpcServer.Stop()
		}
	}
}

// Close releases listeners and the ledger.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.closeLedger != nil {
		if err := s.closeLedger(); err != nil {
			log.Printf("close ledger: %v", err)
		}
		s.closeLedger = nil
	}
}

func openLedger(backend, path string) (ledger.Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return memory.New(), nil, nil
	case BackendSQLite, "":
		if err := ensureDir(path); err != nil {
			return nil, nil, err
		}
		store, err := ledgersqlite.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return store, store.Close, nil
	case BackendBBolt:
		if err := ensureDir(path); err != nil {
			return nil, nil, err
		}
		store, err := ledgerbbolt.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open bbolt ledger: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

func ensureDir(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("ledger path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}
	return nil
}
