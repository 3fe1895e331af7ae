// Package budget parses budget node flags and launches the node.
package budget

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/openkfw/trubudget/internal/platform/cmd"
	"github.com/openkfw/trubudget/internal/platform/otel"
	"github.com/openkfw/trubudget/internal/services/budget/server"
)

// Config holds budget command configuration.
type Config struct {
	GRPCPort       int          `env:"GRPC_PORT" envDefault:"8090"`
	HTTPAddr       string       `env:"HTTP_ADDR" envDefault:":8080"`
	LedgerBackend  string       `env:"LEDGER_BACKEND" envDefault:"sqlite"`
	LedgerPath     string       `env:"LEDGER_PATH" envDefault:"data/ledger.db"`
	JWTSecret      string       `env:"JWT_SECRET"`
	Organization   string       `env:"ORGANIZATION"`
	SeedPath       string       `env:"SEED_PATH"`
	MetricsEnabled bool         `env:"METRICS_ENABLED" envDefault:"true"`
	Tracing        otel.Options
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.GRPCPort, "port", cfg.GRPCPort, "The budget gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The budget HTTP API address")
	fs.StringVar(&cfg.LedgerBackend, "ledger", cfg.LedgerBackend, "Ledger backend: sqlite, bbolt or memory")
	fs.StringVar(&cfg.LedgerPath, "ledger-path", cfg.LedgerPath, "Ledger file path")
	fs.StringVar(&cfg.Organization, "organization", cfg.Organization, "Organization this node belongs to")
	fs.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath, "Optional YAML file with users, groups and global permissions")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "Expose Prometheus metrics on /metrics")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.Organization) == "" {
		return Config{}, fmt.Errorf("organization is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("jwt secret is required")
	}
	return cfg, nil
}

// ServerConfig maps command configuration onto the node runtime.
func (c Config) ServerConfig() server.Config {
	return server.Config{
		GRPCAddr:       fmt.Sprintf(":%d", c.GRPCPort),
		HTTPAddr:       c.HTTPAddr,
		LedgerBackend:  c.LedgerBackend,
		LedgerPath:     c.LedgerPath,
		JWTSecret:      c.JWTSecret,
		Organization:   c.Organization,
		SeedPath:       c.SeedPath,
		MetricsEnabled: c.MetricsEnabled,
	}
}

// Run starts the budget node.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBudget, entrypoint.RunOptions{Tracing: cfg.Tracing}, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ServerConfig())
	})
}
