// Package budgetctl calls budget node operations from the command line.
package budgetctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/openkfw/trubudget/internal/platform/config"
	"github.com/openkfw/trubudget/internal/platform/timeouts"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	budgetgrpc "github.com/openkfw/trubudget/internal/services/budget/api/grpc/budget"
	"github.com/openkfw/trubudget/internal/services/budget/api/operations"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Config holds budgetctl configuration.
type Config struct {
	Addr      string        `env:"ADDR" envDefault:"localhost:8090"`
	Token     string        `env:"TOKEN"`
	JWTSecret string        `env:"JWT_SECRET"`
	User      string
	Groups    string
	Operation string
	Data      string
	List      bool
	Timeout   time.Duration `env:"CTL_TIMEOUT"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: config.EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.GRPCRequest
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "budget node gRPC address")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "bearer token (default: TRUBUDGET_TOKEN)")
	fs.StringVar(&cfg.User, "user", "", "mint a token for this user with the node secret instead of -token")
	fs.StringVar(&cfg.Groups, "groups", "", "comma-separated groups claimed by the minted token")
	fs.StringVar(&cfg.Operation, "op", "", "operation name, for example project.list")
	fs.StringVar(&cfg.Data, "data", "", "operation request as a JSON object")
	fs.BoolVar(&cfg.List, "list", false, "print the available operations and exit")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes one operation and writes its data as indented JSON to out.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.List {
		for _, op := range operations.All() {
			fmt.Fprintf(out, "%-4s %s\n", op.Method, op.Name)
		}
		return nil
	}
	if strings.TrimSpace(cfg.Operation) == "" {
		return errors.New("-op is required")
	}
	if _, ok := operations.Lookup(cfg.Operation); !ok {
		return fmt.Errorf("unknown operation %q", cfg.Operation)
	}
	data, err := parseData(cfg.Data)
	if err != nil {
		return err
	}
	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCDial)
	defer cancel()
	conn, err := budgetgrpc.Dial(dialCtx, cfg.Addr, func(format string, args ...any) {
		fmt.Fprintf(errOut, format+"\n", args...)
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	callCtx, cancelCall := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelCall()
	raw, err := budgetgrpc.NewClient(conn, token).Call(callCtx, cfg.Operation, data)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Operation, err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}

func parseData(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("-data must be a JSON object: %w", err)
	}
	return data, nil
}

func resolveToken(cfg Config) (string, error) {
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		if cfg.Token == "" {
			return "", errors.New("either -token or -user with TRUBUDGET_JWT_SECRET is required")
		}
		return cfg.Token, nil
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, nil)
	if err != nil {
		return "", err
	}
	var groups []string
	for _, group := range strings.Split(cfg.Groups, ",") {
		if group = strings.TrimSpace(group); group != "" {
			groups = append(groups, group)
		}
	}
	return verifier.Issue(identity.ServiceUser{ID: user, Groups: groups}, time.Hour)
}
