// Package jwtsecret generates the signing secret shared by budget nodes and
// their clients, optionally with a bootstrap token signed by it.
package jwtsecret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openkfw/trubudget/internal/platform/config"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Config holds configuration for secret generation.
type Config struct {
	Bytes    int
	TokenFor string
	TTL      time.Duration
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32, TTL: 24 * time.Hour}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes")
	fs.StringVar(&cfg.TokenFor, "token-for", "", "also print a token for this user, for example root")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "lifetime of the printed token")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the secret and writes env assignments to out.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < 16 {
		return errors.New("bytes must be at least 16")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if _, err := fmt.Fprintf(out, "%sJWT_SECRET=%s\n", config.EnvPrefix, secret); err != nil {
		return err
	}

	user := strings.TrimSpace(cfg.TokenFor)
	if user == "" {
		return nil
	}
	if cfg.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	verifier, err := auth.NewVerifier(secret, nil)
	if err != nil {
		return err
	}
	token, err := verifier.Issue(identity.ServiceUser{ID: user}, cfg.TTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintf(out, "%sTOKEN=%s\n", config.EnvPrefix, token)
	return err
}
