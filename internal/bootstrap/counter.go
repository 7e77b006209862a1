// Package bootstrap handles one-time initialization tasks for the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/dukerupert/resibo/internal/postgres"
)

// CounterConfig seeds the invoice counter.
type CounterConfig struct {
	Prefix     string
	LastNumber int64
}

var prefixPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,15}$`)

// Validate checks that the counter configuration is valid.
func (c *CounterConfig) Validate() error {
	if c.Prefix == "" {
		return errors.New("invoice prefix is required")
	}
	if !prefixPattern.MatchString(c.Prefix) {
		return fmt.Errorf("invoice prefix %q must be 1-16 upper-case letters, digits or dashes", c.Prefix)
	}
	if c.LastNumber < 0 {
		return errors.New("last number must not be negative")
	}
	return nil
}

// InitCounter creates the invoice counter if none exists. Running it again
// is a no-op and never resets numbering.
func InitCounter(ctx context.Context, db postgres.DBTX, cfg CounterConfig, logger *slog.Logger) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("invalid counter config: %w", err)
	}

	created, err := postgres.InitCounter(ctx, db, cfg.Prefix, cfg.LastNumber)
	if err != nil {
		return false, err
	}

	if created {
		logger.Info("invoice counter initialized", "prefix", cfg.Prefix, "last_number", cfg.LastNumber)
	} else {
		logger.Info("invoice counter already exists, leaving it unchanged")
	}
	return created, nil
}
