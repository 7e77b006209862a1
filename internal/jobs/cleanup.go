package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/resibo/internal/clock"
)

// Pruner clears delivered message bodies. *postgres.OutboxStore implements it.
type Pruner interface {
	PruneSentBodies(ctx context.Context, sentBefore time.Time) (int64, error)
}

// OutboxCleanup drops the bodies of emails sent longer ago than the
// retention period. Delivery logs are never touched.
type OutboxCleanup struct {
	pruner    Pruner
	clock     clock.Clock
	retention time.Duration
	logger    *slog.Logger
}

func NewOutboxCleanup(p Pruner, clk clock.Clock, retention time.Duration, logger *slog.Logger) *OutboxCleanup {
	return &OutboxCleanup{pruner: p, clock: clk, retention: retention, logger: logger}
}

// Run is a scheduler task.
func (c *OutboxCleanup) Run(ctx context.Context) error {
	cutoff := c.clock.Now().Add(-c.retention)
	n, err := c.pruner.PruneSentBodies(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox cleanup: %w", err)
	}
	if n > 0 {
		c.logger.InfoContext(ctx, "pruned sent email bodies", "count", n, "sent_before", cutoff.Format(time.RFC3339))
	}
	return nil
}
