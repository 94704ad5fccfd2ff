package suppression

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campaign-signal-alerts/internal/rules"
)

// Store persists per-key signal timestamps. Implementations prune entries
// older than the retention window on write.
type Store interface {
	History(ctx context.Context, key string) ([]time.Time, error)
	Append(ctx context.Context, key string, ts time.Time, retention time.Duration) error
}

// Key derives the suppression key of a signal for an owner.
func Key(owner, subjectID string, ruleType rules.Type) string {
	return fmt.Sprintf("%s:%s:%s", owner, subjectID, ruleType)
}

// Controller drops signals that have fired identically for N consecutive
// hourly cycles. Filtering has a side effect (kept signals are recorded),
// so callers run it exactly once per evaluation cycle per owner; processing
// the same cycle twice double-records and suppresses too early.
type Controller struct {
	store     Store
	cycles    int
	retention time.Duration
	logger    zerolog.Logger

	mu sync.Mutex
}

// NewController builds a frequency controller.
func NewController(store Store, cycles int, retention time.Duration, logger zerolog.Logger) *Controller {
	if cycles <= 0 {
		cycles = 3
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Controller{
		store:     store,
		cycles:    cycles,
		retention: retention,
		logger:    logger.With().Str("component", "frequency_controller").Logger(),
	}
}

// Filter returns the signals novel enough to emit for one owner, recording
// each of them. The read-modify-write is held under one lock so concurrent
// cycles cannot lose updates.
func (c *Controller) Filter(ctx context.Context, owner string, signals []rules.Signal, now time.Time) []rules.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]rules.Signal, 0, len(signals))
	suppressedCount := 0

	for _, sig := range signals {
		key := Key(owner, sig.SubjectID, sig.Type)

		history, err := c.store.History(ctx, key)
		if err != nil {
			// A broken history store must not mute alerts.
			c.logger.Warn().Err(err).Str("key", key).Msg("history load failed; emitting signal")
			history = nil
		}

		if c.suppressed(history, now) {
			suppressedCount++
			continue
		}

		if err := c.store.Append(ctx, key, now, c.retention); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("history append failed")
		}
		kept = append(kept, sig)
	}

	if suppressedCount > 0 {
		c.logger.Info().
			Str("owner", owner).
			Int("suppressed", suppressedCount).
			Int("kept", len(kept)).
			Msg("suppressed repeat signals")
	}
	return kept
}

// suppressed reports whether this firing is the Nth of N consecutive
// hourly cycles: the current firing covers the present bucket, and the
// history must cover each of the previous N-1 buckets counting back from
// now.
func (c *Controller) suppressed(history []time.Time, now time.Time) bool {
	if len(history) < c.cycles-1 {
		return false
	}

	for i := 1; i < c.cycles; i++ {
		bucketStart := now.Add(-time.Duration(i) * time.Hour)
		bucketEnd := now.Add(-time.Duration(i-1) * time.Hour)

		hit := false
		for _, ts := range history {
			if !ts.Before(bucketStart) && ts.Before(bucketEnd) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
