// Package cleanup runs an optional, disabled-by-default background sweep
// that garbage-collects tombstoned TaskToRun rows once they are older than a
// configured retention window. spec.md §3 retains TaskToRun tombstones "for
// audit" with no retention policy specified as in-scope, so this sweep is
// additive and off unless explicitly enabled (see pkg/config.RetentionConfig
// and DESIGN.md).
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/tasktorun"
)

// Config controls cleanup cadence and the tombstone retention window.
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Cleaner owns the background ticker goroutine that deletes reaped,
// expired-long-ago TaskToRun tombstones. Deleting a TaskToRun never touches
// its owning TaskRequest or TaskResultSummary — the tombstone is audit
// trail, not the record of outcome.
type Cleaner struct {
	client   *ent.Client
	cfg      Config
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Cleaner bound to client. Call Start to begin sweeping.
func New(client *ent.Client, cfg Config) *Cleaner {
	return &Cleaner{
		client: client,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start runs the cleanup loop in a background goroutine until Stop is called.
func (c *Cleaner) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the cleanup loop to exit and waits for it to finish. Safe to
// call multiple times.
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Cleaner) run(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.RunOnce(ctx)
			if err != nil {
				slog.Error("tombstone cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("tombstone cleanup removed rows", "count", n)
			}
		}
	}
}

// RunOnce deletes every reaped TaskToRun row whose reaped_ts is older than
// the retention window. Exported so tests and a one-shot CLI command can
// drive it outside the ticker loop. Idempotent: a row already deleted is
// simply absent from the next scan.
func (c *Cleaner) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-c.cfg.Retention)
	n, err := c.client.TaskToRun.Delete().
		Where(
			tasktorun.ReapedTsNotNil(),
			tasktorun.ReapedTsLT(cutoff),
		).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("deleting stale task_to_run tombstones: %w", err)
	}
	return n, nil
}
