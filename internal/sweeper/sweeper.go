// Package sweeper runs the two periodic background scans the scheduler
// relies on rather than foreground checks: expiring pending tasks no bot
// claimed in time, and declaring BOT_DIED for running tasks whose bot
// stopped reporting (spec.md §4.7). Both scans are idempotent and safe to
// run concurrently from multiple scheduler instances.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/taskrunresult"
	"github.com/luci/swarmsched/ent/tasktorun"
	"github.com/luci/swarmsched/internal/lifecycle"
)

// Config controls sweep cadence and thresholds.
type Config struct {
	Interval        time.Duration
	BotDeathTimeout time.Duration
}

// Sweeper owns the background ticker goroutine.
type Sweeper struct {
	client   *ent.Client
	cfg      Config
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Sweeper bound to client. Call Start to begin sweeping.
func New(client *ent.Client, cfg Config) *Sweeper {
	return &Sweeper{
		client: client,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine until Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the sweep loop to exit and waits for it to finish. Safe to
// call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce runs both scans once; exported so callers (tests, a one-shot
// CLI command) can drive it outside the ticker loop.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	if err := s.expirePending(ctx); err != nil {
		return fmt.Errorf("expiring pending tasks: %w", err)
	}
	if err := s.declareBotDied(ctx); err != nil {
		return fmt.Errorf("declaring bot-died tasks: %w", err)
	}
	return nil
}

// expirePending retires TaskToRun rows past their expiration that no bot
// ever reaped, and flips their TaskResultSummary to EXPIRED.
func (s *Sweeper) expirePending(ctx context.Context) error {
	now := time.Now()
	stale, err := s.client.TaskToRun.Query().
		Where(
			tasktorun.ReapedTsIsNil(),
			tasktorun.ExpirationTsLT(now),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("querying expired task_to_run rows: %w", err)
	}

	for _, ttr := range stale {
		if err := s.expireOne(ctx, ttr, now); err != nil {
			slog.Error("failed to expire task", "task_to_run_id", ttr.ID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) expireOne(ctx context.Context, ttr *ent.TaskToRun, now time.Time) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting expire transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	affected, err := tx.TaskToRun.Update().
		Where(tasktorun.IDEQ(ttr.ID), tasktorun.ReapedTsIsNil()).
		SetReapedTs(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("retiring task_to_run: %w", err)
	}
	if affected == 0 {
		// Claimed by a bot between the scan and this transaction; not expired.
		return tx.Commit()
	}

	summary, err := tx.TaskResultSummary.Get(ctx, ttr.RequestID)
	if err != nil {
		if ent.IsNotFound(err) {
			return tx.Commit()
		}
		return fmt.Errorf("loading task_result_summary: %w", err)
	}
	if lifecycle.Validate(string(summary.State), lifecycle.Expired) != nil {
		// Already left PENDING through some other path; leave it alone.
		return tx.Commit()
	}

	if _, err := summary.Update().
		SetState(lifecycle.Expired).
		SetAbandonedTs(now).
		SetModifiedTs(now).
		Save(ctx); err != nil {
		return fmt.Errorf("marking task expired: %w", err)
	}

	return tx.Commit()
}

// declareBotDied finds RUNNING task_run_results whose last_update_ts is
// older than BotDeathTimeout and declares BOT_DIED.
func (s *Sweeper) declareBotDied(ctx context.Context) error {
	threshold := time.Now().Add(-s.cfg.BotDeathTimeout)
	stale, err := s.client.TaskRunResult.Query().
		Where(
			taskrunresult.StateEQ(taskrunresult.State(lifecycle.Running)),
			taskrunresult.LastUpdateTsLT(threshold),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("querying stale running task_run_results: %w", err)
	}

	for _, rr := range stale {
		if err := s.declareOneBotDied(ctx, rr); err != nil {
			slog.Error("failed to declare bot died", "run_result_id", rr.ID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) declareOneBotDied(ctx context.Context, rr *ent.TaskRunResult) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting bot-died transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	locked, err := tx.TaskRunResult.Query().
		Where(taskrunresult.IDEQ(rr.ID), taskrunresult.StateEQ(taskrunresult.State(lifecycle.Running))).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return tx.Commit() // a newer update beat the sweeper to it
		}
		return fmt.Errorf("reloading task_run_result: %w", err)
	}

	summary, err := tx.TaskResultSummary.Get(ctx, locked.TaskID)
	if err != nil {
		return fmt.Errorf("loading task_result_summary: %w", err)
	}
	if lifecycle.Validate(string(summary.State), lifecycle.BotDied) != nil {
		return tx.Commit()
	}

	now := time.Now()
	if _, err := locked.Update().
		SetState(lifecycle.BotDied).
		SetFailure(true).
		SetCompletedTs(now).
		Save(ctx); err != nil {
		return fmt.Errorf("marking run result bot_died: %w", err)
	}
	if _, err := summary.Update().
		SetState(lifecycle.BotDied).
		SetFailure(true).
		SetCompletedTs(now).
		SetModifiedTs(now).
		Save(ctx); err != nil {
		return fmt.Errorf("marking summary bot_died: %w", err)
	}

	return tx.Commit()
}
