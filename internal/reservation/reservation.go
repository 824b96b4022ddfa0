// Package reservation implements the atomic claim step of the bot poll
// protocol: given a set of candidate TaskToRun rows from internal/matcher,
// lock one, flip its TaskResultSummary to RUNNING, and create the
// TaskRunResult recording the bot's attempt (spec.md §4.4).
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/tasktorun"
	"github.com/luci/swarmsched/internal/fingerprint"
	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/matcher"
	"github.com/luci/swarmsched/internal/swarmerr"
)

// Reservation is the outcome of a successful Reap: the task and run result
// the bot should now execute.
type Reservation struct {
	Task      *ent.TaskResultSummary
	RunResult *ent.TaskRunResult
	Request   *ent.TaskRequest
}

// Reap finds a pending task matching botDimensions and atomically claims it
// for botID. It returns swarmerr.ErrUnavailable if no candidate can be
// claimed, either because none matched or because every matching candidate
// lost its claim race to another bot.
func Reap(ctx context.Context, client *ent.Client, botID string, botDimensions map[string][]string, fanout, maxPowerset int) (*Reservation, error) {
	candidates, err := matcher.Candidates(ctx, client, botDimensions, fanout, maxPowerset)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		res, err := tryClaim(ctx, client, candidate.ID, botID, botDimensions)
		if err != nil {
			if errors.Is(err, swarmerr.ErrContention) {
				continue
			}
			return nil, err
		}
		return res, nil
	}
	return nil, swarmerr.ErrUnavailable
}

// tryClaim attempts to claim a single TaskToRun inside its own transaction,
// using FOR UPDATE SKIP LOCKED so concurrent bots racing for the same slip
// never block each other: the loser moves on to its next candidate instead
// of waiting.
func tryClaim(ctx context.Context, client *ent.Client, ttrID, botID string, botDimensions map[string][]string) (*Reservation, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ttr, err := tx.TaskToRun.Query().
		Where(tasktorun.IDEQ(ttrID), tasktorun.ReapedTsIsNil()).
		ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, swarmerr.ErrContention
		}
		return nil, fmt.Errorf("locking task_to_run: %w", err)
	}

	summary, err := tx.TaskResultSummary.Get(ctx, fingerprint.TaskID(ttr.RequestID))
	if err != nil {
		return nil, fmt.Errorf("loading task_result_summary: %w", err)
	}
	if err := lifecycle.Validate(string(summary.State), lifecycle.Running); err != nil {
		// The request was cancelled between the matcher's read and our
		// lock; retire the slip and let the caller try the next candidate.
		if _, err := ttr.Update().SetReapedTs(time.Now()).Save(ctx); err != nil {
			return nil, fmt.Errorf("retiring task_to_run: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing retired task_to_run: %w", err)
		}
		return nil, swarmerr.ErrContention
	}

	request, err := tx.TaskRequest.Get(ctx, ttr.RequestID)
	if err != nil {
		return nil, fmt.Errorf("loading task_request: %w", err)
	}

	now := time.Now()
	if _, err := ttr.Update().SetReapedTs(now).Save(ctx); err != nil {
		return nil, fmt.Errorf("reaping task_to_run: %w", err)
	}

	summary, err = summary.Update().
		SetState(lifecycle.Running).
		SetBotID(botID).
		SetStartedTs(now).
		SetModifiedTs(now).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("marking task running: %w", err)
	}

	runResult, err := tx.TaskRunResult.Create().
		SetID(fingerprint.RunResultID(summary.ID, summary.TryNumber)).
		SetTaskID(summary.ID).
		SetTryNumber(summary.TryNumber).
		SetBotID(botID).
		SetBotDimensions(botDimensions).
		SetState(lifecycle.Running).
		SetStartedTs(now).
		SetLastUpdateTs(now).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating task_run_result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	return &Reservation{Task: summary, RunResult: runResult, Request: request}, nil
}
