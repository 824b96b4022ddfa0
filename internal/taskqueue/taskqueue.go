// Package taskqueue implements the write path for a task's queue-facing
// lifecycle: enqueue (creating the TaskRequest/TaskToRun/TaskResultSummary
// triple) and abort (client cancellation of a still-pending task).
package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/schema"
	"github.com/luci/swarmsched/ent/tasktorun"
	"github.com/luci/swarmsched/internal/fingerprint"
	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/swarmerr"
)

// NewTaskSpec is the validated input to Enqueue.
type NewTaskSpec struct {
	Name                 string
	User                 string
	Priority             uint8
	Commands             [][]string
	Data                 []schema.TaskInputRef
	Dimensions           map[string]string
	Env                  map[string]string
	ExecutionTimeoutSecs int
	IOTimeoutSecs        int
	ExpirationSecs       int
}

// Enqueue creates a TaskRequest and its TaskToRun reservation slip and
// initial PENDING TaskResultSummary in a single transaction (spec.md §4.2).
func Enqueue(ctx context.Context, client *ent.Client, spec NewTaskSpec) (*ent.TaskRequest, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting enqueue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	requestID := fingerprint.NewRequestID()
	expirationTs := now.Add(time.Duration(spec.ExpirationSecs) * time.Second)
	propsHash := fingerprint.PropertiesHash(fingerprint.CanonicalProperties{
		Commands:             spec.Commands,
		Dimensions:           spec.Dimensions,
		Env:                  spec.Env,
		ExecutionTimeoutSecs: spec.ExecutionTimeoutSecs,
		IOTimeoutSecs:        spec.IOTimeoutSecs,
	})

	req, err := tx.TaskRequest.Create().
		SetID(requestID).
		SetName(spec.Name).
		SetUser(spec.User).
		SetPriority(spec.Priority).
		SetCreatedTs(now).
		SetExpirationTs(expirationTs).
		SetCommands(spec.Commands).
		SetData(spec.Data).
		SetDimensions(spec.Dimensions).
		SetEnv(spec.Env).
		SetExecutionTimeoutSecs(spec.ExecutionTimeoutSecs).
		SetIoTimeoutSecs(spec.IOTimeoutSecs).
		SetPropertiesHash(propsHash).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating task request: %w", err)
	}

	dimHash := fingerprint.DimensionsHash(spec.Dimensions)
	_, err = tx.TaskToRun.Create().
		SetID(fingerprint.TaskToRunID(requestID)).
		SetRequestID(requestID).
		SetQueueNumber(fingerprint.PackQueueNumber(spec.Priority, now)).
		SetDimensionsHash(dimHash).
		SetExpirationTs(expirationTs).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating task_to_run: %w", err)
	}

	_, err = tx.TaskResultSummary.Create().
		SetID(fingerprint.TaskID(requestID)).
		SetRequestID(requestID).
		SetState(lifecycle.Pending).
		SetName(spec.Name).
		SetUser(spec.User).
		SetPriority(spec.Priority).
		SetCreatedTs(now).
		SetModifiedTs(now).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating task_result_summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing enqueue: %w", err)
	}
	return req, nil
}

// Abort cancels a task that has not yet been claimed by a bot. If the task
// has already left PENDING (claimed, or already terminal), it returns
// swarmerr.ErrConflict: cancellation of a RUNNING task is a separate,
// lifecycle-gated operation, not this one.
func Abort(ctx context.Context, client *ent.Client, taskID string) error {
	tx, err := client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting abort transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	summary, err := tx.TaskResultSummary.Get(ctx, taskID)
	if err != nil {
		if ent.IsNotFound(err) {
			return swarmerr.ErrNotFound
		}
		return fmt.Errorf("loading task_result_summary: %w", err)
	}

	if err := lifecycle.Validate(string(summary.State), lifecycle.Canceled); err != nil {
		return err
	}

	now := time.Now()
	_, err = summary.Update().
		SetState(lifecycle.Canceled).
		SetAbandonedTs(now).
		SetModifiedTs(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("marking task cancelled: %w", err)
	}

	ttrID := fingerprint.TaskToRunID(summary.RequestID)
	affected, err := tx.TaskToRun.Update().
		Where(tasktorun.IDEQ(ttrID), tasktorun.ReapedTsIsNil()).
		SetReapedTs(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("retiring task_to_run: %w", err)
	}
	if affected == 0 {
		// A concurrent claim reaped the task_to_run first; this transaction
		// rolls back (via the deferred Rollback) rather than cancelling a
		// task that is about to start running.
		return swarmerr.ErrConflict
	}

	return tx.Commit()
}

// CancelRunning cancels a task that a bot has already claimed. Unlike
// Abort, there is no task_to_run left to retire: the bot is told to stop on
// its next contact (the update pipeline rejects further writes once the
// summary is terminal), not killed out of band.
func CancelRunning(ctx context.Context, client *ent.Client, taskID string) error {
	tx, err := client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting cancel transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	summary, err := tx.TaskResultSummary.Get(ctx, taskID)
	if err != nil {
		if ent.IsNotFound(err) {
			return swarmerr.ErrNotFound
		}
		return fmt.Errorf("loading task_result_summary: %w", err)
	}

	if err := lifecycle.Validate(string(summary.State), lifecycle.Canceled); err != nil {
		return err
	}

	now := time.Now()
	if _, err := summary.Update().
		SetState(lifecycle.Canceled).
		SetAbandonedTs(now).
		SetModifiedTs(now).
		Save(ctx); err != nil {
		return fmt.Errorf("marking running task cancelled: %w", err)
	}

	return tx.Commit()
}
