// Package updatepipeline implements bot_update_task: the idempotent,
// incremental ingestion of a running task's output chunks and exit codes,
// and its terminal transition to COMPLETED (spec.md §4.6).
package updatepipeline

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/taskoutputchunk"
	"github.com/luci/swarmsched/internal/fingerprint"
	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/swarmerr"
)

// OutputChunkWrite is one append-only slice of a command's output stream.
type OutputChunkWrite struct {
	CommandIndex int
	ChunkIndex   int
	Data         []byte
}

// Request is the input to Update: the incremental state a bot reports for
// a task it is executing.
type Request struct {
	RunResultID  string
	BotID        string
	OutputChunks []OutputChunkWrite
	ExitCodes    map[int]int
	Finished     bool
	Failure      bool
	ChunkSize    int

	// FinalState is the terminal state to land on when Finished is set.
	// Empty defaults to lifecycle.Completed, the normal "bot ran every
	// command and reported every exit code" path; bot_task_error sets this
	// to lifecycle.BotDied instead, since a bot giving up on a task is not
	// the same outcome as one that actually finished executing it
	// (spec.md §6, §4.5).
	FinalState string
}

// Result reports the task's state after the update was applied.
type Result struct {
	State string
}

// Update applies an incremental bot_update_task call inside a single
// transaction. Output chunk writes are safe to retry: output chunks use a
// deterministic id derived from (run_result_id, command_index, chunk_index),
// and a retried write of a chunk already on disk is a no-op as long as the
// bytes match — a retry with different bytes at an already-written offset,
// or a chunk past the current contiguous tail (which would leave a gap), is
// rejected with swarmerr.ErrConflict (spec.md §4.6). Exit codes are not
// retry-safe: a call that reports an exit code already recorded for its
// command is rejected with swarmerr.ErrConflict, even when the code is the
// same, and so is every call once the task is terminal.
func Update(ctx context.Context, client *ent.Client, req Request) (*Result, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting update transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	runResult, err := tx.TaskRunResult.Get(ctx, req.RunResultID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, swarmerr.ErrNotFound
		}
		return nil, fmt.Errorf("loading task_run_result: %w", err)
	}
	if runResult.BotID != req.BotID {
		return nil, swarmerr.ErrConflict
	}

	summary, err := tx.TaskResultSummary.Get(ctx, runResult.TaskID)
	if err != nil {
		return nil, fmt.Errorf("loading task_result_summary: %w", err)
	}
	if lifecycle.IsTerminal(string(summary.State)) {
		return nil, swarmerr.ErrConflict
	}

	exitCodes := copyExitCodes(runResult.ExitCodes)
	for cmdIdx, code := range req.ExitCodes {
		key := strconv.Itoa(cmdIdx)
		if _, already := exitCodes[key]; already {
			// A command's exit code is recorded exactly once; output or a
			// second exit code for the same command after that is rejected.
			return nil, swarmerr.ErrConflict
		}
		exitCodes[key] = code
	}

	tails := make(map[int]int)
	for _, chunk := range req.OutputChunks {
		if key := strconv.Itoa(chunk.CommandIndex); hasExitCode(runResult.ExitCodes, key) {
			// The command has already reported its exit code; no further
			// output for it is legal.
			return nil, swarmerr.ErrConflict
		}
		if req.ChunkSize > 0 && len(chunk.Data) > req.ChunkSize {
			return nil, swarmerr.NewValidationError("data", "chunk exceeds configured chunk size")
		}

		tail, err := commandTail(ctx, tx, req.RunResultID, chunk.CommandIndex, tails)
		if err != nil {
			return nil, err
		}
		if chunk.ChunkIndex > tail {
			// A chunk past the contiguous tail would leave a gap behind it
			// that nothing will ever fill in.
			return nil, swarmerr.ErrConflict
		}

		chunkID := fingerprint.ChunkID(req.RunResultID, chunk.CommandIndex, chunk.ChunkIndex)
		if chunk.ChunkIndex < tail {
			// Already on disk: a retry must reproduce the same bytes.
			existing, err := tx.TaskOutputChunk.Get(ctx, chunkID)
			if err != nil {
				return nil, fmt.Errorf("loading existing output chunk: %w", err)
			}
			if !bytes.Equal(existing.Data, chunk.Data) {
				return nil, swarmerr.ErrConflict
			}
			continue
		}

		// chunk.ChunkIndex == tail: the next contiguous chunk.
		err = tx.TaskOutputChunk.Create().
			SetID(chunkID).
			SetRunResultID(req.RunResultID).
			SetCommandIndex(chunk.CommandIndex).
			SetChunkIndex(chunk.ChunkIndex).
			SetByteOffset(chunk.ChunkIndex * maxInt(req.ChunkSize, 1)).
			SetData(chunk.Data).
			OnConflict(entsql.ConflictColumns("run_result_id", "command_index", "chunk_index")).
			DoNothing().
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("writing output chunk: %w", err)
		}
		tails[chunk.CommandIndex] = tail + 1
	}

	now := time.Now()
	runResultUpdate := runResult.Update().
		SetExitCodes(exitCodes).
		SetLastUpdateTs(now)
	summaryUpdate := summary.Update().
		SetExitCodes(exitCodes).
		SetModifiedTs(now)

	finalState := string(summary.State)
	if req.Finished {
		target := req.FinalState
		if target == "" {
			target = lifecycle.Completed
		}
		if err := lifecycle.Validate(string(summary.State), target); err != nil {
			return nil, err
		}
		finalState = target
		runResultUpdate = runResultUpdate.SetState(target).SetFailure(req.Failure).SetCompletedTs(now)
		summaryUpdate = summaryUpdate.SetState(target).SetFailure(req.Failure).SetCompletedTs(now)
	}

	if _, err := runResultUpdate.Save(ctx); err != nil {
		return nil, fmt.Errorf("updating task_run_result: %w", err)
	}
	if _, err := summaryUpdate.Save(ctx); err != nil {
		return nil, fmt.Errorf("updating task_result_summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return &Result{State: finalState}, nil
}

// commandTail returns the next expected chunk_index for (runResultID,
// commandIndex): one past the highest chunk_index already persisted, or 0
// if none is. Results are cached in tails for the lifetime of a single
// Update call, since a call may append more than one chunk to the same
// command in sequence.
func commandTail(ctx context.Context, tx *ent.Tx, runResultID string, commandIndex int, tails map[int]int) (int, error) {
	if tail, ok := tails[commandIndex]; ok {
		return tail, nil
	}

	last, err := tx.TaskOutputChunk.Query().
		Where(
			taskoutputchunk.RunResultIDEQ(runResultID),
			taskoutputchunk.CommandIndexEQ(commandIndex),
		).
		Order(ent.Desc(taskoutputchunk.FieldChunkIndex)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			tails[commandIndex] = 0
			return 0, nil
		}
		return 0, fmt.Errorf("loading output chunk tail: %w", err)
	}

	tail := last.ChunkIndex + 1
	tails[commandIndex] = tail
	return tail, nil
}

func copyExitCodes(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func hasExitCode(m map[string]int, key string) bool {
	_, ok := m[key]
	return ok
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
