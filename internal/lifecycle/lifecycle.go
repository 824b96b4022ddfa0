// Package lifecycle implements the per-task finite state machine shared by
// TaskResultSummary and TaskRunResult: the set of legal transitions, which
// states are terminal, and the terminal-state stickiness invariant (a
// terminal state never reverts to a non-terminal one).
package lifecycle

import (
	"github.com/luci/swarmsched/ent/schema"
	"github.com/luci/swarmsched/internal/swarmerr"
)

// State aliases the schema-declared enum values so callers outside ent/schema
// don't need to import it directly. These are deliberately untyped constants
// so they convert implicitly into the ent-generated per-entity enum types
// (taskresultsummary.State, taskrunresult.State) at call sites.
type State = string

const (
	Pending   = schema.TaskStatePending
	Running   = schema.TaskStateRunning
	Completed = schema.TaskStateCompleted
	TimedOut  = schema.TaskStateTimedOut
	BotDied   = schema.TaskStateBotDied
	Expired   = schema.TaskStateExpired
	Canceled  = schema.TaskStateCanceled
)

// terminal holds the states from which no further transition is legal.
var terminal = map[State]bool{
	Completed: true,
	TimedOut:  true,
	BotDied:   true,
	Expired:   true,
	Canceled:  true,
}

// IsTerminal reports whether s is a terminal state.
func IsTerminal(s State) bool {
	return terminal[s]
}

// legal enumerates the allowed from -> {to...} transitions (spec.md §4.5).
var legal = map[State]map[State]bool{
	Pending: {
		Running:  true, // reservation claim
		Expired:  true, // sweeper: expired before any bot claimed it
		Canceled: true, // client cancel before a bot claimed it
	},
	Running: {
		Completed: true, // bot_update_task with all exit codes recorded
		TimedOut:  true, // execution or I/O timeout observed
		BotDied:   true, // sweeper: no update within BotDeathTimeout
		Canceled:  true, // client cancel of a running task
	},
}

// Validate reports whether the transition from -> to is legal. A no-op
// transition (from == to) is always rejected: callers must not re-apply a
// state they already hold, since writes are expected to be idempotent at a
// layer above this one (internal/updatepipeline), not here.
func Validate(from, to State) error {
	if terminal[from] {
		return swarmerr.ErrConflict
	}
	if !legal[from][to] {
		return swarmerr.ErrConflict
	}
	return nil
}
