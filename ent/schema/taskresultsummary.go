package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TaskResultSummary holds the schema definition for the TaskResultSummary
// entity: the single durable record of a task's outcome, addressed by the
// public task id.
type TaskResultSummary struct {
	ent.Schema
}

// TaskState enumerates the task FSM states (spec.md §4.5).
const (
	TaskStatePending   = "PENDING"
	TaskStateRunning   = "RUNNING"
	TaskStateCompleted = "COMPLETED"
	TaskStateTimedOut  = "TIMED_OUT"
	TaskStateBotDied   = "BOT_DIED"
	TaskStateExpired   = "EXPIRED"
	TaskStateCanceled  = "CANCELED"
)

// Fields of the TaskResultSummary.
func (TaskResultSummary) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("task_id").
			Unique().
			Immutable(),
		field.String("request_id").
			Immutable(),
		field.Enum("state").
			Values(
				TaskStatePending,
				TaskStateRunning,
				TaskStateCompleted,
				TaskStateTimedOut,
				TaskStateBotDied,
				TaskStateExpired,
				TaskStateCanceled,
			).
			Default(TaskStatePending),
		field.Bool("failure").
			Default(false),
		field.String("bot_id").
			Optional().
			Nillable(),
		field.Uint8("try_number").
			Default(1).
			Comment("pinned to 1; no retry path creates try_number > 1, see DESIGN.md"),
		field.String("name").
			Immutable().
			Comment("copied from TaskRequest for query efficiency"),
		field.String("user").
			Immutable().
			Comment("copied from TaskRequest for query efficiency"),
		field.Uint8("priority").
			Immutable().
			Comment("copied from TaskRequest for query efficiency"),
		field.Time("created_ts").
			Immutable(),
		field.Time("modified_ts").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("started_ts").
			Optional().
			Nillable(),
		field.Time("completed_ts").
			Optional().
			Nillable(),
		field.Time("abandoned_ts").
			Optional().
			Nillable(),
		field.JSON("exit_codes", map[string]int{}).
			Optional().
			Comment("command_index (string key) -> exit code, grows incrementally"),
		field.JSON("output_chunk_roots", []string{}).
			Optional().
			Comment("TaskOutputChunk run_result_id fan-out, one per try"),
	}
}

// Edges of the TaskResultSummary.
func (TaskResultSummary) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("request", TaskRequest.Type).
			Ref("result_summary").
			Unique().
			Immutable(),
		edge.To("run_results", TaskRunResult.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the TaskResultSummary.
func (TaskResultSummary) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("state", "modified_ts"),
		index.Fields("user", "created_ts"),
	}
}
