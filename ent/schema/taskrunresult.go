package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TaskRunResult holds the schema definition for the TaskRunResult entity:
// one bot's attempt at executing a task, created at reservation time.
type TaskRunResult struct {
	ent.Schema
}

// Fields of the TaskRunResult.
func (TaskRunResult) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("run_result_id").
			Unique().
			Immutable(),
		field.String("task_id").
			Immutable(),
		field.Uint8("try_number").
			Default(1).
			Immutable(),
		field.String("bot_id").
			Immutable(),
		field.JSON("bot_dimensions", map[string][]string{}).
			Optional().
			Immutable().
			Comment("full dimension set the bot advertised at claim time, for audit"),
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
			Default(TaskStateRunning),
		field.Bool("failure").
			Default(false),
		field.Time("started_ts").
			Default(time.Now).
			Immutable(),
		field.Time("last_update_ts").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("completed_ts").
			Optional().
			Nillable(),
		field.JSON("exit_codes", map[string]int{}).
			Optional(),
	}
}

// Edges of the TaskRunResult.
func (TaskRunResult) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("summary", TaskResultSummary.Type).
			Ref("run_results").
			Unique().
			Immutable(),
		edge.To("output_chunks", TaskOutputChunk.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the TaskRunResult.
func (TaskRunResult) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("state", "last_update_ts").
			Annotations(entsql.IndexWhere("state = 'RUNNING'")),
		index.Fields("bot_id"),
	}
}
