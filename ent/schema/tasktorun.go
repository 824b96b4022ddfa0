package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TaskToRun holds the schema definition for the TaskToRun entity: the
// queue-side reservation slip for a TaskRequest, live until reaped or
// expired.
type TaskToRun struct {
	ent.Schema
}

// Fields of the TaskToRun.
func (TaskToRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("task_to_run_id").
			Unique().
			Immutable(),
		field.String("request_id").
			Immutable(),
		field.Int64("queue_number").
			Immutable().
			Comment("priority high bits, created_ts low bits; see internal/fingerprint"),
		field.String("dimensions_hash").
			Immutable().
			Comment("coarse prefilter fingerprint over the request's dimensions"),
		field.Time("expiration_ts").
			Immutable().
			Comment("copied from TaskRequest for sweeper query efficiency"),
		field.Time("reaped_ts").
			Optional().
			Nillable().
			Comment("set exactly once, atomically, when a bot claims this slip"),
	}
}

// Edges of the TaskToRun.
func (TaskToRun) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("request", TaskRequest.Type).
			Ref("task_to_run").
			Unique().
			Immutable(),
	}
}

// Indexes of the TaskToRun.
func (TaskToRun) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("dimensions_hash", "queue_number").
			Annotations(entsql.IndexWhere("reaped_ts IS NULL")),
		index.Fields("expiration_ts").
			Annotations(entsql.IndexWhere("reaped_ts IS NULL")),
	}
}
