package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TaskRequest holds the schema definition for the TaskRequest entity.
// Immutable once created: the client-submitted job description.
type TaskRequest struct {
	ent.Schema
}

// Fields of the TaskRequest.
func (TaskRequest) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("request_id").
			Unique().
			Immutable(),
		field.String("name").
			Immutable(),
		field.String("user").
			Immutable(),
		field.Uint8("priority").
			Immutable().
			Comment("0-255, lower is higher priority"),
		field.Time("created_ts").
			Default(time.Now).
			Immutable(),
		field.Time("expiration_ts").
			Immutable(),
		field.JSON("commands", [][]string{}).
			Immutable().
			Comment("Ordered list of argv vectors"),
		field.JSON("data", []TaskInputRef{}).
			Optional().
			Immutable().
			Comment("Isolated input files as (url, digest) pairs"),
		field.JSON("dimensions", map[string]string{}).
			Immutable().
			Comment("Required dimension key -> value; keys unique by map construction"),
		field.JSON("env", map[string]string{}).
			Optional().
			Immutable(),
		field.Int("execution_timeout_secs").
			Immutable(),
		field.Int("io_timeout_secs").
			Immutable(),
		field.String("properties_hash").
			Immutable().
			Comment("Fingerprint over canonicalized properties, see internal/fingerprint"),
	}
}

// TaskInputRef is an isolated input reference: a content-addressed digest
// reachable at url.
type TaskInputRef struct {
	URL    string `json:"url"`
	Digest string `json:"digest"`
}

// Edges of the TaskRequest.
func (TaskRequest) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("task_to_run", TaskToRun.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("result_summary", TaskResultSummary.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the TaskRequest.
func (TaskRequest) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("properties_hash"),
		index.Fields("user", "created_ts"),
	}
}
