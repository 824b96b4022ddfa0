package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TaskOutputChunk holds the schema definition for the TaskOutputChunk
// entity: one append-only slice of a command's stdout/stderr stream.
type TaskOutputChunk struct {
	ent.Schema
}

// Fields of the TaskOutputChunk.
func (TaskOutputChunk) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("chunk_id").
			Unique().
			Immutable(),
		field.String("run_result_id").
			Immutable(),
		field.Int("command_index").
			Immutable(),
		field.Int("chunk_index").
			Immutable().
			Comment("0-based, contiguous within (run_result_id, command_index)"),
		field.Int("byte_offset").
			Immutable().
			Comment("chunk_index * ChunkSize, the chunk's start offset in the command's output; gaps are detected from chunk_index"),
		field.Bytes("data").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the TaskOutputChunk.
func (TaskOutputChunk) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run_result", TaskRunResult.Type).
			Ref("output_chunks").
			Unique().
			Immutable(),
	}
}

// Indexes of the TaskOutputChunk.
func (TaskOutputChunk) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_result_id", "command_index", "chunk_index").
			Unique(),
	}
}
