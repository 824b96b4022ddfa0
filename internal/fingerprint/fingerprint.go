// Package fingerprint computes the canonical hashes and packed keys the
// scheduler uses to fingerprint task properties, order the pending queue,
// and derive entity IDs from their parents.
package fingerprint

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalProperties is the subset of a TaskRequest that determines whether
// two requests describe the same unit of work, used to compute properties_hash.
type CanonicalProperties struct {
	Commands             [][]string
	Dimensions           map[string]string
	Env                  map[string]string
	ExecutionTimeoutSecs int
	IOTimeoutSecs        int
}

// PropertiesHash returns a stable hex-encoded SHA-1 digest over p, insensitive
// to map iteration order. Two requests with identical properties always
// produce identical hashes.
func PropertiesHash(p CanonicalProperties) string {
	h := sha1.New()
	for _, argv := range p.Commands {
		fmt.Fprintf(h, "cmd:%s\n", strings.Join(argv, "\x1f"))
	}
	writeCanonicalMap(h, "dim", p.Dimensions)
	writeCanonicalMap(h, "env", p.Env)
	fmt.Fprintf(h, "exec_timeout:%d\n", p.ExecutionTimeoutSecs)
	fmt.Fprintf(h, "io_timeout:%d\n", p.IOTimeoutSecs)
	return hex.EncodeToString(h.Sum(nil))
}

// DimensionsHash returns a stable hex-encoded SHA-1 digest over a dimension
// set, used as a coarse prefilter before the subset matcher runs.
func DimensionsHash(dimensions map[string]string) string {
	h := sha1.New()
	writeCanonicalMap(h, "dim", dimensions)
	return hex.EncodeToString(h.Sum(nil))
}

func writeCanonicalMap(h interface{ Write([]byte) (int, error) }, label string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s:%s=%s\n", label, k, m[k])
	}
}

// PackQueueNumber folds priority and creation time into a single ordering
// key: lower values sort first. Priority occupies the high bits so it always
// dominates the comparison; created_ts (milliseconds since epoch) occupies
// the low bits as the tie-break, giving FIFO order within a priority class.
func PackQueueNumber(priority uint8, createdTs time.Time) int64 {
	millis := createdTs.UnixMilli()
	return int64(priority)<<48 | (millis & (1<<48 - 1))
}

// NewRequestID generates a new random identifier for a TaskRequest, root of
// the request's entity tree.
func NewRequestID() string {
	return newID()
}

// TaskToRunID derives the TaskToRun id owned by requestID. A request has at
// most one live TaskToRun, so the id is deterministic in the parent.
func TaskToRunID(requestID string) string {
	return requestID + "-ttr"
}

// TaskID derives the TaskResultSummary id from its owning requestID; the
// summary shares identity with the request it summarizes.
func TaskID(requestID string) string {
	return requestID
}

// RunResultID derives the TaskRunResult id from the task id and try number.
func RunResultID(taskID string, tryNumber uint8) string {
	return taskID + "-" + strconv.Itoa(int(tryNumber))
}

// ChunkID derives a TaskOutputChunk id from its run result, command index,
// and chunk index; deterministic so a retried write of the same chunk is
// naturally idempotent at the storage layer.
func ChunkID(runResultID string, commandIndex, chunkIndex int) string {
	return fmt.Sprintf("%s-%d-%d", runResultID, commandIndex, chunkIndex)
}

// newID returns a random, URL-safe identifier: a UUIDv4 XOR-folded to 64 bits
// and written as 16 lowercase hex characters, matching the short opaque IDs the
// public API returns.
func newID() string {
	u := uuid.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], binary.BigEndian.Uint64(u[:8])^binary.BigEndian.Uint64(u[8:]))
	return hex.EncodeToString(buf[:])
}
