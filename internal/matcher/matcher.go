// Package matcher finds pending TaskToRun rows a bot's dimension set can
// satisfy, without taking any lock: it is a read-only prefilter, the actual
// claim happens under a transaction in internal/reservation.
package matcher

import (
	"context"
	"fmt"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/tasktorun"
	"github.com/luci/swarmsched/internal/fingerprint"
)

// ErrTooManyDimensions is returned when a bot's dimension set would require
// enumerating more subsets than MaxPowerset allows; the caller should
// quarantine the bot rather than attempt a match.
var ErrTooManyDimensions error = tooManyDimensionsError{}

type tooManyDimensionsError struct{}

func (tooManyDimensionsError) Error() string {
	return "bot dimension set too large to enumerate for matching"
}

// Candidates returns up to fanout pending TaskToRun rows whose dimensions
// are satisfied by botDimensions, ordered by queue_number ascending (highest
// priority, then oldest, first) with request_id as a final tie-break so two
// rows sharing a queue_number still sort deterministically. It performs no
// locking: callers must claim a candidate transactionally before treating it
// as reserved.
//
// botDimensions maps each dimension key to every value the bot satisfies
// (spec.md §4.3, e.g. os ∈ {Linux, Ubuntu, Ubuntu-20.04}): a bot that can
// satisfy more than one value for a key is not the same as a bot that
// advertises one value per key, so flattening to a single value per key
// would silently narrow matches to plain equality. The search works by
// enumerating every (subset of keys) × (one chosen value per included key)
// combination — the generalized power set, bounded by maxPowerset — and
// looking up TaskToRun rows whose dimensions_hash matches one of those
// combinations' canonical hash. A task's dimensions_hash is computed from
// exactly the single-valued dimensions the client requested, so it will
// equal the hash of some combination of the bot's dimensions whenever the
// bot satisfies every required key/value pair.
func Candidates(ctx context.Context, client *ent.Client, botDimensions map[string][]string, fanout, maxPowerset int) ([]*ent.TaskToRun, error) {
	hashes, err := subsetHashes(botDimensions, maxPowerset)
	if err != nil {
		return nil, err
	}

	rows, err := client.TaskToRun.Query().
		Where(
			tasktorun.DimensionsHashIn(hashes...),
			tasktorun.ReapedTsIsNil(),
		).
		Order(ent.Asc(tasktorun.FieldQueueNumber), ent.Asc(tasktorun.FieldRequestID)).
		Limit(fanout).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying candidate tasks: %w", err)
	}
	return rows, nil
}

// subsetHashes enumerates the canonical dimensions hash of every (subset of
// keys) × (one value per included key) combination dims can produce,
// including the empty combination (for dimension-less requests). Each key
// contributes (1 + len(values)) options — "not included" plus one option per
// value it can satisfy — so the total combination count is the product of
// those option counts across all keys; maxPowerset bounds that product the
// same way it bounded 2^n in the single-valued case.
func subsetHashes(dims map[string][]string, maxPowerset int) ([]string, error) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}

	total := 1
	for _, k := range keys {
		options := len(dims[k]) + 1
		if total > maxPowerset/options {
			return nil, ErrTooManyDimensions
		}
		total *= options
	}
	if total > maxPowerset {
		return nil, ErrTooManyDimensions
	}

	hashes := make([]string, 0, total)
	combo := make(map[string]string, len(keys))
	var walk func(i int)
	walk = func(i int) {
		if i == len(keys) {
			hashes = append(hashes, fingerprint.DimensionsHash(combo))
			return
		}
		k := keys[i]
		walk(i + 1) // key not included in this combination
		for _, v := range dims[k] {
			combo[k] = v
			walk(i + 1)
		}
		delete(combo, k)
	}
	walk(0)
	return hashes, nil
}
