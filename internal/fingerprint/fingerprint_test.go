package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesHashStableUnderMapOrder(t *testing.T) {
	p1 := CanonicalProperties{
		Commands:             [][]string{{"echo", "hi"}},
		Dimensions:           map[string]string{"os": "Linux", "pool": "default"},
		Env:                  map[string]string{"A": "1", "B": "2"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
	}
	p2 := CanonicalProperties{
		Commands:             [][]string{{"echo", "hi"}},
		Dimensions:           map[string]string{"pool": "default", "os": "Linux"},
		Env:                  map[string]string{"B": "2", "A": "1"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
	}
	require.Equal(t, PropertiesHash(p1), PropertiesHash(p2))
}

func TestPropertiesHashDiffersOnContent(t *testing.T) {
	base := CanonicalProperties{
		Commands:   [][]string{{"echo", "hi"}},
		Dimensions: map[string]string{"os": "Linux"},
	}
	changed := base
	changed.Commands = [][]string{{"echo", "bye"}}
	assert.NotEqual(t, PropertiesHash(base), PropertiesHash(changed))
}

func TestDimensionsHashIgnoresOrder(t *testing.T) {
	a := DimensionsHash(map[string]string{"os": "Linux", "pool": "default"})
	b := DimensionsHash(map[string]string{"pool": "default", "os": "Linux"})
	require.Equal(t, a, b)
}

func TestPackQueueNumberPriorityDominates(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	highPriorityLater := PackQueueNumber(1, later)
	lowPriorityNow := PackQueueNumber(2, now)
	assert.Less(t, highPriorityLater, lowPriorityNow, "lower priority value beats earlier creation time across priority classes")
}

func TestPackQueueNumberFIFOWithinPriority(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Second)
	assert.Less(t, PackQueueNumber(5, now), PackQueueNumber(5, later))
}

func TestDerivedIDsAreDeterministic(t *testing.T) {
	req := NewRequestID()
	assert.Equal(t, req+"-ttr", TaskToRunID(req))
	assert.Equal(t, req, TaskID(req))
	assert.Equal(t, req+"-1", RunResultID(TaskID(req), 1))
	assert.Equal(t, req+"-1-0-2", ChunkID(RunResultID(TaskID(req), 1), 0, 2))
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		require.False(t, seen[id], "collision at iteration %d", i)
		seen[id] = true
	}
}
