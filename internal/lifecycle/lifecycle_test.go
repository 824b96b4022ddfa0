package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTransitions(t *testing.T) {
	require.NoError(t, Validate(Pending, Running))
	require.NoError(t, Validate(Pending, Expired))
	require.NoError(t, Validate(Pending, Canceled))
	assert.Error(t, Validate(Pending, Completed))
	assert.Error(t, Validate(Pending, BotDied))
	assert.Error(t, Validate(Pending, TimedOut))
}

func TestRunningTransitions(t *testing.T) {
	require.NoError(t, Validate(Running, Completed))
	require.NoError(t, Validate(Running, TimedOut))
	require.NoError(t, Validate(Running, BotDied))
	require.NoError(t, Validate(Running, Canceled))
	assert.Error(t, Validate(Running, Pending))
	assert.Error(t, Validate(Running, Expired))
}

func TestTerminalStatesAreSticky(t *testing.T) {
	for _, s := range []State{Completed, TimedOut, BotDied, Expired, Canceled} {
		assert.True(t, IsTerminal(s))
		assert.Error(t, Validate(s, Running), "terminal state %s must reject any further transition", s)
		assert.Error(t, Validate(s, Completed))
	}
}

func TestNoOpTransitionRejected(t *testing.T) {
	assert.Error(t, Validate(Running, Running))
	assert.Error(t, Validate(Pending, Pending))
}
