package botpoll_test

import (
	"context"
	"testing"
	"time"

	"github.com/luci/swarmsched/internal/botpoll"
	"github.com/luci/swarmsched/internal/taskqueue"
	testdb "github.com/luci/swarmsched/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() botpoll.Config {
	return botpoll.Config{
		BotVersion:    "v1",
		RestartAfter:  24 * time.Hour,
		BaseBackoff:   time.Second,
		MaxBackoff:    60 * time.Second,
		MatcherFanout: 50,
		MaxPowerset:   1024,
	}
}

func TestPollReturnsUpdateOnVersionMismatch(t *testing.T) {
	client := testdb.NewTestClient(t)
	resp, err := botpoll.Poll(context.Background(), client.Client, baseConfig(), botpoll.State{
		BotID:      "bot-1",
		Dimensions: map[string][]string{"os": {"Linux"}},
		Version:    "v0",
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandUpdate, resp.Command)
	assert.Equal(t, "v1", resp.Message)
}

func TestPollReturnsRestartAfterUptimeExceeded(t *testing.T) {
	client := testdb.NewTestClient(t)
	cfg := baseConfig()
	cfg.RestartAfter = time.Minute
	resp, err := botpoll.Poll(context.Background(), client.Client, cfg, botpoll.State{
		BotID:      "bot-1",
		Dimensions: map[string][]string{"os": {"Linux"}},
		Version:    "v1",
		Uptime:     2 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandRestart, resp.Command)
}

func TestPollReturnsTerminateWhenRequested(t *testing.T) {
	client := testdb.NewTestClient(t)
	resp, err := botpoll.Poll(context.Background(), client.Client, baseConfig(), botpoll.State{
		BotID:       "bot-1",
		Version:     "v1",
		TerminateID: "task-123",
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandTerminate, resp.Command)
	assert.Equal(t, "task-123", resp.TaskID)
}

func TestPollSleepsWhenQuarantined(t *testing.T) {
	client := testdb.NewTestClient(t)
	resp, err := botpoll.Poll(context.Background(), client.Client, baseConfig(), botpoll.State{
		BotID:       "bot-1",
		Version:     "v1",
		Dimensions:  map[string][]string{"os": {"Linux"}},
		Quarantined: true,
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandSleep, resp.Command)
	assert.Greater(t, resp.SleepFor, time.Duration(0))
}

func TestPollSleepsWhenNoMatchingWork(t *testing.T) {
	client := testdb.NewTestClient(t)
	resp, err := botpoll.Poll(context.Background(), client.Client, baseConfig(), botpoll.State{
		BotID:      "bot-1",
		Version:    "v1",
		Dimensions: map[string][]string{"os": {"Linux"}},
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandSleep, resp.Command)
	assert.Equal(t, 1, resp.SleepStreak)
}

func TestPollReturnsRunOnMatch(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	_, err := taskqueue.Enqueue(ctx, client.Client, taskqueue.NewTaskSpec{
		Name:                 "matched",
		User:                 "alice@example.com",
		Priority:             100,
		Commands:             [][]string{{"true"}},
		Dimensions:           map[string]string{"os": "Linux"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
		ExpirationSecs:       3600,
	})
	require.NoError(t, err)

	resp, err := botpoll.Poll(ctx, client.Client, baseConfig(), botpoll.State{
		BotID:      "bot-1",
		Version:    "v1",
		Dimensions: map[string][]string{"os": {"Linux"}},
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandRun, resp.Command)
	require.NotNil(t, resp.Reservation)
	assert.Equal(t, "bot-1", resp.Reservation.Task.BotID)
}

func TestPollSleepsWhenDimensionPowersetTooLarge(t *testing.T) {
	client := testdb.NewTestClient(t)
	cfg := baseConfig()
	cfg.MaxPowerset = 4

	dims := map[string][]string{"a": {"1"}, "b": {"2"}, "c": {"3"}, "d": {"4"}, "e": {"5"}}
	resp, err := botpoll.Poll(context.Background(), client.Client, cfg, botpoll.State{
		BotID:      "bot-1",
		Version:    "v1",
		Dimensions: dims,
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandSleep, resp.Command)
}
