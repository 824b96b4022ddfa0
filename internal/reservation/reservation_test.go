package reservation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/luci/swarmsched/internal/reservation"
	"github.com/luci/swarmsched/internal/taskqueue"
	"github.com/luci/swarmsched/pkg/services"
	testdb "github.com/luci/swarmsched/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapClaimsExactlyOnceUnderConcurrency(t *testing.T) {
	shared := testdb.NewSharedTestDB(t)
	writer := shared.NewClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, writer.Client, taskqueue.NewTaskSpec{
		Name:                 "race",
		User:                 "alice@example.com",
		Priority:             100,
		Commands:             [][]string{{"true"}},
		Dimensions:           map[string]string{"os": "Linux"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
		ExpirationSecs:       3600,
	})
	require.NoError(t, err)

	const bots = 8
	var wg sync.WaitGroup
	results := make([]*reservation.Reservation, bots)
	errs := make([]error, bots)

	for i := 0; i < bots; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := shared.NewClient(t)
			botID := "bot-" + string(rune('a'+i))
			res, err := reservation.Reap(ctx, c.Client, botID, map[string][]string{"os": {"Linux"}, "cores": {"8"}}, 50, 1024)
			results[i] = res
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var won int
	var winningBot string
	for i, res := range results {
		if res != nil {
			won++
			winningBot = res.Task.BotID
			assert.Equal(t, req.ID, res.Task.ID)
		} else {
			assert.ErrorIs(t, errs[i], services.ErrUnavailable)
		}
	}
	require.Equal(t, 1, won, "exactly one bot must win the reservation")
	assert.NotEmpty(t, winningBot)

	summary, err := writer.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", string(summary.State))
	assert.Equal(t, winningBot, summary.BotID)

	runResults, err := writer.TaskRunResult.Query().All(ctx)
	require.NoError(t, err)
	assert.Len(t, runResults, 1)
}

func TestReapNoMatchingDimensionsReturnsUnavailable(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	_, err := taskqueue.Enqueue(ctx, client.Client, taskqueue.NewTaskSpec{
		Name:                 "gpu-only",
		User:                 "alice@example.com",
		Priority:             100,
		Commands:             [][]string{{"true"}},
		Dimensions:           map[string]string{"gpu": "nvidia-t4"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
		ExpirationSecs:       3600,
	})
	require.NoError(t, err)

	_, err = reservation.Reap(ctx, client.Client, "bot-cpu-only", map[string][]string{"os": {"Linux"}}, 50, 1024)
	assert.ErrorIs(t, err, services.ErrUnavailable)
}
