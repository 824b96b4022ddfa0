package taskqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/luci/swarmsched/internal/fingerprint"
	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/taskqueue"
	"github.com/luci/swarmsched/pkg/services"
	testdb "github.com/luci/swarmsched/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() taskqueue.NewTaskSpec {
	return taskqueue.NewTaskSpec{
		Name:                 "hello-world",
		User:                 "alice@example.com",
		Priority:             100,
		Commands:             [][]string{{"echo", "hi"}},
		Dimensions:           map[string]string{"os": "Linux", "pool": "default"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
		ExpirationSecs:       3600,
	}
}

func TestEnqueueCreatesRequestToRunAndSummary(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, client.Client, testSpec())
	require.NoError(t, err)
	require.NotEmpty(t, req.ID)

	ttr, err := client.TaskToRun.Get(ctx, fingerprint.TaskToRunID(req.ID))
	require.NoError(t, err)
	assert.Equal(t, req.ID, ttr.RequestID)
	assert.Nil(t, ttr.ReapedTs)

	summary, err := client.TaskResultSummary.Get(ctx, fingerprint.TaskID(req.ID))
	require.NoError(t, err)
	assert.Equal(t, string(summary.State), lifecycle.Pending)
	assert.Equal(t, req.ID, summary.RequestID)
}

func TestAbortCancelsPendingTask(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, client.Client, testSpec())
	require.NoError(t, err)

	err = taskqueue.Abort(ctx, client.Client, req.ID)
	require.NoError(t, err)

	summary, err := client.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Canceled, string(summary.State))
	require.NotNil(t, summary.AbandonedTs)

	ttr, err := client.TaskToRun.Get(ctx, fingerprint.TaskToRunID(req.ID))
	require.NoError(t, err)
	require.NotNil(t, ttr.ReapedTs)
}

func TestAbortTwiceIsConflict(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, client.Client, testSpec())
	require.NoError(t, err)

	require.NoError(t, taskqueue.Abort(ctx, client.Client, req.ID))
	err = taskqueue.Abort(ctx, client.Client, req.ID)
	assert.ErrorIs(t, err, services.ErrConflict)
}

func TestAbortUnknownTaskIsNotFound(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	err := taskqueue.Abort(ctx, client.Client, "does-not-exist")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestAbortAfterClaimIsConflict(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, client.Client, testSpec())
	require.NoError(t, err)

	now := time.Now()
	ttr, err := client.TaskToRun.Get(ctx, fingerprint.TaskToRunID(req.ID))
	require.NoError(t, err)
	_, err = ttr.Update().SetReapedTs(now).Save(ctx)
	require.NoError(t, err)

	err = taskqueue.Abort(ctx, client.Client, req.ID)
	assert.ErrorIs(t, err, services.ErrConflict)
}

func TestCancelRunningCancelsClaimedTask(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, client.Client, testSpec())
	require.NoError(t, err)

	summary, err := client.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	_, err = summary.Update().SetState(lifecycle.Running).SetBotID("bot-1").Save(ctx)
	require.NoError(t, err)

	require.NoError(t, taskqueue.CancelRunning(ctx, client.Client, req.ID))

	summary, err = client.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Canceled, string(summary.State))
	require.NotNil(t, summary.AbandonedTs)
}

func TestCancelRunningTwiceIsConflict(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	req, err := taskqueue.Enqueue(ctx, client.Client, testSpec())
	require.NoError(t, err)

	summary, err := client.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	_, err = summary.Update().SetState(lifecycle.Running).SetBotID("bot-1").Save(ctx)
	require.NoError(t, err)

	require.NoError(t, taskqueue.CancelRunning(ctx, client.Client, req.ID))
	err = taskqueue.CancelRunning(ctx, client.Client, req.ID)
	assert.ErrorIs(t, err, services.ErrConflict)
}
