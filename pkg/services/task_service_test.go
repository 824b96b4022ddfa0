package services_test

import (
	"context"
	"testing"

	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/taskqueue"
	"github.com/luci/swarmsched/internal/updatepipeline"
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

func TestNewTaskClampsPriorityToFloor(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := services.NewTaskService(client.Client, 50)

	spec := testSpec()
	spec.Priority = 0
	req, err := svc.NewTask(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, uint8(50), req.Priority)
}

func TestNewTaskRejectsMissingFields(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := services.NewTaskService(client.Client, 100)

	spec := testSpec()
	spec.Name = ""
	_, err := svc.NewTask(context.Background(), spec)
	assert.True(t, services.IsValidationError(err))
}

func TestCancelTaskRoutesPendingToAbort(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	svc := services.NewTaskService(client.Client, 100)

	req, err := svc.NewTask(ctx, testSpec())
	require.NoError(t, err)

	wasRunning, err := svc.CancelTask(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, wasRunning)

	task, err := svc.GetTask(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Canceled, string(task.State))
}

func TestCancelTaskRoutesRunningToCancelRunning(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	svc := services.NewTaskService(client.Client, 100)

	req, err := svc.NewTask(ctx, testSpec())
	require.NoError(t, err)

	summary, err := client.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	_, err = summary.Update().SetState(lifecycle.Running).SetBotID("bot-1").Save(ctx)
	require.NoError(t, err)

	wasRunning, err := svc.CancelTask(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, wasRunning)

	task, err := svc.GetTask(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Canceled, string(task.State))
}

func TestGetTaskUnknownIsNotFound(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := services.NewTaskService(client.Client, 100)

	_, err := svc.GetTask(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestGetTaskRequestReturnsOriginalSpec(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	svc := services.NewTaskService(client.Client, 100)

	req, err := svc.NewTask(ctx, testSpec())
	require.NoError(t, err)

	fetched, err := svc.GetTaskRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", fetched.Name)
}

func TestListTasksFiltersByState(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	svc := services.NewTaskService(client.Client, 100)

	req1, err := svc.NewTask(ctx, testSpec())
	require.NoError(t, err)
	req2, err := svc.NewTask(ctx, testSpec())
	require.NoError(t, err)
	_, err = svc.CancelTask(ctx, req2.ID)
	require.NoError(t, err)

	pending, err := svc.ListTasks(ctx, services.TaskListFilters{State: lifecycle.Pending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req1.ID, pending[0].ID)
}

func TestGetTaskOutputConcatenatesChunksInOrder(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	svc := services.NewTaskService(client.Client, 100)

	req, err := svc.NewTask(ctx, testSpec())
	require.NoError(t, err)

	summary, err := client.TaskResultSummary.Get(ctx, req.ID)
	require.NoError(t, err)
	runResultID := summary.ID + "-1"
	_, err = client.TaskRunResult.Create().
		SetID(runResultID).
		SetTaskID(summary.ID).
		SetTryNumber(1).
		SetBotID("bot-1").
		SetState(lifecycle.Running).
		Save(ctx)
	require.NoError(t, err)

	_, err = updatepipeline.Update(ctx, client.Client, updatepipeline.Request{
		RunResultID: runResultID,
		BotID:       "bot-1",
		OutputChunks: []updatepipeline.OutputChunkWrite{
			{CommandIndex: 0, ChunkIndex: 0, Data: []byte("hello ")},
			{CommandIndex: 0, ChunkIndex: 1, Data: []byte("world")},
		},
	})
	require.NoError(t, err)

	output, err := svc.GetTaskOutput(ctx, req.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", output)
}
