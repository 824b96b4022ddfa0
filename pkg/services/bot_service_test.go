package services_test

import (
	"context"
	"testing"

	"github.com/luci/swarmsched/internal/botpoll"
	"github.com/luci/swarmsched/internal/taskqueue"
	"github.com/luci/swarmsched/internal/updatepipeline"
	"github.com/luci/swarmsched/internal/xsrf"
	"github.com/luci/swarmsched/pkg/services"
	testdb "github.com/luci/swarmsched/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPollConfig() botpoll.Config {
	return botpoll.Config{
		BotVersion:    "1",
		MatcherFanout: 10,
		MaxPowerset:   1024,
	}
}

func newBotService(t *testing.T) (*services.BotService, *xsrf.Signer) {
	client := testdb.NewTestClient(t)
	signer, err := xsrf.NewSigner()
	require.NoError(t, err)
	return services.NewBotService(client.Client, signer, testPollConfig(), 64*1024), signer
}

func TestHandshakeIssuesToken(t *testing.T) {
	svc, _ := newBotService(t)

	res, err := svc.Handshake(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.XSRFToken)
	assert.Equal(t, "1", res.ServerVersion)
}

func TestPollRejectsBadToken(t *testing.T) {
	svc, _ := newBotService(t)

	_, err := svc.Poll(context.Background(), "bot-1", "garbage", botpoll.State{})
	assert.ErrorIs(t, err, services.ErrAuth)
}

func TestPollSleepsWithNoWorkAfterValidHandshake(t *testing.T) {
	svc, signer := newBotService(t)
	token := signer.Issue("bot-1")

	res, err := svc.Poll(context.Background(), "bot-1", token, botpoll.State{
		Dimensions: map[string][]string{"os": {"Linux"}},
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandSleep, res.Command)
}

func TestPollReturnsRunForMatchingTask(t *testing.T) {
	client := testdb.NewTestClient(t)
	signer, err := xsrf.NewSigner()
	require.NoError(t, err)
	svc := services.NewBotService(client.Client, signer, testPollConfig(), 64*1024)
	ctx := context.Background()

	_, err = taskqueue.Enqueue(ctx, client.Client, taskqueue.NewTaskSpec{
		Name:                 "hello-world",
		User:                 "alice@example.com",
		Priority:             100,
		Commands:             [][]string{{"echo", "hi"}},
		Dimensions:           map[string]string{"os": "Linux"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
		ExpirationSecs:       3600,
	})
	require.NoError(t, err)

	token := signer.Issue("bot-1")
	res, err := svc.Poll(ctx, "bot-1", token, botpoll.State{
		Dimensions: map[string][]string{"os": {"Linux"}},
	})
	require.NoError(t, err)
	assert.Equal(t, botpoll.CommandRun, res.Command)
	require.NotNil(t, res.Reservation)
}

func TestTaskUpdateRejectsBadToken(t *testing.T) {
	svc, _ := newBotService(t)

	_, err := svc.TaskUpdate(context.Background(), "bot-1", "garbage", updatepipeline.Request{})
	assert.ErrorIs(t, err, services.ErrAuth)
}

func TestTaskErrorDeclaresBotDied(t *testing.T) {
	client := testdb.NewTestClient(t)
	signer, err := xsrf.NewSigner()
	require.NoError(t, err)
	svc := services.NewBotService(client.Client, signer, testPollConfig(), 64*1024)
	ctx := context.Background()

	_, err = taskqueue.Enqueue(ctx, client.Client, taskqueue.NewTaskSpec{
		Name:                 "flaky",
		User:                 "alice@example.com",
		Priority:             100,
		Commands:             [][]string{{"echo", "hi"}},
		Dimensions:           map[string]string{"os": "Linux"},
		ExecutionTimeoutSecs: 60,
		IOTimeoutSecs:        30,
		ExpirationSecs:       3600,
	})
	require.NoError(t, err)

	token := signer.Issue("bot-1")
	res, err := svc.Poll(ctx, "bot-1", token, botpoll.State{Dimensions: map[string][]string{"os": {"Linux"}}})
	require.NoError(t, err)
	require.NotNil(t, res.Reservation)

	err = svc.TaskError(ctx, "bot-1", token, res.Reservation.RunResult.ID, "bot is shutting down")
	require.NoError(t, err)

	summary, err := client.TaskResultSummary.Get(ctx, res.Reservation.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, "BOT_DIED", string(summary.State), "a bot giving up on a task is BOT_DIED, not COMPLETED")
}

func TestBotErrorRejectsBadToken(t *testing.T) {
	svc, _ := newBotService(t)

	err := svc.BotError(context.Background(), "bot-1", "garbage", "disk full")
	assert.ErrorIs(t, err, services.ErrAuth)
}
