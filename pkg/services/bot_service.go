package services

import (
	"context"
	"errors"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/internal/botpoll"
	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/updatepipeline"
	"github.com/luci/swarmsched/internal/xsrf"
)

// ErrAuth is returned when a bot's handshake token is missing, stale, or
// does not match its bot_id.
var ErrAuth = errors.New("invalid or expired handshake token")

// BotService implements the bot-facing RPC surface: handshake, poll, and
// the update/error callbacks a bot makes while executing a task.
type BotService struct {
	client *ent.Client
	signer *xsrf.Signer
	poll   botpoll.Config
	chunk  int
}

// NewBotService builds a BotService. signer issues and verifies the
// handshake token every bot must carry; poll configures the poll protocol's
// backoff and quarantine tunables; chunkSize bounds a single output chunk.
func NewBotService(client *ent.Client, signer *xsrf.Signer, poll botpoll.Config, chunkSize int) *BotService {
	return &BotService{client: client, signer: signer, poll: poll, chunk: chunkSize}
}

// HandshakeResult is the response to a successful Handshake call.
type HandshakeResult struct {
	ServerVersion string
	BotVersion    string
	XSRFToken     string
}

// Handshake issues a fresh handshake token for botID. The original bot
// state (dimensions, quarantine flag) is accepted but not yet acted on: the
// first real decision happens on the following Poll call.
func (s *BotService) Handshake(_ context.Context, botID string) (*HandshakeResult, error) {
	if botID == "" {
		return nil, NewValidationError("bot_id", "required")
	}
	return &HandshakeResult{
		ServerVersion: s.poll.BotVersion,
		BotVersion:    s.poll.BotVersion,
		XSRFToken:     s.signer.Issue(botID),
	}, nil
}

// Poll evaluates one bot_poll_task call after verifying the bot's
// handshake token.
func (s *BotService) Poll(ctx context.Context, botID, token string, st botpoll.State) (*botpoll.Response, error) {
	if err := s.signer.Verify(botID, token); err != nil {
		return nil, ErrAuth
	}
	st.BotID = botID
	return botpoll.Poll(ctx, s.client, s.poll, st)
}

// TaskUpdate applies an incremental bot_update_task call after verifying
// the bot's handshake token.
func (s *BotService) TaskUpdate(ctx context.Context, botID, token string, req updatepipeline.Request) (*updatepipeline.Result, error) {
	if err := s.signer.Verify(botID, token); err != nil {
		return nil, ErrAuth
	}
	req.BotID = botID
	if req.ChunkSize <= 0 {
		req.ChunkSize = s.chunk
	}
	return updatepipeline.Update(ctx, s.client, req)
}

// TaskError reports that a bot can no longer continue a task it claimed:
// declares BOT_DIED for the task, the same terminal state the sweeper would
// otherwise apply after BotDeathTimeout (spec.md §4.7, §6), just reported
// early and by the bot itself rather than inferred from silence.
func (s *BotService) TaskError(ctx context.Context, botID, token, runResultID, message string) error {
	if err := s.signer.Verify(botID, token); err != nil {
		return ErrAuth
	}
	_, err := updatepipeline.Update(ctx, s.client, updatepipeline.Request{
		RunResultID: runResultID,
		BotID:       botID,
		Finished:    true,
		Failure:     true,
		FinalState:  lifecycle.BotDied,
	})
	if err != nil {
		return err
	}
	_ = message // surfaced to operators via logging at the API layer, not persisted
	return nil
}

// BotError reports a bot-wide failure unrelated to any single task; the API
// layer logs it and the bot is expected to report itself quarantined on its
// next poll rather than have the server track quarantine state itself.
func (s *BotService) BotError(_ context.Context, botID, token, message string) error {
	if err := s.signer.Verify(botID, token); err != nil {
		return ErrAuth
	}
	_ = botID
	_ = message
	return nil
}
