// Package botpoll implements the bot poll protocol (spec.md §4.8): a single
// poll(dimensions, state, version) call that returns one of a fixed set of
// commands, plus the backoff and quarantine bookkeeping that decides which
// command a given poll gets.
package botpoll

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/internal/matcher"
	"github.com/luci/swarmsched/internal/reservation"
	"github.com/luci/swarmsched/internal/swarmerr"
)

// Command names returned to the bot.
const (
	CommandRun       = "run"
	CommandSleep     = "sleep"
	CommandUpdate    = "update"
	CommandRestart   = "restart"
	CommandTerminate = "terminate"
)

// Config carries the tunables that shape poll responses.
type Config struct {
	BotVersion    string
	RestartAfter  time.Duration
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MatcherFanout int
	MaxPowerset   int
}

// State is what the bot reports about itself on each poll.
type State struct {
	BotID       string
	Dimensions  map[string][]string
	Version     string
	Uptime      time.Duration
	Quarantined bool
	SleepStreak int
	TerminateID string
}

// Response is what the server tells the bot to do next.
type Response struct {
	Command     string
	Reservation *reservation.Reservation
	SleepFor    time.Duration
	Message     string
	TaskID      string
	SleepStreak int
}

// Poll evaluates one bot_poll_task call. It never returns an error for
// conditions the protocol itself handles (no match, quarantine) — those
// produce a sleep Response. It returns an error only for unexpected
// datastore failures.
func Poll(ctx context.Context, client *ent.Client, cfg Config, st State) (*Response, error) {
	if st.TerminateID != "" {
		return &Response{Command: CommandTerminate, TaskID: st.TerminateID}, nil
	}

	if cfg.BotVersion != "" && st.Version != cfg.BotVersion {
		return &Response{Command: CommandUpdate, Message: cfg.BotVersion}, nil
	}

	if cfg.RestartAfter > 0 && st.Uptime >= cfg.RestartAfter {
		return &Response{Command: CommandRestart, Message: "bot has exceeded its maximum uptime"}, nil
	}

	if st.Quarantined {
		return sleepResponse(cfg, st.SleepStreak), nil
	}

	res, err := reservation.Reap(ctx, client, st.BotID, st.Dimensions, cfg.MatcherFanout, cfg.MaxPowerset)
	if err != nil {
		if isNoWork(err) {
			return sleepResponse(cfg, st.SleepStreak), nil
		}
		return nil, err
	}

	return &Response{Command: CommandRun, Reservation: res}, nil
}

func isNoWork(err error) bool {
	return errors.Is(err, swarmerr.ErrUnavailable) || errors.Is(err, matcher.ErrTooManyDimensions)
}

// sleepResponse computes the backoff duration for the next poll:
// min(MaxBackoff, BaseBackoff*2^streak) plus a random jitter of up to a
// quarter of that value (spec.md §4.8). A
// sleep response increments the bot's streak; any non-sleep command resets
// it to 0 (the caller is responsible for persisting the streak between
// polls — this package is stateless across calls).
func sleepResponse(cfg Config, streak int) *Response {
	base := cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	max := cfg.MaxBackoff
	if max <= 0 {
		max = 60 * time.Second
	}

	backoff := base * time.Duration(1<<uint(minInt(streak, 16)))
	if backoff > max || backoff <= 0 {
		backoff = max
	}

	jitter := time.Duration(rand.Int64N(int64(backoff)/4 + 1))
	return &Response{
		Command:     CommandSleep,
		SleepFor:    backoff + jitter,
		SleepStreak: streak + 1,
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
