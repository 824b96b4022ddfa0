package models

// XSRFHeader is the HTTP header a bot must carry its handshake token in on
// every call after /bot/handshake, mirroring the header-based XSRF check the
// out-of-scope auth collaborator performs in the original implementation
// (spec.md §1 treats "an authenticated-identity check" as external).
const XSRFHeader = "X-XSRF-Token"

// BotID reports the bot's own identifier, which swarming bots advertise as
// the single value of the "id" dimension rather than a separate field — a
// bot's id is just another dimension a task can require, carried as a
// singleton set like every other dimension value.
func BotID(dimensions map[string][]string) string {
	ids := dimensions["id"]
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// BotHandshakeRequest is the body of POST /bot/handshake. Each dimension key
// maps to every value the bot satisfies for it (spec.md §4.3), e.g.
// os: ["Linux", "Ubuntu", "Ubuntu-20.04"] describing one capability
// hierarchy rather than one flat string.
type BotHandshakeRequest struct {
	Dimensions map[string][]string `json:"dimensions"`
	State      BotState            `json:"state"`
	Version    string              `json:"version"`
}

// BotHandshakeResponse is the body returned by POST /bot/handshake.
type BotHandshakeResponse struct {
	BotVersion    string `json:"bot_version"`
	ServerVersion string `json:"server_version"`
	XSRFToken     string `json:"xsrf_token"`
}

// BotState is the self-reported state a bot sends with every handshake and
// poll call.
type BotState struct {
	Quarantined bool   `json:"quarantined,omitempty"`
	SleepStreak int    `json:"sleep_streak,omitempty"`
	Uptime      int64  `json:"uptime_secs,omitempty"`
	TerminateID string `json:"terminate_id,omitempty"`
}

// BotPollRequest is the body of POST /bot/poll. The handshake token travels
// in the XSRFHeader, not the body. Dimensions uses the same set-valued shape
// as BotHandshakeRequest.
type BotPollRequest struct {
	Dimensions map[string][]string `json:"dimensions"`
	State      BotState            `json:"state"`
	Version    string              `json:"version"`
}

// TaskManifest is the payload of a "run" poll response: everything a bot
// needs to execute a task.
type TaskManifest struct {
	TaskID               string            `json:"task_id"`
	RunResultID          string            `json:"run_result_id"`
	Commands             [][]string        `json:"commands"`
	Dimensions           map[string]string `json:"dimensions"`
	Env                  map[string]string `json:"env,omitempty"`
	ExecutionTimeoutSecs int               `json:"execution_timeout_secs"`
	IOTimeoutSecs        int               `json:"io_timeout_secs"`
}

// BotPollResponse is the body returned by POST /bot/poll: the tagged-union
// command the bot is told to execute next (spec.md §4.8).
type BotPollResponse struct {
	Command   string        `json:"cmd"`
	Manifest  *TaskManifest `json:"manifest,omitempty"`
	SleepSecs float64       `json:"sleep_secs,omitempty"`
	Message   string        `json:"message,omitempty"`
	TaskID    string        `json:"task_id,omitempty"`
}

// BotTaskUpdateRequest is the body of POST /bot/task_update[/<task_id>]. Id
// is the bot's own id (spec.md §6 names the field "id", matching the
// original wire format where it is the caller's identity, not a token — the
// handshake token still travels in the XSRFHeader).
type BotTaskUpdateRequest struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	CommandIndex     int     `json:"command_index"`
	Output           string  `json:"output,omitempty"`
	OutputChunkStart int     `json:"output_chunk_start,omitempty"`
	ExitCode         *int    `json:"exit_code,omitempty"`
	DurationSecs     float64 `json:"duration,omitempty"`
	HardTimeout      bool    `json:"hard_timeout,omitempty"`
	IOTimeout        bool    `json:"io_timeout,omitempty"`
}

// BotTaskUpdateResponse is the body returned by a successful task_update.
type BotTaskUpdateResponse struct {
	OK bool `json:"ok"`
}

// BotTaskErrorRequest is the body of POST /bot/task_error[/<task_id>]: the
// bot reporting it can no longer continue a task it was running.
type BotTaskErrorRequest struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// BotErrorRequest is the body of POST /bot/error: a bot-wide error rather
// than one tied to a single task. The server logs it and records no
// quarantine state for the bot.
type BotErrorRequest struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}
