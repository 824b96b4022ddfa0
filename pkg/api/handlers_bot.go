package api

import (
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/luci/swarmsched/internal/botpoll"
	"github.com/luci/swarmsched/internal/updatepipeline"
	"github.com/luci/swarmsched/pkg/models"
)

// botHandshakeHandler handles POST /bot/handshake (spec.md §6). The bot's
// own id is the value of its "id" dimension, not a separate field — see
// models.BotID.
func (s *Server) botHandshakeHandler(c *echo.Context) error {
	var body models.BotHandshakeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	result, err := s.botService.Handshake(c.Request().Context(), models.BotID(body.Dimensions))
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &models.BotHandshakeResponse{
		BotVersion:    result.BotVersion,
		ServerVersion: result.ServerVersion,
		XSRFToken:     result.XSRFToken,
	})
}

// botPollHandler handles POST /bot/poll. The handshake token travels in the
// X-XSRF-Token header, issued by the preceding /bot/handshake call.
func (s *Server) botPollHandler(c *echo.Context) error {
	var body models.BotPollRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	botID := models.BotID(body.Dimensions)
	if botID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dimensions.id is required")
	}

	resp, err := s.botService.Poll(c.Request().Context(), botID, c.Request().Header.Get(models.XSRFHeader), botpoll.State{
		Dimensions:  body.Dimensions,
		Version:     body.Version,
		Uptime:      time.Duration(body.State.Uptime) * time.Second,
		Quarantined: body.State.Quarantined,
		SleepStreak: body.State.SleepStreak,
		TerminateID: body.State.TerminateID,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, toPollResponse(resp))
}

func toPollResponse(resp *botpoll.Response) *models.BotPollResponse {
	out := &models.BotPollResponse{
		Command:   resp.Command,
		SleepSecs: resp.SleepFor.Seconds(),
		Message:   resp.Message,
		TaskID:    resp.TaskID,
	}
	if resp.Reservation != nil {
		req, run := resp.Reservation.Request, resp.Reservation.RunResult
		out.Manifest = &models.TaskManifest{
			TaskID:               resp.Reservation.Task.ID,
			RunResultID:          run.ID,
			Commands:             req.Commands,
			Dimensions:           req.Dimensions,
			Env:                  req.Env,
			ExecutionTimeoutSecs: req.ExecutionTimeoutSecs,
			IOTimeoutSecs:        req.IoTimeoutSecs,
		}
	}
	return out
}

// botTaskUpdateHandler handles POST /bot/task_update[/<task_id>].
func (s *Server) botTaskUpdateHandler(c *echo.Context) error {
	var body models.BotTaskUpdateRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if body.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	taskID := c.Param("task_id")
	if taskID == "" {
		taskID = body.TaskID
	}
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_id is required")
	}

	req := updatepipeline.Request{RunResultID: taskID}
	if body.Output != "" {
		chunkSize := s.chunkSize
		if chunkSize <= 0 {
			chunkSize = 1
		}
		req.OutputChunks = splitOutputChunks(body.CommandIndex, body.OutputChunkStart, []byte(body.Output), chunkSize)
	}
	if body.ExitCode != nil {
		req.ExitCodes = map[int]int{body.CommandIndex: *body.ExitCode}
		req.Finished = true
		req.Failure = *body.ExitCode != 0
	}

	token := c.Request().Header.Get(models.XSRFHeader)
	if _, err := s.botService.TaskUpdate(c.Request().Context(), body.ID, token, req); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &models.BotTaskUpdateResponse{OK: true})
}

// splitOutputChunks slices data, which starts at the byte offset start in a
// command's output stream, into ChunkSize-aligned pieces: a single
// task_update call may span more than one stored TaskOutputChunk row
// (spec.md §4.6), so a bot reporting more than one chunk's worth of output
// in a single call must have it broken up here rather than rejected.
func splitOutputChunks(commandIndex, start int, data []byte, chunkSize int) []updatepipeline.OutputChunkWrite {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	var chunks []updatepipeline.OutputChunkWrite
	pos := start
	for len(data) > 0 {
		offsetInChunk := pos % chunkSize
		room := chunkSize - offsetInChunk
		if room > len(data) {
			room = len(data)
		}
		chunks = append(chunks, updatepipeline.OutputChunkWrite{
			CommandIndex: commandIndex,
			ChunkIndex:   pos / chunkSize,
			Data:         data[:room],
		})
		data = data[room:]
		pos += room
	}
	return chunks
}

// botTaskErrorHandler handles POST /bot/task_error[/<task_id>].
func (s *Server) botTaskErrorHandler(c *echo.Context) error {
	var body models.BotTaskErrorRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if body.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	taskID := c.Param("task_id")
	if taskID == "" {
		taskID = body.TaskID
	}
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_id is required")
	}

	token := c.Request().Header.Get(models.XSRFHeader)
	if err := s.botService.TaskError(c.Request().Context(), body.ID, token, taskID, body.Message); err != nil {
		return mapServiceError(err)
	}
	slog.Warn("bot reported task error", "bot_id", body.ID, "task_id", taskID, "message", body.Message)

	return c.JSON(http.StatusOK, &models.BotTaskUpdateResponse{OK: true})
}

// botErrorHandler handles POST /bot/error: a bot-wide error, not tied to one
// task. The message is logged; the server keeps no quarantine state for the
// bot, which is treated as quarantined only when it reports itself so on a
// later poll.
func (s *Server) botErrorHandler(c *echo.Context) error {
	var body models.BotErrorRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if body.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	token := c.Request().Header.Get(models.XSRFHeader)
	if err := s.botService.BotError(c.Request().Context(), body.ID, token, body.Message); err != nil {
		return mapServiceError(err)
	}
	slog.Warn("bot reported error", "bot_id", body.ID, "message", body.Message)

	return c.JSON(http.StatusOK, &models.BotTaskUpdateResponse{OK: true})
}
