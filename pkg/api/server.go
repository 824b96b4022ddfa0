// Package api provides the HTTP surface for swarmsched: the client-facing
// task submission/query endpoints and the bot-facing poll/update protocol
// (spec.md §6).
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/luci/swarmsched/internal/sweeper"
	"github.com/luci/swarmsched/pkg/database"
	"github.com/luci/swarmsched/pkg/services"
	"github.com/luci/swarmsched/pkg/version"
)

// Server is the HTTP API server for both REST surfaces.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	dbClient    *database.Client
	taskService *services.TaskService
	botService  *services.BotService
	sweeper     *sweeper.Sweeper // nil if background sweeping is disabled
	chunkSize   int              // mirrors SchedulerConfig.ChunkSize, for byte-offset-to-chunk-index math
}

// NewServer builds a Server and registers its routes. chunkSize must match
// the value services.NewBotService was given (which the update pipeline uses
// for its per-chunk size limit and byte_offset), so a bot's
// output_chunk_start byte offset maps to the same chunk index the update
// pipeline assigns it.
func NewServer(dbClient *database.Client, taskService *services.TaskService, botService *services.BotService, bodyLimit int64, chunkSize int) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		dbClient:    dbClient,
		taskService: taskService,
		botService:  botService,
		chunkSize:   chunkSize,
	}

	if bodyLimit <= 0 {
		bodyLimit = 10 * 1024 * 1024
	}
	s.echo.Use(middleware.BodyLimit(bodyLimit))

	s.setupRoutes()
	return s
}

// SetSweeper wires the background sweeper in so the health endpoint can
// report whether one is configured.
func (s *Server) SetSweeper(sw *sweeper.Sweeper) {
	s.sweeper = sw
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/tasks/new", s.newTaskHandler)
	s.echo.POST("/tasks/cancel", s.cancelTaskHandler)
	s.echo.GET("/tasks/list", s.listTasksHandler)
	s.echo.GET("/task/:id", s.getTaskHandler)
	s.echo.GET("/task/:id/request", s.getTaskRequestHandler)
	s.echo.GET("/task/:id/output/:cmd_index", s.getTaskOutputHandler)
	s.echo.GET("/task/:id/output/all", s.getTaskOutputAllHandler)

	s.echo.POST("/bot/handshake", s.botHandshakeHandler)
	s.echo.POST("/bot/poll", s.botPollHandler)
	s.echo.POST("/bot/task_update", s.botTaskUpdateHandler)
	s.echo.POST("/bot/task_update/:task_id", s.botTaskUpdateHandler)
	s.echo.POST("/bot/task_error", s.botTaskErrorHandler)
	s.echo.POST("/bot/task_error/:task_id", s.botTaskErrorHandler)
	s.echo.POST("/bot/error", s.botErrorHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		status = "unhealthy"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:       status,
		Version:      version.Full(),
		Database:     dbHealth,
		SweeperAlive: s.sweeper != nil,
	})
}
