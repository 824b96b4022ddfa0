package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/luci/swarmsched/pkg/models"
	"github.com/luci/swarmsched/pkg/services"
)

// newTaskHandler handles POST /tasks/new (spec.md §6).
func (s *Server) newTaskHandler(c *echo.Context) error {
	var body models.NewTaskRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	req, err := s.taskService.NewTask(c.Request().Context(), services.NewTaskSpec{
		Name:                 body.Name,
		User:                 body.User,
		Priority:             body.Priority,
		Commands:             body.Commands,
		Data:                 body.Data,
		Dimensions:           body.Dimensions,
		Env:                  body.Env,
		ExecutionTimeoutSecs: body.ExecutionTimeoutSecs,
		IOTimeoutSecs:        body.IOTimeoutSecs,
		ExpirationSecs:       body.ExpirationSecs,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &models.NewTaskResponse{
		Request: req,
		TaskID:  req.ID,
	})
}

// cancelTaskHandler handles POST /tasks/cancel.
func (s *Server) cancelTaskHandler(c *echo.Context) error {
	var body models.CancelTaskRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if body.TaskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_id is required")
	}

	wasRunning, err := s.taskService.CancelTask(c.Request().Context(), body.TaskID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &models.CancelTaskResponse{OK: true, WasRunning: wasRunning})
}

// listTasksHandler handles GET /tasks/list.
func (s *Server) listTasksHandler(c *echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("cursor"))

	tasks, err := s.taskService.ListTasks(c.Request().Context(), services.TaskListFilters{
		Name:   c.QueryParam("name"),
		User:   c.QueryParam("user"),
		State:  c.QueryParam("state"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return mapServiceError(err)
	}

	resp := &models.TaskListResponse{Tasks: tasks}
	if len(tasks) > 0 && (limit <= 0 || len(tasks) == limit) {
		resp.NextCursor = strconv.Itoa(offset + len(tasks))
	}
	return c.JSON(http.StatusOK, resp)
}

// getTaskHandler handles GET /task/<id>.
func (s *Server) getTaskHandler(c *echo.Context) error {
	summary, err := s.taskService.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// getTaskRequestHandler handles GET /task/<id>/request.
func (s *Server) getTaskRequestHandler(c *echo.Context) error {
	req, err := s.taskService.GetTaskRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, req)
}

// getTaskOutputHandler handles GET /task/<id>/output/<cmd_index>.
func (s *Server) getTaskOutputHandler(c *echo.Context) error {
	cmdIndex, err := strconv.Atoi(c.Param("cmd_index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cmd_index must be an integer")
	}

	output, err := s.taskService.GetTaskOutput(c.Request().Context(), c.Param("id"), cmdIndex)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &models.TaskOutputResponse{Output: output})
}

// getTaskOutputAllHandler handles GET /task/<id>/output/all.
func (s *Server) getTaskOutputAllHandler(c *echo.Context) error {
	outputs, err := s.taskService.GetTaskOutputAll(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &models.TaskOutputAllResponse{Outputs: outputs})
}
