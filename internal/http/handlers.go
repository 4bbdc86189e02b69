package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/logging"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	ctx := logging.WithSessionID(c.Request().Context(), req.SessionID)
	reply, err := s.deps.Chat.Send(ctx, req.Message, req.SessionID)
	if err != nil {
		return err
	}
	s.logger.Trace(logging.WithSessionID(ctx, reply.SessionID), "chat turn",
		zap.Int("message_len", len(req.Message)),
		zap.Int("reply_len", len(reply.Message)),
	)
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleHistory(c echo.Context) error {
	msgs, err := s.deps.Chat.History(c.Request().Context(), c.QueryParam("session_id"))
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// Tasks

func (s *Server) listTasks(c echo.Context) error {
	ts, err := s.deps.Tasks.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskList(ts))
}

func (s *Server) listActiveTasks(c echo.Context) error {
	ts, err := s.deps.Tasks.ListActive(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskList(ts))
}

func (s *Server) listCompletedTasks(c echo.Context) error {
	ts, err := s.deps.Tasks.ListCompleted(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskList(ts))
}

func (s *Server) getTask(c echo.Context) error {
	t, err := s.deps.Tasks.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) createTask(c echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return badRequest("title is required")
	}
	priority := store.PriorityMedium
	if req.Priority != 0 {
		priority = store.Priority(req.Priority)
		if !priority.Valid() {
			return badRequest("priority must be 1, 2 or 3")
		}
	}

	t := store.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Priority:    priority,
		CreatedAt:   s.now().UTC(),
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		t.DueDate = &due
	}
	if err := s.deps.Tasks.Add(c.Request().Context(), t); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/tasks/"+t.ID)
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTask(c echo.Context) error {
	var req UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	ctx := c.Request().Context()
	t, err := s.deps.Tasks.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return badRequest("title cannot be empty")
		}
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		p := store.Priority(*req.Priority)
		if !p.Valid() {
			return badRequest("priority must be 1, 2 or 3")
		}
		t.Priority = p
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		t.DueDate = &due
	}
	if req.Completed != nil {
		if *req.Completed {
			t.Complete(s.now())
		} else {
			t.Completed = false
		}
	}

	if err := s.deps.Tasks.Update(ctx, t); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteTask(c echo.Context) error {
	if err := s.deps.Tasks.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Reminders

func (s *Server) listReminders(c echo.Context) error {
	rs, err := s.deps.Reminders.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reminderList(rs))
}

func (s *Server) listActiveReminders(c echo.Context) error {
	rs, err := s.deps.Reminders.ListActive(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reminderList(rs))
}

func (s *Server) listCompletedReminders(c echo.Context) error {
	all, err := s.deps.Reminders.List(c.Request().Context())
	if err != nil {
		return err
	}
	done := make([]store.Reminder, 0, len(all))
	for _, r := range all {
		if r.Completed {
			done = append(done, r)
		}
	}
	return c.JSON(http.StatusOK, done)
}

func (s *Server) getReminder(c echo.Context) error {
	r, err := s.deps.Reminders.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) createReminder(c echo.Context) error {
	var req CreateReminderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return badRequest("title is required")
	}
	if req.RemindAt.IsZero() {
		return badRequest("remind_at is required")
	}

	r := store.Reminder{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		RemindAt:  req.RemindAt.UTC(),
		Recurring: req.Recurring,
		CreatedAt: s.now().UTC(),
	}
	if r.Recurring {
		r.RecurrencePattern = agent.NormalizeRecurrence(req.RecurrencePattern)
		if r.RecurrencePattern == "" {
			return badRequest("recurrence_pattern must be daily, weekly or monthly")
		}
	}
	if err := s.deps.Reminders.Add(c.Request().Context(), r); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/reminders/"+r.ID)
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) updateReminder(c echo.Context) error {
	var req UpdateReminderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	ctx := c.Request().Context()
	r, err := s.deps.Reminders.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return badRequest("title cannot be empty")
		}
		r.Title = strings.TrimSpace(*req.Title)
	}
	if req.RemindAt != nil {
		r.RemindAt = req.RemindAt.UTC()
	}
	if req.Completed != nil {
		r.Completed = *req.Completed
	}

	if err := s.deps.Reminders.Update(ctx, r); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteReminder(c echo.Context) error {
	if err := s.deps.Reminders.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Memories

func (s *Server) storeMemory(c echo.Context) error {
	var req StoreMemoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	meta := map[string]string{"source": "api"}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	rec, err := s.deps.Memories.Remember(c.Request().Context(), req.Content, meta)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toMemoryResponse(rec, 0))
}

func (s *Server) searchMemories(c echo.Context) error {
	limit := defaultSearchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest("limit must be a positive integer")
		}
		limit = min(n, maxSearchLimit)
	}
	results, err := s.deps.Memories.Recall(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	out := make([]MemoryResponse, len(results))
	for i, r := range results {
		out[i] = toMemoryResponse(r.Record, r.Score)
	}
	return c.JSON(http.StatusOK, out)
}
