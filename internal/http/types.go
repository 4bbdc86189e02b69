package http

import (
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/fyrsmithlabs/assistantd/internal/telemetry"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest is the body of PUT /api/tasks/:id. Nil fields are kept.
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"is_completed,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// CreateReminderRequest is the body of POST /api/reminders.
type CreateReminderRequest struct {
	Title             string    `json:"title"`
	RemindAt          time.Time `json:"remind_at"`
	Recurring         bool      `json:"is_recurring,omitempty"`
	RecurrencePattern string    `json:"recurrence_pattern,omitempty"`
}

// UpdateReminderRequest is the body of PUT /api/reminders/:id.
type UpdateReminderRequest struct {
	Title     *string    `json:"title,omitempty"`
	RemindAt  *time.Time `json:"remind_at,omitempty"`
	Completed *bool      `json:"is_completed,omitempty"`
}

// StoreMemoryRequest is the body of POST /api/memories.
type StoreMemoryRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MemoryResponse omits the embedding.
type MemoryResponse struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Score     float64           `json:"score,omitempty"`
}

func toMemoryResponse(rec memory.Record, score float64) MemoryResponse {
	return MemoryResponse{
		ID:        rec.ID,
		Content:   rec.Content,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
		Score:     score,
	}
}

// HealthResponse is the body of GET /health and /health/db.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Error   string                  `json:"error,omitempty"`
	Tracing *telemetry.HealthStatus `json:"tracing,omitempty"`
}

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
}

// taskList and reminderList encode empty results as [] rather than null.
func taskList(ts []store.Task) []store.Task {
	if ts == nil {
		return []store.Task{}
	}
	return ts
}

func reminderList(rs []store.Reminder) []store.Reminder {
	if rs == nil {
		return []store.Reminder{}
	}
	return rs
}
