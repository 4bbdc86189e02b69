package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps backend failures.
	ErrStorage = errors.New("storage failure")
)

// TaskStore persists tasks.
type TaskStore interface {
	Get(ctx context.Context, id string) (Task, error)
	List(ctx context.Context) ([]Task, error)
	// ListActive orders by due date (undated last), then priority value.
	ListActive(ctx context.Context) ([]Task, error)
	// ListCompleted orders by completion time, newest first.
	ListCompleted(ctx context.Context) ([]Task, error)
	// ListDueToday returns open tasks due within the current UTC day.
	ListDueToday(ctx context.Context) ([]Task, error)
	Add(ctx context.Context, t Task) error
	Update(ctx context.Context, t Task) error
	Delete(ctx context.Context, id string) error
}

// ReminderStore persists reminders.
type ReminderStore interface {
	Get(ctx context.Context, id string) (Reminder, error)
	List(ctx context.Context) ([]Reminder, error)
	// ListActive orders open reminders by RemindAt.
	ListActive(ctx context.Context) ([]Reminder, error)
	// ListDue returns open reminders with RemindAt <= now.
	ListDue(ctx context.Context) ([]Reminder, error)
	Add(ctx context.Context, r Reminder) error
	Update(ctx context.Context, r Reminder) error
	Delete(ctx context.Context, id string) error
}

// MessageStore persists chat history.
type MessageStore interface {
	Add(ctx context.Context, m Message) error
	// ListBySession returns a session's messages oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]Message, error)
	// ListRecent returns the newest n messages, newest first.
	ListRecent(ctx context.Context, n int) ([]Message, error)
}

// dayBounds returns [start of UTC day, start of next UTC day).
func dayBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func sortActiveTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case a == nil && b != nil:
			return false
		case a != nil && b == nil:
			return true
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return tasks[i].Priority < tasks[j].Priority
	})
}

func sortCompletedTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].CompletedAt, tasks[j].CompletedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}
