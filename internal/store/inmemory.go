package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemory keeps every entity in process memory. It backs tests and the
// one-shot CLI when no database path is configured.
type InMemory struct {
	mu        sync.RWMutex
	tasks     map[string]Task
	reminders map[string]Reminder
	messages  []Message
	now       func() time.Time
}

var (
	_ TaskStore     = inMemoryTasks{}
	_ ReminderStore = inMemoryReminders{}
	_ MessageStore  = (*InMemory)(nil)
)

// NewInMemory returns an empty store. A nil clock uses time.Now.
func NewInMemory(now func() time.Time) *InMemory {
	if now == nil {
		now = time.Now
	}
	return &InMemory{
		tasks:     make(map[string]Task),
		reminders: make(map[string]Reminder),
		now:       now,
	}
}

// Tasks returns the task view of the store.
func (s *InMemory) Tasks() TaskStore { return inMemoryTasks{s} }

// Reminders returns the reminder view of the store.
func (s *InMemory) Reminders() ReminderStore { return inMemoryReminders{s} }

// Messages returns the message view of the store.
func (s *InMemory) Messages() MessageStore { return s }

// inMemoryTasks and inMemoryReminders exist because both interfaces name
// their methods Get/List/Add.
type inMemoryTasks struct{ s *InMemory }
type inMemoryReminders struct{ s *InMemory }

func (v inMemoryTasks) Get(_ context.Context, id string) (Task, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	t, ok := v.s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (v inMemoryTasks) List(_ context.Context) ([]Task, error) {
	return v.s.filterTasks(func(Task) bool { return true }, func(ts []Task) {
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].CreatedAt.Before(ts[j].CreatedAt) })
	}), nil
}

func (v inMemoryTasks) ListActive(_ context.Context) ([]Task, error) {
	return v.s.filterTasks(func(t Task) bool { return !t.Completed }, sortActiveTasks), nil
}

func (v inMemoryTasks) ListCompleted(_ context.Context) ([]Task, error) {
	return v.s.filterTasks(func(t Task) bool { return t.Completed }, sortCompletedTasks), nil
}

func (v inMemoryTasks) ListDueToday(_ context.Context) ([]Task, error) {
	start, end := dayBounds(v.s.now())
	return v.s.filterTasks(func(t Task) bool {
		return !t.Completed && t.DueDate != nil && !t.DueDate.Before(start) && t.DueDate.Before(end)
	}, func(ts []Task) {
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].DueDate.Before(*ts[j].DueDate) })
	}), nil
}

func (v inMemoryTasks) Add(_ context.Context, t Task) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, exists := v.s.tasks[t.ID]; exists {
		return fmt.Errorf("%w: task %s already exists", ErrStorage, t.ID)
	}
	v.s.tasks[t.ID] = t
	return nil
}

func (v inMemoryTasks) Update(_ context.Context, t Task) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	v.s.tasks[t.ID] = t
	return nil
}

func (v inMemoryTasks) Delete(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	delete(v.s.tasks, id)
	return nil
}

func (s *InMemory) filterTasks(keep func(Task) bool, order func([]Task)) []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	// Map iteration is random; settle ties by creation before the real order.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	order(out)
	return out
}

func (v inMemoryReminders) Get(_ context.Context, id string) (Reminder, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	r, ok := v.s.reminders[id]
	if !ok {
		return Reminder{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (v inMemoryReminders) List(_ context.Context) ([]Reminder, error) {
	return v.s.filterReminders(func(Reminder) bool { return true }), nil
}

func (v inMemoryReminders) ListActive(_ context.Context) ([]Reminder, error) {
	return v.s.filterReminders(func(r Reminder) bool { return !r.Completed }), nil
}

func (v inMemoryReminders) ListDue(_ context.Context) ([]Reminder, error) {
	now := v.s.now()
	return v.s.filterReminders(func(r Reminder) bool {
		return !r.Completed && !r.RemindAt.After(now)
	}), nil
}

func (v inMemoryReminders) Add(_ context.Context, r Reminder) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, exists := v.s.reminders[r.ID]; exists {
		return fmt.Errorf("%w: reminder %s already exists", ErrStorage, r.ID)
	}
	v.s.reminders[r.ID] = r
	return nil
}

func (v inMemoryReminders) Update(_ context.Context, r Reminder) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.reminders[r.ID]; !ok {
		return fmt.Errorf("reminder %s: %w", r.ID, ErrNotFound)
	}
	v.s.reminders[r.ID] = r
	return nil
}

func (v inMemoryReminders) Delete(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.reminders[id]; !ok {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	delete(v.s.reminders, id)
	return nil
}

// filterReminders returns matches ordered by RemindAt.
func (s *InMemory) filterReminders(keep func(Reminder) bool) []Reminder {
	s.mu.RLock()
	out := make([]Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].RemindAt.Before(out[j].RemindAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Add appends a chat message.
func (s *InMemory) Add(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

// ListBySession returns the session's messages oldest first.
func (s *InMemory) ListBySession(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListRecent returns up to n messages, newest first.
func (s *InMemory) ListRecent(_ context.Context, n int) ([]Message, error) {
	s.mu.RLock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	s.mu.RUnlock()

	// Reverse insertion order first so equal timestamps keep newest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
