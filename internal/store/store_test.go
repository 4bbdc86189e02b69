package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

type backend struct {
	tasks     store.TaskStore
	reminders store.ReminderStore
	messages  store.MessageStore
}

func backends(t *testing.T) map[string]backend {
	t.Helper()
	clock := func() time.Time { return now }

	mem := store.NewInMemory(clock)

	db, err := store.OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetClock(clock)

	return map[string]backend{
		"inmemory": {mem.Tasks(), mem.Reminders(), mem.Messages()},
		"sqlite":   {db.Tasks(), db.Reminders(), db.Messages()},
	}
}

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func titles(tasks []store.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestTaskStore(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []store.Task{
				{ID: "1", Title: "undated high", Priority: store.PriorityHigh, CreatedAt: now.Add(-5 * time.Hour)},
				{ID: "2", Title: "tomorrow", Priority: store.PriorityMedium, DueDate: at(24 * time.Hour), CreatedAt: now.Add(-4 * time.Hour)},
				{ID: "3", Title: "today high", Priority: store.PriorityHigh, DueDate: at(2 * time.Hour), CreatedAt: now.Add(-3 * time.Hour)},
				{ID: "4", Title: "today low", Priority: store.PriorityLow, DueDate: at(2 * time.Hour), CreatedAt: now.Add(-2 * time.Hour)},
				{ID: "5", Title: "undated low", Priority: store.PriorityLow, CreatedAt: now.Add(-1 * time.Hour)},
				{ID: "6", Title: "yesterday", Priority: store.PriorityMedium, DueDate: at(-20 * time.Hour), CreatedAt: now.Add(-6 * time.Hour)},
			}
			for _, task := range seed {
				require.NoError(t, b.tasks.Add(ctx, task))
			}

			active, err := b.tasks.ListActive(ctx)
			require.NoError(t, err)
			assert.Equal(t,
				[]string{"yesterday", "today low", "today high", "tomorrow", "undated low", "undated high"},
				titles(active),
			)

			today, err := b.tasks.ListDueToday(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"today high", "today low"}, titles(today))

			first, err := b.tasks.Get(ctx, "3")
			require.NoError(t, err)
			first.Complete(now)
			require.NoError(t, b.tasks.Update(ctx, first))

			second, err := b.tasks.Get(ctx, "1")
			require.NoError(t, err)
			second.Complete(now.Add(time.Minute))
			require.NoError(t, b.tasks.Update(ctx, second))

			completed, err := b.tasks.ListCompleted(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"undated high", "today high"}, titles(completed))

			today, err = b.tasks.ListDueToday(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"today low"}, titles(today))

			got, err := b.tasks.Get(ctx, "3")
			require.NoError(t, err)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, got.CompletedAt.Equal(now))

			require.NoError(t, b.tasks.Delete(ctx, "6"))
			_, err = b.tasks.Get(ctx, "6")
			assert.ErrorIs(t, err, store.ErrNotFound)
			assert.ErrorIs(t, b.tasks.Delete(ctx, "6"), store.ErrNotFound)
			assert.ErrorIs(t, b.tasks.Update(ctx, store.Task{ID: "missing"}), store.ErrNotFound)

			all, err := b.tasks.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 5)
		})
	}
}

func TestTaskStore_RoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := store.Task{
				ID:          "rt",
				Title:       "round trip",
				Description: "все поля",
				Priority:    store.PriorityLow,
				DueDate:     at(48 * time.Hour),
				CreatedAt:   now,
			}
			require.NoError(t, b.tasks.Add(ctx, want))

			got, err := b.tasks.Get(ctx, "rt")
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("task mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReminderStore(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []store.Reminder{
				{ID: "later", Title: "later", RemindAt: now.Add(time.Hour), CreatedAt: now},
				{ID: "past", Title: "past", RemindAt: now.Add(-time.Hour), CreatedAt: now},
				{ID: "exact", Title: "exact", RemindAt: now, Recurring: true, RecurrencePattern: "daily", CreatedAt: now},
				{ID: "done", Title: "done", RemindAt: now.Add(-2 * time.Hour), Completed: true, CreatedAt: now},
			}
			for _, r := range seed {
				require.NoError(t, b.reminders.Add(ctx, r))
			}

			active, err := b.reminders.ListActive(ctx)
			require.NoError(t, err)
			ids := make([]string, len(active))
			for i, r := range active {
				ids[i] = r.ID
			}
			assert.Equal(t, []string{"past", "exact", "later"}, ids)

			due, err := b.reminders.ListDue(ctx)
			require.NoError(t, err)
			require.Len(t, due, 2)
			assert.Equal(t, "past", due[0].ID)
			assert.Equal(t, "exact", due[1].ID)
			assert.True(t, due[1].Recurring)
			assert.Equal(t, "daily", due[1].RecurrencePattern)

			r, err := b.reminders.Get(ctx, "past")
			require.NoError(t, err)
			r.Completed = true
			require.NoError(t, b.reminders.Update(ctx, r))

			due, err = b.reminders.ListDue(ctx)
			require.NoError(t, err)
			assert.Len(t, due, 1)

			require.NoError(t, b.reminders.Delete(ctx, "later"))
			_, err = b.reminders.Get(ctx, "later")
			assert.ErrorIs(t, err, store.ErrNotFound)

			all, err := b.reminders.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestMessageStore(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msgs := []store.Message{
				{ID: "m1", Role: store.RoleUser, Content: "привет", SessionID: "s1", CreatedAt: now},
				{ID: "m2", Role: store.RoleAssistant, Content: "здравствуйте", SessionID: "s1", CreatedAt: now.Add(time.Second)},
				{ID: "m3", Role: store.RoleUser, Content: "other", SessionID: "s2", CreatedAt: now.Add(2 * time.Second)},
			}
			for _, m := range msgs {
				require.NoError(t, b.messages.Add(ctx, m))
			}

			session, err := b.messages.ListBySession(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, session, 2)
			assert.Equal(t, "m1", session[0].ID)
			assert.Equal(t, store.RoleAssistant, session[1].Role)

			recent, err := b.messages.ListRecent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "m3", recent[0].ID)
			assert.Equal(t, "m2", recent[1].ID)

			none, err := b.messages.ListBySession(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestSQLiteRecords(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping(ctx))

	ix, err := memory.NewIndex(db.Records(), memory.Config{Dimension: 2}, nil)
	require.NoError(t, err)

	_, err = ix.Store(ctx, "про REST API", []float32{1, 0}, map[string]string{"session": "s1"})
	require.NoError(t, err)
	_, err = ix.Store(ctx, "про погоду", []float32{0, 1}, nil)
	require.NoError(t, err)
	_, err = ix.Store(ctx, "без вектора", nil, nil)
	require.NoError(t, err)

	all, err := db.Records().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := ix.SearchSimilar(ctx, []float32{0.9, 0.1}, 5)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "про REST API", found[0].Content)
	assert.Equal(t, "s1", found[0].Metadata["session"])
}

func TestPriority(t *testing.T) {
	assert.Equal(t, store.PriorityHigh, store.ParsePriority(" High "))
	assert.Equal(t, store.PriorityLow, store.ParsePriority("low"))
	assert.Equal(t, store.PriorityMedium, store.ParsePriority("urgent"))
	assert.Equal(t, "Medium", store.Priority(7).String())
	assert.False(t, store.Priority(0).Valid())
}

func TestTaskComplete_StampsOnce(t *testing.T) {
	task := store.Task{ID: "x"}
	task.Complete(now)
	task.Complete(now.Add(time.Hour))
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(now))
	assert.True(t, task.Completed)
}
