package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reminderExtractPrompt = `Извлеки из сообщения пользователя параметры напоминания и верни строго JSON:
{"title": "о чём напомнить", "remindAt": "ISO дата и время", "recurrence": "none|daily|weekly|monthly"}
Относительное время ("через час", "завтра") считай от текущего момента: %s (UTC).`

type reminderIntent int

const (
	reminderCreate reminderIntent = iota
	reminderListActive
	reminderListDue
	reminderComplete
)

// ReminderAgent manages reminders the same way TaskAgent manages tasks.
type ReminderAgent struct {
	base
	reminders store.ReminderStore
	llm       llm.Completion
}

var _ Agent = (*ReminderAgent)(nil)

// NewReminderAgent creates a reminder agent.
func NewReminderAgent(reminders store.ReminderStore, completion llm.Completion, opts ...Option) *ReminderAgent {
	return &ReminderAgent{base: newBase("reminder", opts), reminders: reminders, llm: completion}
}

// Label returns Reminder.
func (a *ReminderAgent) Label() Label { return Reminder }

// CanHandle reports whether the input mentions reminders.
func (a *ReminderAgent) CanHandle(input string) bool {
	return containsAny(strings.ToLower(input), "напомн", "напомин", "remind", "будильник")
}

// Execute runs the sub-command selected by keywords.
func (a *ReminderAgent) Execute(ctx context.Context, input string, _ RoutingContext) (string, error) {
	switch classifyReminderIntent(input) {
	case reminderCreate:
		return a.create(ctx, input)
	case reminderListDue:
		return a.listDue(ctx)
	case reminderComplete:
		return a.complete(ctx, input)
	default:
		return a.listActive(ctx)
	}
}

func classifyReminderIntent(input string) reminderIntent {
	s := strings.ToLower(input)
	switch {
	case containsAny(s, "напомни", "создай", "добавь", "remind me"):
		return reminderCreate
	case containsAny(s, "список", "покажи", "какие", "list", "show"):
		if containsAny(s, "сейчас", "просрочен", "due") {
			return reminderListDue
		}
		return reminderListActive
	case containsAny(s, "сейчас", "просрочен", "due"):
		return reminderListDue
	case containsAny(s, "выполн", "готово", "отмени", "done"):
		return reminderComplete
	default:
		return reminderListActive
	}
}

func (a *ReminderAgent) create(ctx context.Context, input string) (string, error) {
	now := a.now().UTC()
	raw, err := a.llm.Complete(ctx, input, fmt.Sprintf(reminderExtractPrompt, now.Format("2006-01-02T15:04:05Z07:00")))
	if err != nil {
		return "", fmt.Errorf("extracting reminder: %w", err)
	}

	draft, ok := parseReminderDraft(raw)
	if !ok {
		return "Не удалось понять напоминание. Попробуйте: 'напомни [что] [когда]'", nil
	}

	r := store.Reminder{
		ID:                uuid.NewString(),
		Title:             draft.Title,
		RemindAt:          draft.RemindAt,
		Recurring:         draft.Recurrence != "",
		RecurrencePattern: draft.Recurrence,
		CreatedAt:         now,
	}
	if err := a.reminders.Add(ctx, r); err != nil {
		return "", fmt.Errorf("saving reminder: %w", err)
	}
	a.logger.Info("reminder created", zap.String("reminder_id", r.ID), zap.Time("remind_at", r.RemindAt))

	reply := fmt.Sprintf("⏰ Напоминание создано: '%s' на %s", r.Title, r.RemindAt.Format(dateTimeLayout))
	if r.Recurring {
		reply += fmt.Sprintf(" (повтор: %s)", recurrenceName(r.RecurrencePattern))
	}
	return reply, nil
}

func (a *ReminderAgent) listActive(ctx context.Context) (string, error) {
	reminders, err := a.reminders.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("listing active reminders: %w", err)
	}
	if len(reminders) == 0 {
		return "У вас нет активных напоминаний.", nil
	}
	return formatReminders("⏰ **Активные напоминания:**", reminders), nil
}

func (a *ReminderAgent) listDue(ctx context.Context) (string, error) {
	reminders, err := a.reminders.ListDue(ctx)
	if err != nil {
		return "", fmt.Errorf("listing due reminders: %w", err)
	}
	if len(reminders) == 0 {
		return "Сейчас напоминаний нет.", nil
	}
	return formatReminders("🔔 **Пора:**", reminders), nil
}

func (a *ReminderAgent) complete(ctx context.Context, input string) (string, error) {
	reminders, err := a.reminders.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("listing active reminders: %w", err)
	}
	if len(reminders) == 0 {
		return "Нет активных напоминаний.", nil
	}

	target := reminders[0]
	lower := strings.ToLower(input)
	for _, r := range reminders {
		title := strings.ToLower(strings.TrimSpace(r.Title))
		if title != "" && strings.Contains(lower, title) {
			target = r
			break
		}
	}

	target.Completed = true
	if err := a.reminders.Update(ctx, target); err != nil {
		return "", fmt.Errorf("completing reminder: %w", err)
	}
	return fmt.Sprintf("✅ Напоминание выполнено: '%s'", target.Title), nil
}

func formatReminders(header string, reminders []store.Reminder) string {
	var b strings.Builder
	b.WriteString(header)
	for _, r := range reminders {
		fmt.Fprintf(&b, "\n• %s (%s)", r.Title, r.RemindAt.Format(dateTimeLayout))
		if r.Recurring {
			b.WriteString(" 🔁")
		}
	}
	return b.String()
}

func recurrenceName(pattern string) string {
	switch pattern {
	case "daily":
		return "ежедневно"
	case "weekly":
		return "еженедельно"
	case "monthly":
		return "ежемесячно"
	default:
		return pattern
	}
}
