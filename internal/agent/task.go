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

const (
	dateLayout      = "02.01.2006"
	dateTimeLayout  = "02.01.2006 15:04"
	maxCompletedRow = 10
)

const taskExtractPrompt = `Извлеки из сообщения пользователя параметры задачи и верни строго JSON:
{"title": "название задачи", "priority": "Low|Medium|High", "dueDate": "ISO дата или null"}
Приоритет по умолчанию Medium. Если срок не указан, dueDate равен null.
Текущая дата: %s.`

type taskIntent int

const (
	taskCreate taskIntent = iota
	taskListActive
	taskListCompleted
	taskListToday
	taskComplete
)

// TaskAgent manages to-do items.
type TaskAgent struct {
	base
	tasks store.TaskStore
	llm   llm.Completion
}

var _ Agent = (*TaskAgent)(nil)

// NewTaskAgent creates a task agent.
func NewTaskAgent(tasks store.TaskStore, completion llm.Completion, opts ...Option) *TaskAgent {
	return &TaskAgent{base: newBase("task", opts), tasks: tasks, llm: completion}
}

// Label returns Task.
func (a *TaskAgent) Label() Label { return Task }

// CanHandle reports whether the input mentions tasks.
func (a *TaskAgent) CanHandle(input string) bool {
	return containsAny(strings.ToLower(input), "задач", "todo", "сделать", "выполнить", "список", "дела")
}

// Execute runs the sub-command selected by keywords.
func (a *TaskAgent) Execute(ctx context.Context, input string, _ RoutingContext) (string, error) {
	intent := classifyTaskIntent(input)
	a.logger.Debug("task intent", zap.Int("intent", int(intent)))

	switch intent {
	case taskCreate:
		return a.create(ctx, input)
	case taskListCompleted:
		return a.listCompleted(ctx)
	case taskListToday:
		return a.listToday(ctx)
	case taskComplete:
		return a.complete(ctx, input)
	default:
		return a.listActive(ctx)
	}
}

// classifyTaskIntent checks keyword groups in priority order.
func classifyTaskIntent(input string) taskIntent {
	s := strings.ToLower(input)
	switch {
	case containsAny(s, "добав", "созда", "новая задача", "add", "create", "new task"):
		return taskCreate
	case containsAny(s, "список", "покажи", "какие задачи", "list", "show", "which tasks"):
		if containsAny(s, "завершен", "выполнен", "completed", "done") {
			return taskListCompleted
		}
		return taskListActive
	case containsAny(s, "сегодня", "today"):
		return taskListToday
	case containsAny(s, "выполн", "завершить", "готово", "done", "complete", "finished"):
		return taskComplete
	default:
		return taskListActive
	}
}

func (a *TaskAgent) create(ctx context.Context, input string) (string, error) {
	now := a.now()
	raw, err := a.llm.Complete(ctx, input, fmt.Sprintf(taskExtractPrompt, now.UTC().Format("2006-01-02")))
	if err != nil {
		return "", fmt.Errorf("extracting task: %w", err)
	}

	draft, ok := parseTaskDraft(raw)
	if !ok {
		a.logger.Debug("no task title in model output", zap.Int("output_len", len(raw)))
		return "Не удалось понять название задачи. Попробуйте: 'добавь задачу [название]'", nil
	}

	task := store.Task{
		ID:        uuid.NewString(),
		Title:     draft.Title,
		Priority:  draft.Priority,
		DueDate:   draft.DueDate,
		CreatedAt: now.UTC(),
	}
	if err := a.tasks.Add(ctx, task); err != nil {
		return "", fmt.Errorf("saving task: %w", err)
	}
	a.logger.Info("task created", zap.String("task_id", task.ID), zap.String("priority", task.Priority.String()))

	reply := fmt.Sprintf("✅ Задача добавлена: '%s'", task.Title)
	if task.DueDate != nil {
		reply += fmt.Sprintf(" (срок: %s)", task.DueDate.Format(dateLayout))
	}
	return reply, nil
}

func (a *TaskAgent) listActive(ctx context.Context) (string, error) {
	tasks, err := a.tasks.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("listing active tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "У вас нет активных задач! 🎉", nil
	}

	var b strings.Builder
	b.WriteString("📋 **Активные задачи:**\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s %s", priorityIcon(t.Priority), t.Title)
		if t.DueDate != nil {
			fmt.Fprintf(&b, " (до %s)", t.DueDate.Format(dateLayout))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *TaskAgent) listCompleted(ctx context.Context) (string, error) {
	tasks, err := a.tasks.ListCompleted(ctx)
	if err != nil {
		return "", fmt.Errorf("listing completed tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "Нет завершенных задач.", nil
	}
	if len(tasks) > maxCompletedRow {
		tasks = tasks[:maxCompletedRow]
	}

	var b strings.Builder
	b.WriteString("✅ **Завершенные задачи:**\n")
	for _, t := range tasks {
		b.WriteString("✓ " + t.Title)
		if t.CompletedAt != nil {
			fmt.Fprintf(&b, " (завершено %s)", t.CompletedAt.Format(dateLayout))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *TaskAgent) listToday(ctx context.Context) (string, error) {
	tasks, err := a.tasks.ListDueToday(ctx)
	if err != nil {
		return "", fmt.Errorf("listing tasks due today: %w", err)
	}
	if len(tasks) == 0 {
		return "На сегодня задач нет! 🎉", nil
	}

	var b strings.Builder
	b.WriteString("📅 **Задачи на сегодня:**\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s %s\n", priorityIcon(t.Priority), t.Title)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// complete finishes the task whose title appears in the input. When no
// title matches, the first active task is completed.
func (a *TaskAgent) complete(ctx context.Context, input string) (string, error) {
	tasks, err := a.tasks.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("listing active tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "Нет активных задач для завершения.", nil
	}

	target := tasks[0]
	matched := false
	lower := strings.ToLower(input)
	for _, t := range tasks {
		title := strings.ToLower(strings.TrimSpace(t.Title))
		if title != "" && strings.Contains(lower, title) {
			target, matched = t, true
			break
		}
	}

	target.Complete(a.now())
	if err := a.tasks.Update(ctx, target); err != nil {
		return "", fmt.Errorf("completing task: %w", err)
	}
	a.logger.Info("task completed", zap.String("task_id", target.ID), zap.Bool("title_matched", matched))

	return fmt.Sprintf("✅ Задача завершена: '%s'", target.Title), nil
}

func priorityIcon(p store.Priority) string {
	switch p {
	case store.PriorityHigh:
		return "🔴"
	case store.PriorityLow:
		return "🟢"
	default:
		return "🟡"
	}
}
