package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/store"
)

const (
	defaultRecallLimit = 5
	maxRecallLimit     = 50
)

var errInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidArgument, fmt.Sprintf(format, args...))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// addTool registers a tool with the SDK and its metadata with the registry.
func addTool[In, Out any](s *Server, meta *ToolMetadata, h mcp.ToolHandlerFor[In, Out]) error {
	if err := s.registry.Register(meta); err != nil {
		return err
	}
	mcp.AddTool(s.mcp, &mcp.Tool{Name: meta.Name, Description: meta.Description},
		func(ctx context.Context, req *mcp.CallToolRequest, in In) (res *mcp.CallToolResult, out Out, err error) {
			defer track(meta.Name)(&err)
			res, out, err = h(ctx, req, in)
			if err != nil {
				s.logger.Warn("tool failed", zap.String("tool", meta.Name), zap.Error(err))
			}
			return res, out, err
		})
	return nil
}

func (s *Server) registerTools() error {
	return errors.Join(
		addTool(s, &ToolMetadata{
			Name:        "ask",
			Description: "Send a request to the assistant and get its reply",
			Category:    CategoryAssistant,
			Keywords:    []string{"chat", "question", "спросить"},
		}, s.ask),
		addTool(s, &ToolMetadata{
			Name:        "remember",
			Description: "Store a memory for later recall",
			Category:    CategoryMemory,
			Keywords:    []string{"save", "note", "запомни"},
		}, s.remember),
		addTool(s, &ToolMetadata{
			Name:        "recall",
			Description: "Find stored memories similar to a query",
			Category:    CategoryMemory,
			Keywords:    []string{"search", "find", "вспомни"},
		}, s.recall),
		addTool(s, &ToolMetadata{
			Name:        "task_list",
			Description: "List tasks by status: active, completed, today or all",
			Category:    CategoryTasks,
			Keywords:    []string{"todo", "задачи"},
		}, s.taskList),
		addTool(s, &ToolMetadata{
			Name:        "task_add",
			Description: "Create a task with optional priority and due date",
			Category:    CategoryTasks,
			Keywords:    []string{"todo", "create", "задача"},
		}, s.taskAdd),
		addTool(s, &ToolMetadata{
			Name:        "task_complete",
			Description: "Mark a task as completed",
			Category:    CategoryTasks,
			Keywords:    []string{"done", "finish", "выполнено"},
		}, s.taskComplete),
		addTool(s, &ToolMetadata{
			Name:        "reminder_list",
			Description: "List active reminders ordered by time",
			Category:    CategoryReminders,
			Keywords:    []string{"schedule", "напоминания"},
		}, s.reminderList),
		addTool(s, &ToolMetadata{
			Name:        "tool_search",
			Description: "Search the available tools by name, description or keyword",
			Category:    CategorySearch,
		}, s.toolSearch),
	)
}

// ===== ASSISTANT =====

type askInput struct {
	Text      string `json:"text" jsonschema:"required,The request in natural language"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Conversation session identifier"`
}

type askOutput struct {
	Reply string `json:"reply" jsonschema:"Assistant reply"`
	Agent string `json:"agent" jsonschema:"Capability that keyword routing would pick"`
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, askOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, askOutput{}, invalid("text is required")
	}
	rc := agent.RoutingContext{}
	if in.SessionID != "" {
		rc["session_id"] = in.SessionID
	}
	out := askOutput{
		Reply: s.scrub(s.deps.Dispatcher.Process(ctx, in.Text, rc)),
		Agent: s.deps.Dispatcher.Route(in.Text).Label().String(),
	}
	return textResult(out.Reply), out, nil
}

// ===== MEMORY =====

type rememberInput struct {
	Content  string            `json:"content" jsonschema:"required,Text to remember"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"Additional metadata"`
}

type rememberOutput struct {
	ID string `json:"id" jsonschema:"Memory ID"`
}

func (s *Server) remember(ctx context.Context, _ *mcp.CallToolRequest, in rememberInput) (*mcp.CallToolResult, rememberOutput, error) {
	meta := map[string]string{"source": "mcp"}
	for k, v := range in.Metadata {
		meta[k] = v
	}
	rec, err := s.deps.Memories.Remember(ctx, in.Content, meta)
	if err != nil {
		return nil, rememberOutput{}, fmt.Errorf("remember failed: %w", err)
	}
	return textResult("Memory saved: " + rec.ID), rememberOutput{ID: rec.ID}, nil
}

type recallInput struct {
	Query string `json:"query" jsonschema:"required,What to look for"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
}

type recalledMemory struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type recallOutput struct {
	Memories []recalledMemory `json:"memories" jsonschema:"Matching memories, most similar first"`
	Count    int              `json:"count"`
}

func (s *Server) recall(ctx context.Context, _ *mcp.CallToolRequest, in recallInput) (*mcp.CallToolResult, recallOutput, error) {
	limit := in.Limit
	switch {
	case limit < 0:
		return nil, recallOutput{}, invalid("limit must be positive")
	case limit == 0:
		limit = defaultRecallLimit
	case limit > maxRecallLimit:
		limit = maxRecallLimit
	}
	results, err := s.deps.Memories.Recall(ctx, in.Query, limit)
	if err != nil {
		return nil, recallOutput{}, fmt.Errorf("recall failed: %w", err)
	}

	out := recallOutput{Memories: make([]recalledMemory, len(results)), Count: len(results)}
	var b strings.Builder
	for i, r := range results {
		content := s.scrub(r.Record.Content)
		out.Memories[i] = recalledMemory{ID: r.Record.ID, Content: content, Score: r.Score}
		fmt.Fprintf(&b, "- %s\n", content)
	}
	if out.Count == 0 {
		return textResult("No matching memories."), out, nil
	}
	return textResult(strings.TrimRight(b.String(), "\n")), out, nil
}

// ===== TASKS =====

type taskListInput struct {
	Status string `json:"status,omitempty" jsonschema:"active (default), completed, today or all"`
}

// taskView and reminderView carry times as RFC 3339 strings in tool output.
type taskView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"is_completed"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func (s *Server) viewTask(t store.Task) taskView {
	v := taskView{
		ID:          t.ID,
		Title:       s.scrub(t.Title),
		Description: s.scrub(t.Description),
		Completed:   t.Completed,
		Priority:    t.Priority.String(),
	}
	if t.DueDate != nil {
		v.DueDate = t.DueDate.Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		v.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return v
}

type taskListOutput struct {
	Tasks []taskView `json:"tasks"`
	Count int        `json:"count"`
}

func (s *Server) taskList(ctx context.Context, _ *mcp.CallToolRequest, in taskListInput) (*mcp.CallToolResult, taskListOutput, error) {
	var (
		tasks []store.Task
		err   error
	)
	switch strings.ToLower(in.Status) {
	case "", "active":
		tasks, err = s.deps.Tasks.ListActive(ctx)
	case "completed":
		tasks, err = s.deps.Tasks.ListCompleted(ctx)
	case "today":
		tasks, err = s.deps.Tasks.ListDueToday(ctx)
	case "all":
		tasks, err = s.deps.Tasks.List(ctx)
	default:
		return nil, taskListOutput{}, invalid("unknown status %q", in.Status)
	}
	if err != nil {
		return nil, taskListOutput{}, fmt.Errorf("task list failed: %w", err)
	}
	out := taskListOutput{Tasks: make([]taskView, len(tasks)), Count: len(tasks)}
	var b strings.Builder
	for i, t := range tasks {
		out.Tasks[i] = s.viewTask(t)
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", t.ID, out.Tasks[i].Title, t.Priority)
	}
	return textResult(fmt.Sprintf("%d task(s)\n%s", len(tasks), b.String())), out, nil
}

type taskAddInput struct {
	Title       string `json:"title" jsonschema:"required,Task title"`
	Description string `json:"description,omitempty" jsonschema:"Task description"`
	Priority    string `json:"priority,omitempty" jsonschema:"low, medium (default) or high"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"Due date in RFC 3339 or YYYY-MM-DD"`
}

func (s *Server) taskAdd(ctx context.Context, _ *mcp.CallToolRequest, in taskAddInput) (*mcp.CallToolResult, taskView, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, taskView{}, invalid("title is required")
	}
	t := store.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: in.Description,
		Priority:    store.ParsePriority(in.Priority),
		CreatedAt:   time.Now().UTC(),
	}
	if in.DueDate != "" {
		due, err := parseDate(in.DueDate)
		if err != nil {
			return nil, taskView{}, err
		}
		t.DueDate = &due
	}
	if err := s.deps.Tasks.Add(ctx, t); err != nil {
		return nil, taskView{}, fmt.Errorf("task add failed: %w", err)
	}
	return textResult("Task created: " + t.ID), s.viewTask(t), nil
}

type taskCompleteInput struct {
	ID string `json:"id" jsonschema:"required,Task ID"`
}

func (s *Server) taskComplete(ctx context.Context, _ *mcp.CallToolRequest, in taskCompleteInput) (*mcp.CallToolResult, taskView, error) {
	t, err := s.deps.Tasks.Get(ctx, in.ID)
	if err != nil {
		return nil, taskView{}, err
	}
	t.Complete(time.Now())
	if err := s.deps.Tasks.Update(ctx, t); err != nil {
		return nil, taskView{}, fmt.Errorf("task complete failed: %w", err)
	}
	v := s.viewTask(t)
	return textResult("Task completed: " + v.Title), v, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("due_date %q is not RFC 3339 or YYYY-MM-DD", s)
}

// ===== REMINDERS =====

type reminderListInput struct{}

type reminderView struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	RemindAt          string `json:"remind_at"`
	RecurrencePattern string `json:"recurrence_pattern,omitempty"`
}

type reminderListOutput struct {
	Reminders []reminderView `json:"reminders"`
	Count     int            `json:"count"`
}

func (s *Server) reminderList(ctx context.Context, _ *mcp.CallToolRequest, _ reminderListInput) (*mcp.CallToolResult, reminderListOutput, error) {
	rs, err := s.deps.Reminders.ListActive(ctx)
	if err != nil {
		return nil, reminderListOutput{}, fmt.Errorf("reminder list failed: %w", err)
	}
	out := reminderListOutput{Reminders: make([]reminderView, len(rs)), Count: len(rs)}
	var b strings.Builder
	for i, r := range rs {
		v := reminderView{
			ID:                r.ID,
			Title:             s.scrub(r.Title),
			RemindAt:          r.RemindAt.Format(time.RFC3339),
			RecurrencePattern: r.RecurrencePattern,
		}
		out.Reminders[i] = v
		fmt.Fprintf(&b, "- %s: %s\n", v.RemindAt, v.Title)
	}
	return textResult(fmt.Sprintf("%d reminder(s)\n%s", len(rs), b.String())), out, nil
}

// ===== DISCOVERY =====

type toolSearchInput struct {
	Query string `json:"query" jsonschema:"required,Name, keyword or regex"`
}

type toolSearchOutput struct {
	Results []*SearchResult `json:"results"`
}

func (s *Server) toolSearch(_ context.Context, _ *mcp.CallToolRequest, in toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
	results := s.registry.Search(in.Query)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Tool.Name
	}
	return textResult(strings.Join(names, ", ")), toolSearchOutput{Results: results}, nil
}
