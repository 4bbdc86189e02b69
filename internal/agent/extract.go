package agent

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/store"
)

// Model output is treated as near-JSON: each field is pulled out on its own
// so a stray comma or code fence does not lose the rest.

var (
	fieldPatternsMu sync.Mutex
	fieldPatterns   = map[string]*regexp.Regexp{}
)

func fieldPattern(field string) *regexp.Regexp {
	fieldPatternsMu.Lock()
	defer fieldPatternsMu.Unlock()
	re, ok := fieldPatterns[field]
	if !ok {
		re = regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"([^"]+)"`)
		fieldPatterns[field] = re
	}
	return re
}

// extractField returns the string value of field, if present and non-blank.
func extractField(raw, field string) (string, bool) {
	m := fieldPattern(field).FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" || strings.EqualFold(v, "null") {
		return "", false
	}
	return v, true
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts ISO dates with or without a time part. Values without
// an offset are taken as UTC.
func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type taskDraft struct {
	Title    string
	Priority store.Priority
	DueDate  *time.Time
}

// parseTaskDraft reads {title, priority, dueDate}. A missing title means
// no draft; a bad priority or date degrades to the default.
func parseTaskDraft(raw string) (taskDraft, bool) {
	title, ok := extractField(raw, "title")
	if !ok {
		return taskDraft{}, false
	}
	d := taskDraft{Title: title, Priority: store.PriorityMedium}
	if p, ok := extractField(raw, "priority"); ok {
		d.Priority = store.ParsePriority(p)
	}
	if s, ok := extractField(raw, "dueDate"); ok {
		if due, ok := parseTime(s); ok {
			d.DueDate = &due
		}
	}
	return d, true
}

type reminderDraft struct {
	Title      string
	RemindAt   time.Time
	Recurrence string
}

// parseReminderDraft reads {title, remindAt, recurrence}. Title and a
// parseable time are both required.
func parseReminderDraft(raw string) (reminderDraft, bool) {
	title, ok := extractField(raw, "title")
	if !ok {
		return reminderDraft{}, false
	}
	s, ok := extractField(raw, "remindAt")
	if !ok {
		return reminderDraft{}, false
	}
	at, ok := parseTime(s)
	if !ok {
		return reminderDraft{}, false
	}
	d := reminderDraft{Title: title, RemindAt: at}
	if r, ok := extractField(raw, "recurrence"); ok {
		d.Recurrence = NormalizeRecurrence(r)
	}
	return d, true
}

// NormalizeRecurrence returns daily, weekly, monthly or "".
func NormalizeRecurrence(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "ежедневно", "каждый день":
		return "daily"
	case "weekly", "week", "еженедельно", "каждую неделю":
		return "weekly"
	case "monthly", "month", "ежемесячно", "каждый месяц":
		return "monthly"
	default:
		return ""
	}
}
