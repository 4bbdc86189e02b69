package mcp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistry_Register(t *testing.T) {
	registry := NewToolRegistry()

	tool := &ToolMetadata{
		Name:        "recall",
		Description: "Find stored memories similar to a query",
		Category:    CategoryMemory,
		Keywords:    []string{"search", "вспомни"},
	}
	require.NoError(t, registry.Register(tool))

	got, ok := registry.Get("recall")
	require.True(t, ok)
	assert.Equal(t, tool, got)

	err := registry.Register(tool)
	assert.ErrorContains(t, err, "already registered")
}

func TestToolRegistry_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name    string
		tool    *ToolMetadata
		wantErr string
	}{
		{name: "nil tool", tool: nil, wantErr: "tool metadata is required"},
		{name: "empty name", tool: &ToolMetadata{Description: "x"}, wantErr: "tool name is required"},
		{name: "empty description", tool: &ToolMetadata{Name: "x"}, wantErr: "description is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewToolRegistry().Register(tt.tool)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestToolRegistry_Search(t *testing.T) {
	registry := NewToolRegistry()
	for _, tool := range []*ToolMetadata{
		{Name: "task_list", Description: "List tasks", Category: CategoryTasks, Keywords: []string{"задачи"}},
		{Name: "task_add", Description: "Create a task", Category: CategoryTasks},
		{Name: "recall", Description: "Find stored memories", Category: CategoryMemory, Keywords: []string{"вспомни"}},
	} {
		require.NoError(t, registry.Register(tool))
	}

	t.Run("exact name first", func(t *testing.T) {
		results := registry.Search("task_add")
		require.NotEmpty(t, results)
		assert.Equal(t, "task_add", results[0].Tool.Name)
		assert.Equal(t, 3, results[0].Score)
	})

	t.Run("name contains", func(t *testing.T) {
		results := registry.Search("TASK")
		require.Len(t, results, 2)
		assert.Equal(t, "task_add", results[0].Tool.Name)
		assert.Equal(t, "task_list", results[1].Tool.Name)
	})

	t.Run("keyword", func(t *testing.T) {
		results := registry.Search("вспомни")
		require.Len(t, results, 1)
		assert.Equal(t, "recall", results[0].Tool.Name)
		assert.Equal(t, "keyword match", results[0].MatchReason)
	})

	t.Run("regex", func(t *testing.T) {
		results := registry.Search("^re")
		require.Len(t, results, 1)
		assert.Equal(t, "recall", results[0].Tool.Name)
	})

	t.Run("invalid regex falls back to substring", func(t *testing.T) {
		assert.Empty(t, registry.Search("[unclosed"))
	})

	t.Run("empty query", func(t *testing.T) {
		assert.Nil(t, registry.Search(""))
	})
}

func TestToolRegistry_ListByCategory(t *testing.T) {
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(&ToolMetadata{Name: "b", Description: "b", Category: CategoryTasks}))
	require.NoError(t, registry.Register(&ToolMetadata{Name: "a", Description: "a", Category: CategoryTasks}))
	require.NoError(t, registry.Register(&ToolMetadata{Name: "c", Description: "c", Category: CategoryMemory}))

	tasks := registry.ListByCategory(CategoryTasks)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].Name)
	assert.Equal(t, []string{"a", "b", "c"}, registry.ListNames())
	assert.Equal(t, 3, registry.Count())
}

func TestToolRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewToolRegistry()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = registry.Register(&ToolMetadata{Name: string(rune('a' + i)), Description: "tool"})
		}()
		go func() {
			defer wg.Done()
			_ = registry.Search("tool")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, registry.Count())
}
