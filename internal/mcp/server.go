package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/store"
)

// Dispatcher answers free-form requests.
type Dispatcher interface {
	Process(ctx context.Context, input string, rc agent.RoutingContext) string
	Route(input string) agent.Agent
}

// MemoryService stores and recalls memories.
type MemoryService interface {
	Remember(ctx context.Context, content string, metadata map[string]string) (memory.Record, error)
	Recall(ctx context.Context, query string, limit int) ([]memory.SimilarityResult, error)
}

// Scrubber redacts secrets from outgoing text.
type Scrubber interface {
	Scrub(content string) string
}

// Deps are the services behind the tools. Scrubber may be nil.
type Deps struct {
	Dispatcher Dispatcher
	Memories   MemoryService
	Tasks      store.TaskStore
	Reminders  store.ReminderStore
	Scrubber   Scrubber
}

func (d Deps) validate() error {
	switch {
	case d.Dispatcher == nil:
		return fmt.Errorf("dispatcher is required")
	case d.Memories == nil:
		return fmt.Errorf("memory service is required")
	case d.Tasks == nil:
		return fmt.Errorf("task store is required")
	case d.Reminders == nil:
		return fmt.Errorf("reminder store is required")
	}
	return nil
}

// Server is an MCP server over the assistant services.
type Server struct {
	mcp      *mcp.Server
	deps     Deps
	registry *ToolRegistry
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "assistantd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "assistantd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with every tool registered.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		deps:     deps,
		registry: NewToolRegistry(),
		logger:   cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Registry returns the metadata of every registered tool.
func (s *Server) Registry() *ToolRegistry { return s.registry }

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport", zap.Int("tools", s.registry.Count()))
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves MCP on the given transport.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

func (s *Server) scrub(text string) string {
	if s.deps.Scrubber == nil {
		return text
	}
	return s.deps.Scrubber.Scrub(text)
}
