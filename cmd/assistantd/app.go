package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/chat"
	"github.com/fyrsmithlabs/assistantd/internal/config"
	"github.com/fyrsmithlabs/assistantd/internal/embeddings"
	"github.com/fyrsmithlabs/assistantd/internal/events"
	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"github.com/fyrsmithlabs/assistantd/internal/logging"
	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/router"
	"github.com/fyrsmithlabs/assistantd/internal/secrets"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/fyrsmithlabs/assistantd/internal/telemetry"
	"github.com/fyrsmithlabs/assistantd/internal/vectorstore"
)

// storage is the relational store as the surfaces see it.
type storage interface {
	Tasks() store.TaskStore
	Reminders() store.ReminderStore
	Messages() store.MessageStore
}

// app holds every wired component. close releases them in reverse order.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	telemetry  *telemetry.Telemetry
	db         storage
	sqlite     *store.SQLite
	publisher  events.Publisher
	scrubber   *secrets.Scrubber
	memories   *memory.Service
	dispatcher *router.Dispatcher
	chat       *chat.Service

	closers []func() error
}

// loadApp reads the configuration, lets the command adjust it, and wires
// the app.
func loadApp(ctx context.Context, adjust func(*config.Config)) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.logger, err = logging.NewLogger(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.onClose(a.logger.Sync)
	zl := a.logger.Underlying()

	if a.telemetry, err = telemetry.New(ctx, &cfg.Telemetry, telemetry.WithLogger(zl)); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.onClose(func() error { return a.telemetry.Shutdown(context.Background()) })

	if err = a.openStorage(ctx, zl); err != nil {
		return nil, err
	}
	if err = a.openEvents(zl); err != nil {
		return nil, err
	}

	if a.scrubber, err = secrets.New(cfg.Secrets, zl.Named("secrets")); err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	completion, err := llm.New(ctx, cfg.LLMBackend(), zl.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	embedder, err := embeddings.NewService(ctx, cfg.EmbeddingBackend(), zl.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	index, err := a.openMemoryIndex(ctx, zl)
	if err != nil {
		return nil, err
	}
	a.memories = memory.NewService(index, embedder, a.scrubber)

	cache, err := router.NewCache(ctx, cfg.RouterCache(), zl.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("classification cache: %w", err)
	}
	if cache != nil {
		a.onClose(cache.Close)
	}

	agentOpts := []agent.Option{agent.WithLogger(zl.Named("agent"))}
	agents := agent.Set{
		Task:     agent.NewTaskAgent(a.db.Tasks(), completion, agentOpts...),
		Reminder: agent.NewReminderAgent(a.db.Reminders(), completion, agentOpts...),
		Memory:   agent.NewMemoryAgent(index, embedder, a.scrubber, agentOpts...),
		Query:    agent.NewQueryAgent(completion, agentOpts...),
	}
	classifier := router.NewClassifier(completion, cache, zl.Named("classifier"))
	if a.dispatcher, err = router.NewDispatcher(classifier, agents, zl.Named("router")); err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	a.chat = chat.NewService(a.db.Messages(), a.dispatcher, zl.Named("chat"),
		chat.WithPublisher(a.publisher),
		chat.WithScrubber(a.scrubber),
	)

	a.logger.Info(ctx, "assistant ready",
		zap.String("llm", cfg.LLM.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("memory_backend", cfg.Memory.Backend),
		zap.Bool("persistent", a.sqlite != nil),
	)
	return a, nil
}

func (a *app) openStorage(ctx context.Context, zl *zap.Logger) error {
	if a.cfg.Storage.Path == "" {
		a.db = store.NewInMemory(nil)
		return nil
	}
	db, err := store.OpenSQLite(ctx, a.cfg.Storage.Path, zl.Named("store"))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.db, a.sqlite = db, db
	a.onClose(db.Close)
	return nil
}

func (a *app) openEvents(zl *zap.Logger) error {
	if !a.cfg.NATS.Enabled {
		a.publisher = events.Nop{}
		return nil
	}
	nc, err := events.Connect(a.cfg.NATS, zl.Named("events"))
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	a.onClose(func() error { return nc.Drain() })
	a.publisher = events.NewNATSPublisher(nc, a.cfg.NATS.SubjectPrefix, zl.Named("events"))
	return nil
}

// openMemoryIndex picks the record store for the configured backend. The
// sqlite backend scans records in the relational store, or in process
// memory when no database path is set.
func (a *app) openMemoryIndex(ctx context.Context, zl *zap.Logger) (*memory.Index, error) {
	ixCfg := a.cfg.MemoryIndex()

	var records memory.RecordStore
	switch a.cfg.Memory.Backend {
	case vectorstore.BackendSQLite:
		if a.sqlite != nil {
			records = a.sqlite.Records()
		} else {
			records = memory.NewMemStore()
		}
	default:
		vs, err := vectorstore.Open(ctx, a.cfg.VectorStore(), ixCfg.Dimension, zl.Named("vectorstore"))
		if err != nil {
			return nil, fmt.Errorf("memory backend %s: %w", a.cfg.Memory.Backend, err)
		}
		a.onClose(vs.Close)
		records = vs
	}

	ix, err := memory.NewIndex(records, ixCfg, zl.Named("memory"))
	if err != nil {
		return nil, fmt.Errorf("memory index: %w", err)
	}
	return ix, nil
}

func (a *app) onClose(f func() error) { a.closers = append(a.closers, f) }

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
