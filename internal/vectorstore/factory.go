package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects the memory backend. The sqlite backend lives in the
// relational store and is opened by the caller.
type Config struct {
	Backend string
	Chromem ChromemConfig
	Qdrant  QdrantConfig
}

// Open builds the configured vector backend with the deployment dimension.
func Open(ctx context.Context, cfg Config, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendChromem:
		cfg.Chromem.Dimension = dimension
		return NewChromemStore(cfg.Chromem, logger)
	case BackendQdrant:
		cfg.Qdrant.Dimension = dimension
		return NewQdrantStore(ctx, cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: backend %q has no vector store", ErrInvalidConfig, cfg.Backend)
	}
}
