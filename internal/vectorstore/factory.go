package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
)

// NewStore builds a Store from configuration. The provider selects
// between the remote Qdrant store and the embedded chromem store.
func NewStore(cfg config.StoreConfig, vectorSize int, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "qdrant":
		store, err := NewQdrantStore(QdrantConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			UseTLS:     cfg.UseTLS,
			VectorSize: vectorSize,
		}, logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("creating qdrant store: %w", err)
		}
		return newInstrumentedStore(store, "qdrant"), nil
	case "chromem":
		store, err := NewChromemStore(ChromemConfig{
			Path:       cfg.Path,
			VectorSize: vectorSize,
		}, logger.Named("chromem"))
		if err != nil {
			return nil, fmt.Errorf("creating chromem store: %w", err)
		}
		return newInstrumentedStore(store, "chromem"), nil
	default:
		return nil, fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
