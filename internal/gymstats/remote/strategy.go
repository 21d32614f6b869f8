package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
)

const (
	StrategyNormalized = "normalized"
	StrategyLegacy     = "legacy"
)

// Strategy maps local changes onto a storage shape of the remote service.
// The mutation engine is written once against it.
type Strategy interface {
	Name() string
	Push(ctx context.Context, change workouts.Change) error
	Pull(ctx context.Context, ownerID string) (workouts.Snapshot, error)
}

func NewStrategy(name string, svc Service) (Strategy, error) {
	switch name {
	case StrategyNormalized, "":
		return NewNormalized(svc), nil
	case StrategyLegacy:
		return NewLegacy(svc), nil
	default:
		return nil, fmt.Errorf("unknown sync strategy: %s", name)
	}
}

func newDocument(id, ownerID string, updatedAt time.Time, v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, NewPermanentError(fmt.Errorf("%w: marshal %s: %s", ErrInvalidDocument, id, err))
	}
	return Document{
		ID:        id,
		OwnerID:   ownerID,
		Data:      data,
		UpdatedAt: updatedAt,
	}, nil
}

func decodeDocuments[T any](docs []Document) ([]T, error) {
	list := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
		}
		list = append(list, v)
	}
	return list, nil
}
