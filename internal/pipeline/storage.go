package pipeline

import (
	"context"

	"github.com/pavelanni/quizen/internal/model"
)

// Storage persists run checkpoints.
type Storage interface {
	Save(ctx context.Context, runID string, snap model.RunSnapshot) error
	Load(ctx context.Context, runID string) (model.RunSnapshot, error)
}
