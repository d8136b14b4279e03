package ports

import (
	"context"

	"github.com/projtracker/core/internal/domain/entities"
)

// ProjectService interface for project state operations
type ProjectService interface {
	StartProject(ctx context.Context, req StartProjectRequest) (*MutationResult, error)
	DeliverProject(ctx context.Context) (*MutationResult, error)
	ResetState(ctx context.Context) (*MutationResult, error)
	GetState(ctx context.Context) entities.AppState
	Stats(ctx context.Context) entities.Stats
}

// Request/Response Types

// StartProjectRequest carries the input of a project start. Name is trimmed
// before validation.
type StartProjectRequest struct {
	Name         string `json:"name" validate:"required"`
	DeadlineDays int    `json:"deadlineDays" validate:"gt=0,lte=36500"`
}

// MutationResult is the outcome of an accepted state change. State always
// reflects the mutation; Persisted tells whether it also reached storage.
type MutationResult struct {
	State      entities.AppState
	Persisted  bool
	PersistErr error
}
