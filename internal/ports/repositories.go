package ports

import (
	"context"

	"github.com/projtracker/core/internal/domain/entities"
)

// StateRepository defines the persistence backend for the application state
type StateRepository interface {
	// Load returns the persisted state, or the default state when nothing
	// usable is stored. It never fails.
	Load(ctx context.Context) entities.AppState
	// Save replaces the persisted state with state.
	Save(ctx context.Context, state entities.AppState) error
	// Location describes where the state lives, for logs and health output.
	Location() string
}
