package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/projtracker/core/internal/domain/entities"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/ports"
)

var _ ports.StateRepository = (*StateRepository)(nil)

// StateRepository keeps the application state in a single JSON document
type StateRepository struct {
	path      string
	validator *validator.Validate
	logger    *logger.Logger
}

// NewStateRepository creates a repository backed by the file at path
func NewStateRepository(path string, validate *validator.Validate, logger *logger.Logger) *StateRepository {
	if validate == nil {
		validate = validator.New()
	}
	return &StateRepository{
		path:      path,
		validator: validate,
		logger:    logger.WithComponent("state_repository"),
	}
}

// Location returns the state file path
func (r *StateRepository) Location() string {
	return r.path
}

// Load reads the state file. A document with the wrong shape yields the
// default state; an invalid active project is dropped and the history kept.
func (r *StateRepository) Load(ctx context.Context) entities.AppState {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Infow("State file not found, initializing with default state", "path", r.path)
		} else {
			r.logger.Warnw("Error reading state file, using default state", "path", r.path, "error", err)
		}
		return entities.DefaultAppState()
	}

	state, err := r.decode(data)
	if err != nil {
		r.logger.Warnw("Invalid data format in state file, using default state", "path", r.path, "error", err)
		return entities.DefaultAppState()
	}

	active := "none"
	if state.ActiveProject != nil {
		active = state.ActiveProject.Name
	}
	r.logger.Infow("State loaded", "path", r.path, "active", active, "delivered", len(state.DeliveredProjects))

	return state
}

func (r *StateRepository) decode(data []byte) (entities.AppState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return entities.AppState{}, err
	}

	if _, ok := fields["activeProject"]; !ok {
		return entities.AppState{}, errors.New("missing activeProject field")
	}
	delivered, ok := fields["deliveredProjects"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(delivered), []byte("[")) {
		return entities.AppState{}, errors.New("deliveredProjects is not an array")
	}

	var state entities.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return entities.AppState{}, err
	}
	if state.ActiveProject != nil {
		if err := r.validator.Struct(state.ActiveProject); err != nil {
			r.logger.WithError(err).Warnw("Invalid active project in state file, dropping it", "path", r.path, "name", state.ActiveProject.Name)
			state.ActiveProject = nil
		}
	}
	if state.DeliveredProjects == nil {
		state.DeliveredProjects = []entities.DeliveredProject{}
	}

	return state, nil
}

// Save writes the whole state as indented JSON. The document is written to a
// sibling temp file and renamed over the old one.
func (r *StateRepository) Save(ctx context.Context, state entities.AppState) error {
	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}

	if state.DeliveredProjects == nil {
		state.DeliveredProjects = []entities.DeliveredProject{}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return r.fail(err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return r.fail(err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return r.fail(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return r.fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return r.fail(err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return r.fail(err)
	}

	r.logger.Debugw("State saved", "path", r.path, "bytes", len(data))
	return nil
}

func (r *StateRepository) fail(err error) error {
	return &entities.PersistenceError{Op: "save", Path: r.path, Err: err}
}
