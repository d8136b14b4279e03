package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/projtracker/core/internal/domain/entities"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/infrastructure/metrics"
	"github.com/projtracker/core/internal/ports"
)

// Validation messages returned to clients
const (
	MsgNameRequired         = "Project name is required."
	MsgDeadlineDaysRequired = "Valid positive integer for deadlineDays is required."
)

var _ ports.ProjectService = (*ProjectService)(nil)

// ProjectServiceConfig holds optional collaborators of the service
type ProjectServiceConfig struct {
	StartPolicy entities.StartPolicy
	Validator   *validator.Validate
	Metrics     *metrics.Recorder
	// Clock returns the current instant; defaults to UTC wall time truncated
	// to milliseconds.
	Clock func() time.Time
}

// ProjectService owns the application state and is the only writer of it
type ProjectService struct {
	mu    sync.Mutex
	state entities.AppState

	repo      ports.StateRepository
	policy    entities.StartPolicy
	validator *validator.Validate
	metrics   *metrics.Recorder
	clock     func() time.Time
	logger    *logger.Logger
}

// NewProjectService creates the service and loads the persisted state
func NewProjectService(ctx context.Context, repo ports.StateRepository, cfg ProjectServiceConfig, logger *logger.Logger) *ProjectService {
	if cfg.StartPolicy == "" {
		cfg.StartPolicy = entities.StartPolicyOverwrite
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	}

	s := &ProjectService{
		state:     repo.Load(ctx),
		repo:      repo,
		policy:    cfg.StartPolicy,
		validator: cfg.Validator,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		logger:    logger.WithComponent("project_service"),
	}
	s.metrics.SetActive(s.state.HasActiveProject())

	s.logger.Infow("Initial state loaded",
		"active", activeName(s.state),
		"delivered", len(s.state.DeliveredProjects),
		"start_policy", s.policy,
	)

	return s
}

// StartProject makes req the active project
func (s *ProjectService) StartProject(ctx context.Context, req ports.StartProjectRequest) (*ports.MutationResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStart(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	replaced := "none"

	if prev := s.state.ActiveProject; prev != nil {
		switch s.policy {
		case entities.StartPolicyReject:
			s.logger.Infow("Start rejected, project already active", "active", prev.Name, "requested", req.Name)
			return nil, fmt.Errorf("start %q: %w", req.Name, entities.ErrProjectAlreadyActive)
		case entities.StartPolicyArchive:
			s.state.DeliveredProjects = append(s.state.DeliveredProjects, entities.DeliveredProject{
				Name:        prev.Name,
				StartedAt:   prev.StartedAt,
				DeliveredAt: now,
			})
			replaced = "archived"
			s.logger.Infow("Archived active project before starting a new one", "archived", prev.Name, "name", req.Name)
		default:
			replaced = "overwritten"
			s.logger.Warnw("Overwriting active project", "previous", prev.Name, "name", req.Name)
		}
	}

	s.state.ActiveProject = &entities.ActiveProject{
		Name:         req.Name,
		StartedAt:    now,
		DeadlineDays: req.DeadlineDays,
	}

	s.metrics.ProjectStarted(replaced)
	s.logger.LogStateChange("start_project", map[string]interface{}{
		"name":          req.Name,
		"deadline_days": req.DeadlineDays,
		"replaced":      replaced,
	})

	return s.persist(ctx), nil
}

// DeliverProject moves the active project into the delivered history
func (s *ProjectService) DeliverProject(ctx context.Context) (*ports.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.state.ActiveProject
	if active == nil {
		s.logger.Infow("Deliver rejected, no active project")
		return nil, entities.ErrNoActiveProject
	}

	s.state.DeliveredProjects = append(s.state.DeliveredProjects, entities.DeliveredProject{
		Name:        active.Name,
		StartedAt:   active.StartedAt,
		DeliveredAt: s.clock(),
	})
	s.state.ActiveProject = nil

	s.metrics.ProjectDelivered()
	s.logger.LogStateChange("deliver_project", map[string]interface{}{
		"name":            active.Name,
		"total_delivered": len(s.state.DeliveredProjects),
	})

	return s.persist(ctx), nil
}

// ResetState discards the active project and the whole history
func (s *ProjectService) ResetState(ctx context.Context) (*ports.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = entities.DefaultAppState()

	s.metrics.StateReset()
	s.logger.LogStateChange("reset_state", nil)

	return s.persist(ctx), nil
}

// GetState returns a copy of the current state
func (s *ProjectService) GetState(ctx context.Context) entities.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Stats summarizes the current state in the server's local time zone
func (s *ProjectService) Stats(ctx context.Context) entities.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.ComputeStats(s.state, s.clock().Local())
}

func (s *ProjectService) validateStart(req ports.StartProjectRequest) error {
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate start request: %w", err)
	}

	// Name is declared first, so it is reported before the deadline.
	switch verrs[0].StructField() {
	case "Name":
		return entities.NewValidationError("name", MsgNameRequired)
	default:
		return entities.NewValidationError("deadlineDays", MsgDeadlineDaysRequired)
	}
}

// persist writes the state; the caller holds s.mu. The write is detached
// from request cancellation so a disconnecting client cannot leave the file
// behind the in-memory state.
func (s *ProjectService) persist(ctx context.Context) *ports.MutationResult {
	snapshot := s.state.Clone()
	s.metrics.SetActive(snapshot.HasActiveProject())

	err := s.repo.Save(context.WithoutCancel(ctx), snapshot)
	if err != nil {
		s.metrics.SaveFailed()
		s.logger.Errorw("Error saving state, in-memory state kept", "location", s.repo.Location(), "error", err)
	}

	return &ports.MutationResult{
		State:      snapshot,
		Persisted:  err == nil,
		PersistErr: err,
	}
}

func activeName(state entities.AppState) string {
	if state.ActiveProject == nil {
		return "none"
	}
	return state.ActiveProject.Name
}
