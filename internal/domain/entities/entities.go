package entities

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Common errors
var (
	ErrNoActiveProject      = errors.New("no active project to deliver")
	ErrProjectAlreadyActive = errors.New("a project is already active")
	ErrInvalidStartPolicy   = errors.New("invalid start policy")
)

// ValidationError reports malformed client input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a failure reading or writing the state file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StartPolicy decides what happens when a project is started while another
// one is still active.
type StartPolicy string

const (
	StartPolicyOverwrite StartPolicy = "overwrite"
	StartPolicyReject    StartPolicy = "reject"
	StartPolicyArchive   StartPolicy = "archive"
)

// ParseStartPolicy validates a configured policy name
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch p := StartPolicy(s); p {
	case StartPolicyOverwrite, StartPolicyReject, StartPolicyArchive:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStartPolicy, s)
	}
}

// MaxDeadlineDays is the largest accepted deadlineDays, about a century.
const MaxDeadlineDays = 36500

// ActiveProject is the one in-progress work item with a deadline.
type ActiveProject struct {
	Name         string    `json:"name" validate:"required"`
	StartedAt    time.Time `json:"startedAt"`
	DeadlineDays int       `json:"deadlineDays" validate:"gt=0,lte=36500"`
}

// Deadline returns the instant the project is due.
func (p ActiveProject) Deadline() time.Time {
	return p.StartedAt.AddDate(0, 0, p.DeadlineDays)
}

// Countdown returns the time left until the deadline as seen at now.
func (p ActiveProject) Countdown(now time.Time) Countdown {
	return NewCountdown(p.Deadline().Sub(now))
}

// DeliveredProject is a completed work item kept for history and stats.
type DeliveredProject struct {
	Name        string    `json:"name"`
	StartedAt   time.Time `json:"startedAt"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// AppState is the single persisted aggregate.
type AppState struct {
	ActiveProject     *ActiveProject     `json:"activeProject"`
	DeliveredProjects []DeliveredProject `json:"deliveredProjects"`
}

// DefaultAppState returns the empty state used on first start, on reset and
// whenever the state file cannot be read.
func DefaultAppState() AppState {
	return AppState{DeliveredProjects: []DeliveredProject{}}
}

// Clone returns a deep copy that shares no memory with s.
func (s AppState) Clone() AppState {
	out := AppState{DeliveredProjects: make([]DeliveredProject, len(s.DeliveredProjects))}
	copy(out.DeliveredProjects, s.DeliveredProjects)
	if s.ActiveProject != nil {
		active := *s.ActiveProject
		out.ActiveProject = &active
	}
	return out
}

// HasActiveProject reports whether a project is in progress
func (s AppState) HasActiveProject() bool {
	return s.ActiveProject != nil
}

// DeliveredNewestFirst returns the delivered history ordered by delivery
// time, most recent first. The receiver is left in insertion order.
func (s AppState) DeliveredNewestFirst() []DeliveredProject {
	out := make([]DeliveredProject, len(s.DeliveredProjects))
	copy(out, s.DeliveredProjects)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeliveredAt.After(out[j].DeliveredAt)
	})
	return out
}

// Countdown is the time remaining until a deadline, broken into units.
type Countdown struct {
	Remaining        time.Duration `json:"-"`
	RemainingSeconds int64         `json:"remainingSeconds"`
	Days             int           `json:"days"`
	Hours            int           `json:"hours"`
	Minutes          int           `json:"minutes"`
	Seconds          int           `json:"seconds"`
	Expired          bool          `json:"expired"`
}

// NewCountdown splits d into whole days, hours, minutes and seconds.
func NewCountdown(d time.Duration) Countdown {
	if d <= 0 {
		return Countdown{Expired: true}
	}
	total := int(d / time.Second)
	return Countdown{
		Remaining:        d,
		RemainingSeconds: int64(total),
		Days:             total / 86400,
		Hours:            total % 86400 / 3600,
		Minutes:          total % 3600 / 60,
		Seconds:          total % 60,
	}
}

func (c Countdown) String() string {
	if c.Expired {
		return "Deadline expired"
	}
	return fmt.Sprintf("%dd %02dh %02dm %02ds", c.Days, c.Hours, c.Minutes, c.Seconds)
}

// Stats summarizes the delivered history and the active deadline.
type Stats struct {
	TotalDelivered     int        `json:"totalDelivered"`
	DeliveredThisMonth int        `json:"deliveredThisMonth"`
	ActiveProject      *string    `json:"activeProject"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	Countdown          *Countdown `json:"countdown,omitempty"`
}

// ComputeStats derives Stats from s. Month boundaries use now's location.
func ComputeStats(s AppState, now time.Time) Stats {
	stats := Stats{TotalDelivered: len(s.DeliveredProjects)}
	year, month, _ := now.Date()
	for _, p := range s.DeliveredProjects {
		y, m, _ := p.DeliveredAt.In(now.Location()).Date()
		if y == year && m == month {
			stats.DeliveredThisMonth++
		}
	}
	if s.ActiveProject != nil {
		name := s.ActiveProject.Name
		deadline := s.ActiveProject.Deadline()
		countdown := s.ActiveProject.Countdown(now)
		stats.ActiveProject = &name
		stats.Deadline = &deadline
		stats.Countdown = &countdown
	}
	return stats
}
