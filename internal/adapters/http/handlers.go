package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/projtracker/core/internal/application/services"
	"github.com/projtracker/core/internal/domain/entities"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/ports"
)

// Error messages returned to clients
const (
	MsgNoActiveProject      = "No active project to deliver."
	MsgProjectAlreadyActive = "A project is already active."
	MsgProcessingFailed     = "Failed to process request."
	MsgDeliveryFailed       = "Failed to process delivery."
	MsgResetFailed          = "Failed to reset state."
)

// HeaderStatePersisted tells the client whether a mutation reached disk
const HeaderStatePersisted = "X-State-Persisted"

// ErrorResponse is the body of every JSON error
type ErrorResponse struct {
	Error string `json:"error"`
}

// ProjectHandler handles project state requests
type ProjectHandler struct {
	projectService    ports.ProjectService
	strictPersistence bool
	logger            *logger.Logger
}

// NewProjectHandler creates a new project handler. With strictPersistence a
// failed state write fails the request instead of only being logged.
func NewProjectHandler(projectService ports.ProjectService, strictPersistence bool, logger *logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService:    projectService,
		strictPersistence: strictPersistence,
		logger:            logger.WithComponent("project_handler"),
	}
}

// GetState godoc
// @Summary Get application state
// @Description Returns the active project and the delivered history
// @Tags state
// @Produce json
// @Success 200 {object} entities.AppState
// @Router /state [get]
func (h *ProjectHandler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.projectService.GetState(c.Request().Context()))
}

// GetStats godoc
// @Summary Get delivery statistics
// @Description Totals, deliveries this month and the active deadline countdown
// @Tags state
// @Produce json
// @Success 200 {object} entities.Stats
// @Router /stats [get]
func (h *ProjectHandler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.projectService.Stats(c.Request().Context()))
}

// StartProject godoc
// @Summary Start a project
// @Description Makes the given project the active one
// @Tags projects
// @Accept json
// @Produce json
// @Param request body ports.StartProjectRequest true "Project data"
// @Success 200 {object} entities.AppState
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /start-project [post]
func (h *ProjectHandler) StartProject(c echo.Context) error {
	req, err := decodeStartProject(c.Request())
	if err != nil {
		var verr *entities.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{Error: verr.Message})
		}
		h.requestLogger(c).Errorw("Error processing start-project body", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{Error: MsgProcessingFailed}).SetInternal(err)
	}

	res, err := h.projectService.StartProject(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}

	return h.respond(c, res, MsgProcessingFailed, h.strictPersistence)
}

// DeliverProject godoc
// @Summary Deliver the active project
// @Description Moves the active project into the delivered history
// @Tags projects
// @Produce json
// @Success 200 {object} entities.AppState
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /deliver-project [post]
func (h *ProjectHandler) DeliverProject(c echo.Context) error {
	res, err := h.projectService.DeliverProject(c.Request().Context())
	if err != nil {
		return h.mapError(c, err)
	}

	return h.respond(c, res, MsgDeliveryFailed, h.strictPersistence)
}

// ResetState godoc
// @Summary Reset all data
// @Description Clears the active project and the delivered history
// @Tags state
// @Produce json
// @Success 200 {object} entities.AppState
// @Failure 500 {object} ErrorResponse
// @Router /reset-state [post]
func (h *ProjectHandler) ResetState(c echo.Context) error {
	res, err := h.projectService.ResetState(c.Request().Context())
	if err != nil {
		return h.mapError(c, err)
	}

	// A reset the disk never saw would resurrect the old data on restart.
	return h.respond(c, res, MsgResetFailed, true)
}

func (h *ProjectHandler) respond(c echo.Context, res *ports.MutationResult, failMsg string, strict bool) error {
	c.Response().Header().Set(HeaderStatePersisted, strconv.FormatBool(res.Persisted))
	if !res.Persisted && strict {
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{Error: failMsg}).SetInternal(res.PersistErr)
	}
	return c.JSON(http.StatusOK, res.State)
}

func (h *ProjectHandler) requestLogger(c echo.Context) *logger.Logger {
	return h.logger.WithRequestID(c.Response().Header().Get(echo.HeaderXRequestID))
}

func (h *ProjectHandler) mapError(c echo.Context, err error) error {
	var verr *entities.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{Error: verr.Message})
	case errors.Is(err, entities.ErrNoActiveProject):
		return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{Error: MsgNoActiveProject})
	case errors.Is(err, entities.ErrProjectAlreadyActive):
		return echo.NewHTTPError(http.StatusConflict, ErrorResponse{Error: MsgProjectAlreadyActive})
	default:
		h.requestLogger(c).Errorw("Unexpected service error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{Error: MsgProcessingFailed}).SetInternal(err)
	}
}

// decodeStartProject reads {name, deadlineDays}. Malformed JSON is an
// unexpected error; well-formed JSON with wrong types is a validation error.
func decodeStartProject(r *http.Request) (ports.StartProjectRequest, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ports.StartProjectRequest{}, entities.NewValidationError("name", services.MsgNameRequired)
		}
		return ports.StartProjectRequest{}, err
	}

	name, ok := body["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return ports.StartProjectRequest{}, entities.NewValidationError("name", services.MsgNameRequired)
	}

	num, ok := body["deadlineDays"].(json.Number)
	if !ok {
		return ports.StartProjectRequest{}, entities.NewValidationError("deadlineDays", services.MsgDeadlineDaysRequired)
	}
	days, ok := wholeNumber(num)
	if !ok || days <= 0 || days > entities.MaxDeadlineDays {
		return ports.StartProjectRequest{}, entities.NewValidationError("deadlineDays", services.MsgDeadlineDaysRequired)
	}

	return ports.StartProjectRequest{Name: name, DeadlineDays: days}, nil
}

// wholeNumber accepts integral JSON numbers, including forms like 3.0 or 1e1.
func wholeNumber(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil {
		if i > math.MaxInt32 || i < math.MinInt32 {
			return 0, false
		}
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
