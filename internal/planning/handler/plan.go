// Package handler exposes the planning API over HTTP
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/internal/planning/orchestrator"
	"github.com/roosterplan/rooster-backend/internal/planning/service"
	"github.com/roosterplan/rooster-backend/pkg/actor"
	"github.com/roosterplan/rooster-backend/pkg/config"
	"github.com/roosterplan/rooster-backend/pkg/httputil"
	"github.com/roosterplan/rooster-backend/pkg/logger"
)

// PlanHandler handles planning requests
type PlanHandler struct {
	service *service.PlanningService
	apply   config.ApplyConfig
	log     *logger.Logger
}

// NewPlanHandler creates a plan handler
func NewPlanHandler(svc *service.PlanningService, applyCfg config.ApplyConfig, log *logger.Logger) *PlanHandler {
	return &PlanHandler{
		service: svc,
		apply:   applyCfg,
		log:     log.WithComponent("plan-handler"),
	}
}

// RegisterRoutes registers the planning routes
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Route("/plan", func(r chi.Router) {
		r.Post("/", h.Plan)
		r.Get("/runs/{id}", h.GetRun)
	})
}

// PlanRequest is the request body for POST /plan
type PlanRequest struct {
	TeamScope    string    `json:"team_scope" validate:"required"`
	HorizonStart time.Time `json:"horizon_start" validate:"required"`
	HorizonEnd   time.Time `json:"horizon_end" validate:"required"`
	// ShiftTypes limits the run; empty means every registered type
	ShiftTypes []string `json:"shift_types" validate:"omitempty,dive,required"`
	Mode       string   `json:"mode" validate:"required,oneof=preview apply"`
	// Strict defaults to the configured strict_default when omitted
	Strict *bool `json:"strict"`
	// DeadlineMS bounds the run's wall time. When omitted, previews run
	// unbounded and applies fall back to the configured default_deadline_ms.
	DeadlineMS *int `json:"deadline_ms" validate:"omitempty,min=0"`
}

// runDeadline resolves the effective deadline for a run
func runDeadline(mode domain.RunMode, requested *int, cfg config.ApplyConfig) time.Duration {
	deadlineMS := 0
	if mode == domain.ModeApply {
		deadlineMS = cfg.DefaultDeadlineMS
	}
	if requested != nil {
		deadlineMS = *requested
	}
	return time.Duration(deadlineMS) * time.Millisecond
}

// Plan handles POST /plan
func (h *PlanHandler) Plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	strict := h.apply.StrictDefault
	if req.Strict != nil {
		strict = *req.Strict
	}

	var initiator *string
	if a := actor.FromContext(r.Context()); a != nil {
		initiator = &a.ID
	}

	types := make([]domain.ShiftTypeID, 0, len(req.ShiftTypes))
	for _, t := range req.ShiftTypes {
		types = append(types, domain.ShiftTypeID(t))
	}

	outcome, err := h.service.Plan(r.Context(), orchestrator.Request{
		TeamID:       req.TeamScope,
		HorizonStart: req.HorizonStart,
		HorizonEnd:   req.HorizonEnd,
		ShiftTypes:   types,
		Mode:         domain.RunMode(req.Mode),
		Strict:       strict,
		Deadline:     runDeadline(domain.RunMode(req.Mode), req.DeadlineMS, h.apply),
		Initiator:    initiator,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, outcome)
}

// RunResponse is the response body for GET /plan/runs/{id}
type RunResponse struct {
	ID           string          `json:"id"`
	TeamID       string          `json:"team_id"`
	HorizonStart time.Time       `json:"horizon_start"`
	HorizonEnd   time.Time       `json:"horizon_end"`
	Initiator    *string         `json:"initiator,omitempty"`
	RequestedAt  time.Time       `json:"requested_at"`
	Mode         domain.RunMode  `json:"mode"`
	Committed    bool            `json:"committed"`
	Outcome      json.RawMessage `json:"outcome,omitempty"`
}

// GetRun handles GET /plan/runs/{id}
func (h *PlanHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, RunResponse{
		ID:           run.ID,
		TeamID:       run.TeamID,
		HorizonStart: run.HorizonStart,
		HorizonEnd:   run.HorizonEnd,
		Initiator:    run.Initiator,
		RequestedAt:  run.RequestedAt,
		Mode:         run.Mode,
		Committed:    run.Committed,
		Outcome:      run.Outcome,
	})
}
