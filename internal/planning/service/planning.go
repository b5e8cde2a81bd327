// Package service exposes the planning use cases to the transport layer
package service

import (
	"context"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/internal/planning/events"
	"github.com/roosterplan/rooster-backend/internal/planning/orchestrator"
	"github.com/roosterplan/rooster-backend/internal/planning/repository"
	"github.com/roosterplan/rooster-backend/pkg/logger"
)

// PlanningService fronts the orchestrator and publishes domain events
// after a committed apply
type PlanningService struct {
	orch      *orchestrator.Orchestrator
	store     repository.Store
	publisher *events.PlanningEventPublisher
	log       *logger.Logger
}

// NewPlanningService creates a planning service. publisher may be nil when
// no broker is configured; runs then commit without announcements.
func NewPlanningService(
	orch *orchestrator.Orchestrator,
	store repository.Store,
	publisher *events.PlanningEventPublisher,
	log *logger.Logger,
) *PlanningService {
	return &PlanningService{
		orch:      orch,
		store:     store,
		publisher: publisher,
		log:       log.WithComponent("planning-service"),
	}
}

// Plan executes a planning run and, when an apply committed, announces it
func (s *PlanningService) Plan(ctx context.Context, req orchestrator.Request) (*domain.PlanningOutcome, error) {
	outcome, err := s.orch.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	if outcome.Committed && s.publisher != nil {
		run := &domain.PlanningRun{
			TeamID:       req.TeamID,
			HorizonStart: req.HorizonStart,
			HorizonEnd:   req.HorizonEnd,
			Initiator:    req.Initiator,
		}
		s.publisher.RunApplied(ctx, run, outcome)
		s.publisher.ShiftsCreated(ctx, req.TeamID, outcome)
	}

	return outcome, nil
}

// GetRun returns a persisted planning run
func (s *PlanningService) GetRun(ctx context.Context, id string) (*domain.PlanningRun, error) {
	return s.store.GetRun(ctx, id)
}
