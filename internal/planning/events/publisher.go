// Package events publishes planning domain events. Publishing is best
// effort: a broker failure is logged but never fails the run that already
// committed.
package events

import (
	"context"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/pkg/logger"
	"github.com/roosterplan/rooster-backend/pkg/messaging"
)

// EventBus is the publishing seam; pkg/messaging.Publisher implements it
type EventBus interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// PlanningEventPublisher publishes the planner's domain events
type PlanningEventPublisher struct {
	bus EventBus
	log *logger.Logger
}

// NewPlanningEventPublisher creates an event publisher
func NewPlanningEventPublisher(bus EventBus, log *logger.Logger) *PlanningEventPublisher {
	return &PlanningEventPublisher{
		bus: bus,
		log: log.WithComponent("planning-events"),
	}
}

// RunApplied announces a committed apply run
func (p *PlanningEventPublisher) RunApplied(ctx context.Context, run *domain.PlanningRun, outcome *domain.PlanningOutcome) {
	initiator := ""
	if run.Initiator != nil {
		initiator = *run.Initiator
	}

	err := p.bus.Publish(ctx, messaging.EventRunApplied, messaging.RunAppliedEvent{
		RunID:        outcome.RunID,
		TeamID:       run.TeamID,
		HorizonStart: run.HorizonStart,
		HorizonEnd:   run.HorizonEnd,
		Initiator:    initiator,
		ShiftCount:   len(outcome.Assignments),
		SystemScore:  outcome.Metrics.SystemScore,
	})
	if err != nil {
		p.log.WithError(err).Warn().
			Str("run_id", outcome.RunID).
			Msg("failed to publish run applied event")
	}
}

// ShiftsCreated announces the shifts a committed apply run wrote. Skipped
// when the run created nothing new (idempotent re-apply).
func (p *PlanningEventPublisher) ShiftsCreated(ctx context.Context, teamID string, outcome *domain.PlanningOutcome) {
	if len(outcome.CreatedShiftIDs) == 0 {
		return
	}

	err := p.bus.Publish(ctx, messaging.EventShiftsCreated, messaging.ShiftsCreatedEvent{
		RunID:    outcome.RunID,
		TeamID:   teamID,
		ShiftIDs: outcome.CreatedShiftIDs,
	})
	if err != nil {
		p.log.WithError(err).Warn().
			Str("run_id", outcome.RunID).
			Msg("failed to publish shifts created event")
	}
}
