// Package engagement binds signed Contracts to concrete execution
// scopes and drives the PLANNED → ACTIVE → COMPLETED | CANCELLED
// machine. There is no un-starting: ACTIVE never returns to PLANNED.
package engagement

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/party"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

// Scheduler owns Engagement aggregates.
type Scheduler struct {
	store   store.Store
	parties domain.PartyResolver
	events  *domain.EventDispatcher
	now     func() time.Time
}

// New creates an engagement scheduler.
func New(st store.Store, parties domain.PartyResolver, events *domain.EventDispatcher) *Scheduler {
	return &Scheduler{store: st, parties: parties, events: events, now: time.Now}
}

// WithClock overrides the scheduler clock; used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Create plans an Engagement under a SIGNED contract. An unsigned
// contract fails with PRECONDITION; a scope outside the contract's
// declared scope fails with VALIDATION. Contract state and scope are
// validated in the same snapshot the insert commits against.
func (s *Scheduler) Create(ctx context.Context, contractID string, scope domain.ScopeRef, engagementType, actorID string) (*domain.Engagement, error) {
	if strings.TrimSpace(engagementType) == "" {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "engagement type is required")
	}
	if !scope.Type.Valid() || scope.ID == "" {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "a valid scope reference is required")
	}
	if _, err := party.RequireVerified(ctx, s.parties, actorID); err != nil {
		return nil, err
	}

	e := &domain.Engagement{
		ID:            domain.NewEngagementID(),
		ContractID:    contractID,
		Type:          engagementType,
		Status:        domain.EngagementPlanned,
		AssignedScope: scope,
	}

	guard := func(v store.View) error {
		c, err := v.Contract(contractID)
		if err != nil {
			return err
		}
		if c.Status != domain.ContractSigned {
			return apperrors.Precondition(apperrors.CodeContractNotSigned,
				"contract "+contractID+" is "+string(c.Status)+", not SIGNED")
		}
		if c.BuyerPartyID != actorID && c.ProviderPartyID != actorID {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"party "+actorID+" is not a counterpart of contract "+contractID)
		}
		if !scope.Within(c.Scope) {
			return apperrors.Validation(apperrors.CodeScopeOutOfBounds,
				"scope "+scope.ID+" falls outside contract scope "+c.Scope.ID)
		}
		return nil
	}

	if err := s.store.CreateEngagement(ctx, e, guard); err != nil {
		return nil, err
	}

	s.dispatch(ctx, domain.NewEvent(domain.EventEngagementCreated, "engagement", e.ID, actorID, nil))
	logger.Info("engagement planned",
		zap.String("engagement_id", e.ID),
		zap.String("contract_id", contractID),
		zap.String("scope", scope.ID),
	)
	return e, nil
}

// Start moves a PLANNED engagement to ACTIVE. startedAt must not be in
// the future, and the backing contract must still be SIGNED: a
// contract cancelled while the engagement was PLANNED blocks the start.
func (s *Scheduler) Start(ctx context.Context, id string, startedAt time.Time, actorID string, expectedGen int64) (*domain.Engagement, error) {
	if _, err := party.RequireVerified(ctx, s.parties, actorID); err != nil {
		return nil, err
	}
	if startedAt.IsZero() {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "startedAt is required")
	}
	if startedAt.After(s.now()) {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "startedAt cannot be in the future")
	}

	e, err := s.store.MutateEngagement(ctx, id, expectedGen, func(v store.View, e *domain.Engagement) error {
		if !domain.EngagementCanTransition(e.Status, domain.EngagementActive) {
			return apperrors.StateConflict(apperrors.CodeEngagementNotPlanned,
				"engagement "+id+" is "+string(e.Status)+", not PLANNED")
		}
		c, err := v.Contract(e.ContractID)
		if err != nil {
			return err
		}
		if c.Status != domain.ContractSigned {
			return apperrors.Precondition(apperrors.CodeContractNotSigned,
				"contract "+e.ContractID+" is no longer SIGNED")
		}
		t := startedAt.UTC()
		e.Status = domain.EngagementActive
		e.StartedAt = &t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, domain.NewEvent(domain.EventEngagementStarted, "engagement", e.ID, actorID,
		domain.EngagementStartedPayload{
			EngagementID: e.ID,
			ContractID:   e.ContractID,
			StartedAt:    *e.StartedAt,
		}))
	logger.Info("engagement started", zap.String("engagement_id", e.ID))
	return e, nil
}

// Complete moves an ACTIVE engagement to COMPLETED (terminal).
func (s *Scheduler) Complete(ctx context.Context, id, actorID string, expectedGen int64) (*domain.Engagement, error) {
	if _, err := party.RequireVerified(ctx, s.parties, actorID); err != nil {
		return nil, err
	}

	e, err := s.store.MutateEngagement(ctx, id, expectedGen, func(_ store.View, e *domain.Engagement) error {
		if !domain.EngagementCanTransition(e.Status, domain.EngagementCompleted) {
			return apperrors.StateConflict(apperrors.CodeEngagementTerminal,
				"engagement "+id+" cannot complete from "+string(e.Status))
		}
		now := s.now().UTC()
		e.Status = domain.EngagementCompleted
		e.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, domain.NewEvent(domain.EventEngagementCompleted, "engagement", e.ID, actorID, nil))
	logger.Info("engagement completed", zap.String("engagement_id", e.ID))
	return e, nil
}

// Cancel moves a PLANNED or ACTIVE engagement to CANCELLED (terminal).
func (s *Scheduler) Cancel(ctx context.Context, id, actorID string, expectedGen int64) (*domain.Engagement, error) {
	if _, err := party.RequireVerified(ctx, s.parties, actorID); err != nil {
		return nil, err
	}

	e, err := s.store.MutateEngagement(ctx, id, expectedGen, func(_ store.View, e *domain.Engagement) error {
		if !domain.EngagementCanTransition(e.Status, domain.EngagementCancelled) {
			return apperrors.StateConflict(apperrors.CodeEngagementTerminal,
				"engagement "+id+" cannot cancel from "+string(e.Status))
		}
		e.Status = domain.EngagementCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, domain.NewEvent(domain.EventEngagementCancelled, "engagement", e.ID, actorID, nil))
	logger.Info("engagement cancelled", zap.String("engagement_id", e.ID))
	return e, nil
}

// Get retrieves an Engagement.
func (s *Scheduler) Get(ctx context.Context, id string) (*domain.Engagement, error) {
	return s.store.GetEngagement(ctx, id)
}

// ListByContract returns the engagements under a contract.
func (s *Scheduler) ListByContract(ctx context.Context, contractID string) ([]*domain.Engagement, error) {
	return s.store.ListEngagementsByContract(ctx, contractID)
}

func (s *Scheduler) dispatch(ctx context.Context, ev *domain.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("engagement event delivery incomplete",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
			zap.Error(err),
		)
	}
}
