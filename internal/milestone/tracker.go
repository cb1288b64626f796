// Package milestone tracks deliverables and checkpoints under
// Engagements. Progress is forward-only: PENDING → IN_PROGRESS →
// COMPLETED, one step at a time.
package milestone

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

// Tracker owns Milestone aggregates.
type Tracker struct {
	store   store.Store
	parties domain.PartyResolver
	events  *domain.EventDispatcher
}

// New creates a milestone tracker.
func New(st store.Store, parties domain.PartyResolver, events *domain.EventDispatcher) *Tracker {
	return &Tracker{store: st, parties: parties, events: events}
}

// Create adds a Milestone under an existing Engagement, denormalizing
// the engagement's contract id at creation time.
func (t *Tracker) Create(ctx context.Context, engagementID, title string, typ domain.MilestoneType, dueDate time.Time, actorID string) (*domain.Milestone, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperrors.Validation(apperrors.CodeMilestoneIncomplete, "title is required")
	}
	if !typ.Valid() {
		return nil, apperrors.Validation(apperrors.CodeMilestoneIncomplete, "type must be DELIVERABLE or MILESTONE")
	}
	if dueDate.IsZero() {
		return nil, apperrors.Validation(apperrors.CodeMilestoneIncomplete, "due date is required")
	}
	if _, err := party.RequireVerified(ctx, t.parties, actorID); err != nil {
		return nil, err
	}

	m := &domain.Milestone{
		ID:           domain.NewMilestoneID(),
		EngagementID: engagementID,
		Title:        strings.TrimSpace(title),
		Type:         typ,
		Status:       domain.MilestonePending,
		DueDate:      dueDate.UTC(),
	}

	guard := func(v store.View) error {
		e, err := v.Engagement(engagementID)
		if err != nil {
			return err
		}
		if e.Status.Terminal() {
			return apperrors.StateConflict(apperrors.CodeEngagementTerminal,
				"engagement "+engagementID+" is "+string(e.Status))
		}
		m.ContractID = e.ContractID
		return nil
	}

	if err := t.store.CreateMilestone(ctx, m, guard); err != nil {
		return nil, err
	}

	t.dispatch(ctx, domain.NewEvent(domain.EventMilestoneCreated, "milestone", m.ID, actorID, nil))
	logger.Info("milestone created",
		zap.String("milestone_id", m.ID),
		zap.String("engagement_id", engagementID),
		zap.String("type", string(m.Type)),
	)
	return m, nil
}

// Advance moves a Milestone one step forward. Backward moves and
// skips (PENDING directly to COMPLETED) fail with STATE_CONFLICT.
// The denormalized contract id is re-validated against the engagement
// on every advance; drift means corrupted referential state.
func (t *Tracker) Advance(ctx context.Context, id string, newStatus domain.MilestoneStatus, actorID string, expectedGen int64) (*domain.Milestone, error) {
	if _, err := party.RequireVerified(ctx, t.parties, actorID); err != nil {
		return nil, err
	}

	completed := false
	m, err := t.store.MutateMilestone(ctx, id, expectedGen, func(v store.View, m *domain.Milestone) error {
		e, err := v.Engagement(m.EngagementID)
		if err != nil {
			return err
		}
		if m.ContractID != e.ContractID {
			return apperrors.Internal(apperrors.CodeMilestoneDrift,
				"milestone "+id+" contract reference drifted from its engagement")
		}
		if !domain.MilestoneCanTransition(m.Status, newStatus) {
			return apperrors.StateConflict(apperrors.CodeMilestoneBackward,
				"milestone "+id+" cannot move from "+string(m.Status)+" to "+string(newStatus))
		}
		m.Status = newStatus
		if newStatus == domain.MilestoneCompleted {
			now := time.Now().UTC()
			m.CompletedAt = &now
			completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		t.dispatch(ctx, domain.NewEvent(domain.EventMilestoneCompleted, "milestone", m.ID, actorID,
			domain.MilestoneCompletedPayload{
				MilestoneID:  m.ID,
				EngagementID: m.EngagementID,
				ContractID:   m.ContractID,
				Title:        m.Title,
			}))
	} else {
		t.dispatch(ctx, domain.NewEvent(domain.EventMilestoneAdvanced, "milestone", m.ID, actorID, nil))
	}
	logger.Info("milestone advanced",
		zap.String("milestone_id", m.ID),
		zap.String("status", string(m.Status)),
	)
	return m, nil
}

// Get retrieves a Milestone.
func (t *Tracker) Get(ctx context.Context, id string) (*domain.Milestone, error) {
	return t.store.GetMilestone(ctx, id)
}

// ListByEngagement returns the milestones under an engagement.
func (t *Tracker) ListByEngagement(ctx context.Context, engagementID string) ([]*domain.Milestone, error) {
	return t.store.ListMilestonesByEngagement(ctx, engagementID)
}

func (t *Tracker) dispatch(ctx context.Context, ev *domain.DomainEvent) {
	if t.events == nil {
		return
	}
	if err := t.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("milestone event delivery incomplete",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
			zap.Error(err),
		)
	}
}
