// Package registry implements the Opportunity lifecycle: draft →
// published → closed. It is the leaf dependency for everything
// downstream; negotiation only sees PUBLISHED opportunities.
package registry

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/domain"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/party"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

// CreateSpec carries the fields needed to draft an Opportunity.
type CreateSpec struct {
	Intent         domain.OpportunityIntent
	Title          string
	Description    string
	Scope          domain.ScopeRef
	Location       string
	PaymentTerms   string
	CreatorPartyID string
}

// Registry owns Opportunity aggregates.
type Registry struct {
	store   store.Store
	parties domain.PartyResolver
	events  *domain.EventDispatcher
}

// New creates an opportunity registry.
func New(st store.Store, parties domain.PartyResolver, events *domain.EventDispatcher) *Registry {
	return &Registry{store: st, parties: parties, events: events}
}

// Create drafts a new Opportunity. Validation happens before any
// state mutation.
func (r *Registry) Create(ctx context.Context, spec CreateSpec) (*domain.Opportunity, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	if _, err := party.RequireVerified(ctx, r.parties, spec.CreatorPartyID); err != nil {
		return nil, err
	}

	o := &domain.Opportunity{
		ID:             domain.NewOpportunityID(),
		Intent:         spec.Intent,
		Status:         domain.OpportunityDraft,
		Title:          strings.TrimSpace(spec.Title),
		Description:    spec.Description,
		Scope:          spec.Scope,
		Location:       spec.Location,
		PaymentTerms:   spec.PaymentTerms,
		CreatorPartyID: spec.CreatorPartyID,
	}
	if err := r.store.CreateOpportunity(ctx, o); err != nil {
		return nil, err
	}

	logger.Info("opportunity drafted",
		zap.String("opportunity_id", o.ID),
		zap.String("creator", o.CreatorPartyID),
		zap.String("intent", string(o.Intent)),
	)
	return o, nil
}

// Publish moves a DRAFT Opportunity to PUBLISHED, making it visible
// for Proposal submission. Fails with STATE_CONFLICT when the
// opportunity is not in DRAFT.
func (r *Registry) Publish(ctx context.Context, id, actorID string, expectedGen int64) (*domain.Opportunity, error) {
	if _, err := party.RequireVerified(ctx, r.parties, actorID); err != nil {
		return nil, err
	}

	o, err := r.store.MutateOpportunity(ctx, id, expectedGen, func(_ store.View, o *domain.Opportunity) error {
		if o.CreatorPartyID != actorID {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"only the creator may publish opportunity "+id)
		}
		if !domain.OpportunityCanTransition(o.Status, domain.OpportunityPublished) {
			return apperrors.StateConflict(apperrors.CodeOpportunityNotDraft,
				"opportunity "+id+" is "+string(o.Status)+", not DRAFT")
		}
		o.Status = domain.OpportunityPublished
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.dispatch(ctx, domain.EventOpportunityPublished, o.ID, actorID)
	return o, nil
}

// Close moves an Opportunity to CLOSED. Idempotent: closing an
// already-CLOSED opportunity is a no-op.
func (r *Registry) Close(ctx context.Context, id, actorID string, expectedGen int64) (*domain.Opportunity, error) {
	if _, err := party.RequireVerified(ctx, r.parties, actorID); err != nil {
		return nil, err
	}

	alreadyClosed := false
	o, err := r.store.MutateOpportunity(ctx, id, expectedGen, func(_ store.View, o *domain.Opportunity) error {
		if o.Status == domain.OpportunityClosed {
			alreadyClosed = true
			return nil
		}
		o.Status = domain.OpportunityClosed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadyClosed {
		r.dispatch(ctx, domain.EventOpportunityClosed, o.ID, actorID)
	}
	return o, nil
}

// Lock marks an Opportunity as soft-locked after a proposal against it
// is finalized. New submissions are refused; open negotiations are
// unaffected. Idempotent.
func (r *Registry) Lock(ctx context.Context, id string) error {
	_, err := r.store.MutateOpportunity(ctx, id, store.AnyGeneration, func(_ store.View, o *domain.Opportunity) error {
		o.Locked = true
		return nil
	})
	return err
}

// Get retrieves an Opportunity.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Opportunity, error) {
	return r.store.GetOpportunity(ctx, id)
}

// List returns opportunities matching the filter.
func (r *Registry) List(ctx context.Context, f store.OpportunityFilter) ([]*domain.Opportunity, error) {
	return r.store.ListOpportunities(ctx, f)
}

func (r *Registry) dispatch(ctx context.Context, typ domain.EventType, id, actor string) {
	if r.events == nil {
		return
	}
	ev := domain.NewEvent(typ, "opportunity", id, actor, nil)
	if err := r.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("opportunity event delivery incomplete",
			zap.String("event_type", string(typ)),
			zap.String("opportunity_id", id),
			zap.Error(err),
		)
	}
}

func validateSpec(spec CreateSpec) error {
	if !spec.Intent.Valid() {
		return apperrors.Validation(apperrors.CodeValidationFailed, "intent must be REQUEST_SERVICE, OFFER_SERVICE or BOTH")
	}
	if strings.TrimSpace(spec.Title) == "" {
		return apperrors.Validation(apperrors.CodeValidationFailed, "title is required")
	}
	if spec.Scope.IsZero() || !spec.Scope.Type.Valid() || spec.Scope.ID == "" {
		return apperrors.Validation(apperrors.CodeValidationFailed, "a valid scope reference is required")
	}
	if spec.CreatorPartyID == "" {
		return apperrors.Validation(apperrors.CodeValidationFailed, "creator party id is required")
	}
	return nil
}
