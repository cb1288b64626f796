// Package negotiation implements versioned Proposal negotiation
// against published Opportunities.
//
// Version history is append-only: version numbers are strictly
// increasing integers starting at 1, and acceptance is always tied to
// a specific version number, never to "latest". A party can therefore
// never be bound to a version it has not seen. Mutual acceptance of
// the current version is a one-way gate into FINAL_ACCEPTED.
package negotiation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/party"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

// OpportunityLocker soft-locks an Opportunity after finalization.
// Implemented by the opportunity registry.
type OpportunityLocker interface {
	Lock(ctx context.Context, opportunityID string) error
}

// Negotiator owns Proposal aggregates.
type Negotiator struct {
	store   store.Store
	parties domain.PartyResolver
	events  *domain.EventDispatcher
	locker  OpportunityLocker
}

// New creates a proposal negotiator.
func New(st store.Store, parties domain.PartyResolver, events *domain.EventDispatcher, locker OpportunityLocker) *Negotiator {
	return &Negotiator{store: st, parties: parties, events: events, locker: locker}
}

// Submit creates a Proposal with version 1 in SUBMITTED against a
// PUBLISHED opportunity. A missing or CLOSED opportunity fails with
// NOT_FOUND; a locked one with STATE_CONFLICT.
func (n *Negotiator) Submit(ctx context.Context, opportunityID, initiatorID string, terms domain.Terms, comment string) (*domain.Proposal, error) {
	if err := validateTerms(terms); err != nil {
		return nil, err
	}
	if _, err := party.RequireVerified(ctx, n.parties, initiatorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Proposal{
		ID:               domain.NewProposalID(),
		OpportunityID:    opportunityID,
		InitiatorPartyID: initiatorID,
		Status:           domain.ProposalSubmitted,
		Total:            terms.Total,
		Currency:         terms.Currency,
		PaymentTerms:     terms.PaymentTerms,
		CurrentVersion:   1,
		Versions: []domain.ProposalVersion{{
			Version:   1,
			Terms:     terms,
			Comment:   comment,
			CreatedAt: now,
			CreatedBy: initiatorID,
			Status:    string(domain.ProposalSubmitted),
		}},
	}

	guard := func(v store.View) error {
		o, err := v.Opportunity(opportunityID)
		if err != nil {
			return err
		}
		if o.Status != domain.OpportunityPublished {
			// A CLOSED or still-draft opportunity is invisible to
			// negotiation.
			return apperrors.NotFound(apperrors.CodeOpportunityNotFound,
				"opportunity "+opportunityID+" is not open for proposals")
		}
		if o.Locked {
			return apperrors.StateConflict(apperrors.CodeOpportunityLocked,
				"opportunity "+opportunityID+" is locked by a finalized proposal")
		}
		if o.CreatorPartyID == initiatorID {
			return apperrors.Validation(apperrors.CodeValidationFailed,
				"opportunity creator cannot submit a proposal to itself")
		}
		p.ReceiverPartyID = o.CreatorPartyID
		p.OwnerPartyID = o.CreatorPartyID
		return nil
	}

	if err := n.store.CreateProposal(ctx, p, guard); err != nil {
		return nil, err
	}

	n.dispatch(ctx, domain.NewEvent(domain.EventProposalSubmitted, "proposal", p.ID, initiatorID,
		domain.ProposalVersionedPayload{
			ProposalID:    p.ID,
			OpportunityID: p.OpportunityID,
			Version:       1,
			AuthoredBy:    initiatorID,
		}))

	logger.Info("proposal submitted",
		zap.String("proposal_id", p.ID),
		zap.String("opportunity_id", opportunityID),
		zap.String("initiator", initiatorID),
	)
	return p, nil
}

// ProposeNewVersion appends a counter-offer as version
// currentVersion+1. baseVersion is the version the actor read; a
// stale base fails with STATE_CONFLICT. The new version supersedes
// all per-party acceptances: accepting an older version afterwards
// has no effect.
//
// Status after the append depends on who authored it: the opportunity
// owner countering means CHANGES_REQUESTED, the other party countering
// means UNDER_REVIEW.
func (n *Negotiator) ProposeNewVersion(ctx context.Context, proposalID string, baseVersion int, terms domain.Terms, comment, actorID string) (*domain.Proposal, error) {
	if err := validateTerms(terms); err != nil {
		return nil, err
	}
	if _, err := party.RequireVerified(ctx, n.parties, actorID); err != nil {
		return nil, err
	}

	var authoredBy domain.PartyRole
	p, err := n.store.MutateProposal(ctx, proposalID, store.AnyGeneration, func(_ store.View, p *domain.Proposal) error {
		role := p.RoleOf(actorID)
		if role == "" {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"party "+actorID+" is not a counterpart of proposal "+proposalID)
		}
		if err := requireNegotiable(p); err != nil {
			return err
		}
		if baseVersion != p.CurrentVersion {
			return apperrors.StateConflict(apperrors.CodeProposalVersionStale,
				fmt.Sprintf("proposal %s is at version %d, not %d", proposalID, p.CurrentVersion, baseVersion))
		}

		authoredBy = role
		status := domain.ProposalUnderReview
		if role == domain.RoleOwner {
			status = domain.ProposalChangesRequested
		}

		next := p.CurrentVersion + 1
		p.Versions = append(p.Versions, domain.ProposalVersion{
			Version:   next,
			Terms:     terms,
			Comment:   comment,
			CreatedAt: time.Now().UTC(),
			CreatedBy: actorID,
			Status:    string(status),
		})
		p.CurrentVersion = next
		p.Status = status
		p.Total = terms.Total
		p.Currency = terms.Currency
		p.PaymentTerms = terms.PaymentTerms
		// A new version supersedes whatever either side accepted
		// before; acceptance is always version-scoped.
		p.Acceptance.OwnerAcceptedVersion = nil
		p.Acceptance.OtherAcceptedVersion = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	n.dispatch(ctx, domain.NewEvent(domain.EventProposalVersioned, "proposal", p.ID, actorID,
		domain.ProposalVersionedPayload{
			ProposalID:    p.ID,
			OpportunityID: p.OpportunityID,
			Version:       p.CurrentVersion,
			AuthoredBy:    actorID,
		}))

	logger.Info("proposal versioned",
		zap.String("proposal_id", p.ID),
		zap.Int("version", p.CurrentVersion),
		zap.String("authored_by_role", string(authoredBy)),
	)
	return p, nil
}

// Accept records version-scoped acceptance for one negotiation role.
// Accepting any version other than the current one fails with
// STATE_CONFLICT and leaves the proposal untouched.
//
// When both roles have accepted the same (current) version the
// proposal finalizes: MutuallyAcceptedVersion and FinalAcceptedAt are
// set, status becomes FINAL_ACCEPTED, the opportunity is soft-locked
// and PROPOSAL_FINAL_ACCEPTED is dispatched (which drives contract
// generation). The check is a pure equality of the two stored
// versions, so simultaneous acceptance commutes: whichever writer
// lands second observes equality and finalizes.
func (n *Negotiator) Accept(ctx context.Context, proposalID string, role domain.PartyRole, version int, actorID string) (*domain.Proposal, error) {
	if role != domain.RoleOwner && role != domain.RoleOther {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "role must be OWNER or OTHER")
	}
	if _, err := party.RequireVerified(ctx, n.parties, actorID); err != nil {
		return nil, err
	}

	finalized := false
	p, err := n.store.MutateProposal(ctx, proposalID, store.AnyGeneration, func(_ store.View, p *domain.Proposal) error {
		if p.PartyFor(role) != actorID {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"party "+actorID+" does not hold the "+string(role)+" role on proposal "+proposalID)
		}
		if err := requireNegotiable(p); err != nil {
			return err
		}
		if version != p.CurrentVersion {
			return apperrors.StateConflict(apperrors.CodeProposalVersionStale,
				fmt.Sprintf("cannot accept version %d of proposal %s: current version is %d",
					version, proposalID, p.CurrentVersion))
		}

		v := version
		if role == domain.RoleOwner {
			p.Acceptance.OwnerAcceptedVersion = &v
		} else {
			p.Acceptance.OtherAcceptedVersion = &v
		}

		owner, other := p.Acceptance.OwnerAcceptedVersion, p.Acceptance.OtherAcceptedVersion
		if owner != nil && other != nil && *owner == *other {
			mv := *owner
			now := time.Now().UTC()
			p.Acceptance.MutuallyAcceptedVersion = &mv
			p.Acceptance.FinalAcceptedAt = &now
			p.Status = domain.ProposalFinalAccepted
			p.Versions[p.CurrentVersion-1].Status = string(domain.ProposalFinalAccepted)
			finalized = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finalized {
		n.finalize(ctx, p, actorID)
	}
	return p, nil
}

// Reject terminates a proposal. Fails with STATE_CONFLICT when the
// proposal is already FINAL_ACCEPTED; rejecting an already-REJECTED
// proposal is an idempotent no-op.
func (n *Negotiator) Reject(ctx context.Context, proposalID, reason, actorID string) (*domain.Proposal, error) {
	if _, err := party.RequireVerified(ctx, n.parties, actorID); err != nil {
		return nil, err
	}

	alreadyRejected := false
	p, err := n.store.MutateProposal(ctx, proposalID, store.AnyGeneration, func(_ store.View, p *domain.Proposal) error {
		if p.RoleOf(actorID) == "" {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"party "+actorID+" is not a counterpart of proposal "+proposalID)
		}
		switch p.Status {
		case domain.ProposalFinalAccepted:
			return apperrors.StateConflict(apperrors.CodeProposalFinalized,
				"proposal "+proposalID+" is finalized and cannot be rejected")
		case domain.ProposalRejected:
			alreadyRejected = true
			return nil
		}
		p.Status = domain.ProposalRejected
		p.RejectReason = reason
		p.Versions[p.CurrentVersion-1].Status = string(domain.ProposalRejected)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadyRejected {
		n.dispatch(ctx, domain.NewEvent(domain.EventProposalRejected, "proposal", p.ID, actorID, nil))
		logger.Info("proposal rejected",
			zap.String("proposal_id", p.ID),
			zap.String("reason", reason),
		)
	}
	return p, nil
}

// Get retrieves a Proposal.
func (n *Negotiator) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	return n.store.GetProposal(ctx, id)
}

// ListByOpportunity returns proposals negotiated against an opportunity.
func (n *Negotiator) ListByOpportunity(ctx context.Context, opportunityID string) ([]*domain.Proposal, error) {
	return n.store.ListProposals(ctx, store.ProposalFilter{OpportunityID: opportunityID})
}

// finalize runs the post-commit side of finalization: soft-lock the
// opportunity and announce PROPOSAL_FINAL_ACCEPTED. Both are safe to
// repeat, so a crash between commit and announce is recovered by
// idempotent contract generation.
func (n *Negotiator) finalize(ctx context.Context, p *domain.Proposal, actorID string) {
	if n.locker != nil {
		if err := n.locker.Lock(ctx, p.OpportunityID); err != nil {
			logger.Warn("failed to lock opportunity after finalization",
				zap.String("opportunity_id", p.OpportunityID),
				zap.String("proposal_id", p.ID),
				zap.Error(err),
			)
		}
	}

	n.dispatch(ctx, domain.NewEvent(domain.EventProposalFinalAccepted, "proposal", p.ID, actorID,
		domain.ProposalFinalAcceptedPayload{
			ProposalID:      p.ID,
			OpportunityID:   p.OpportunityID,
			AcceptedVersion: *p.Acceptance.MutuallyAcceptedVersion,
			FinalAcceptedAt: *p.Acceptance.FinalAcceptedAt,
		}))

	logger.Info("proposal finalized",
		zap.String("proposal_id", p.ID),
		zap.Int("mutually_accepted_version", *p.Acceptance.MutuallyAcceptedVersion),
	)
}

func (n *Negotiator) dispatch(ctx context.Context, ev *domain.DomainEvent) {
	if n.events == nil {
		return
	}
	if err := n.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("proposal event delivery incomplete",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
			zap.Error(err),
		)
	}
}

// requireNegotiable rejects mutations on terminal proposals.
func requireNegotiable(p *domain.Proposal) error {
	switch p.Status {
	case domain.ProposalFinalAccepted:
		return apperrors.StateConflict(apperrors.CodeProposalFinalized,
			"proposal "+p.ID+" is finalized; no further negotiation is possible")
	case domain.ProposalRejected:
		return apperrors.StateConflict(apperrors.CodeProposalRejected,
			"proposal "+p.ID+" is rejected")
	}
	return nil
}

func validateTerms(terms domain.Terms) error {
	if terms.Total <= 0 {
		return apperrors.Validation(apperrors.CodeValidationFailed, "terms total must be positive")
	}
	if len(terms.Currency) != 3 {
		return apperrors.Validation(apperrors.CodeValidationFailed, "currency must be a 3-letter code")
	}
	return nil
}
