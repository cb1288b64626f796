// Package contract derives binding Contracts from finalized Proposals
// and manages their DRAFT → SIGNED → CANCELLED lifecycle.
//
// Generation is at-most-once per proposal: the store enforces a unique
// constraint on the source proposal id transactionally, so the
// finalization hook may be retried freely and always converges on the
// same contract.
package contract

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/party"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

// Generator owns Contract aggregates.
type Generator struct {
	store   store.Store
	parties domain.PartyResolver
	events  *domain.EventDispatcher
}

// New creates a contract generator.
func New(st store.Store, parties domain.PartyResolver, events *domain.EventDispatcher) *Generator {
	return &Generator{store: st, parties: parties, events: events}
}

// RegisterHooks subscribes the generator to PROPOSAL_FINAL_ACCEPTED so
// every finalized proposal yields its contract automatically.
func (g *Generator) RegisterHooks(d *domain.EventDispatcher) {
	d.Register(domain.EventProposalFinalAccepted, func(ctx context.Context, ev *domain.DomainEvent) error {
		var payload domain.ProposalFinalAcceptedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return apperrors.Wrap(err, apperrors.KindInternal, apperrors.CodeValidationFailed,
				"decode final-accepted payload")
		}
		_, err := g.GenerateFromProposal(ctx, payload.ProposalID)
		return err
	})
}

// termsSnapshot is the immutable terms document frozen into a
// generated contract.
type termsSnapshot struct {
	SourceProposalID string       `json:"source_proposal_id"`
	AcceptedVersion  int          `json:"accepted_version"`
	Terms            domain.Terms `json:"terms"`
	FinalAcceptedAt  time.Time    `json:"final_accepted_at"`
}

// GenerateFromProposal derives the Contract for a FINAL_ACCEPTED
// proposal. Calling it again with the same proposal id returns the
// existing contract without creating a duplicate.
//
// Buyer and provider follow the opportunity intent: with
// REQUEST_SERVICE the opportunity owner buys and the counterpart
// provides; with OFFER_SERVICE the roles flip; BOTH defaults to the
// owner buying.
func (g *Generator) GenerateFromProposal(ctx context.Context, proposalID string) (*domain.Contract, error) {
	// SourceProposalID must be set before CreateContract runs: the
	// store dedupes on it ahead of the guard, and that lookup is what
	// makes replays converge on the existing contract.
	c := &domain.Contract{
		ID:               domain.NewContractID(),
		SourceProposalID: proposalID,
		Status:           domain.ContractDraft,
	}

	guard := func(v store.View) error {
		p, err := v.Proposal(proposalID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProposalFinalAccepted || p.Acceptance.MutuallyAcceptedVersion == nil {
			return apperrors.Precondition(apperrors.CodeProposalNotFinal,
				"proposal "+proposalID+" is not FINAL_ACCEPTED")
		}
		o, err := v.Opportunity(p.OpportunityID)
		if err != nil {
			return err
		}

		buyerID, providerID := p.OwnerPartyID, p.PartyFor(domain.RoleOther)
		if o.Intent == domain.IntentOfferService {
			buyerID, providerID = providerID, buyerID
		}
		buyer, err := g.resolveParty(ctx, buyerID)
		if err != nil {
			return err
		}
		provider, err := g.resolveParty(ctx, providerID)
		if err != nil {
			return err
		}

		accepted := p.Versions[*p.Acceptance.MutuallyAcceptedVersion-1]
		terms, err := json.Marshal(termsSnapshot{
			SourceProposalID: p.ID,
			AcceptedVersion:  accepted.Version,
			Terms:            accepted.Terms,
			FinalAcceptedAt:  *p.Acceptance.FinalAcceptedAt,
		})
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindInternal, apperrors.CodeValidationFailed,
				"encode terms snapshot")
		}

		c.Scope = o.Scope
		c.BuyerPartyID = buyerID
		c.BuyerPartyType = buyer.Type
		c.ProviderPartyID = providerID
		c.ProviderPartyType = provider.Type
		c.Terms = terms
		return nil
	}

	created, fresh, err := g.store.CreateContract(ctx, c, guard)
	if err != nil {
		return nil, err
	}
	if !fresh {
		logger.Debug("contract generation replayed",
			zap.String("proposal_id", proposalID),
			zap.String("contract_id", created.ID),
		)
		return created, nil
	}

	g.dispatch(ctx, domain.NewEvent(domain.EventContractCreated, "contract", created.ID, "system", nil))
	logger.Info("contract generated from proposal",
		zap.String("contract_id", created.ID),
		zap.String("proposal_id", proposalID),
	)
	return created, nil
}

// GenerateSubContract creates a child contract under a SIGNED parent.
// The parent being unsigned fails with PRECONDITION. The sub-contract
// inherits the parent's scope and starts in DRAFT.
func (g *Generator) GenerateSubContract(ctx context.Context, parentContractID, buyerID, providerID string, terms json.RawMessage) (*domain.Contract, error) {
	if len(terms) == 0 {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "sub-contract terms are required")
	}
	buyer, err := party.RequireVerified(ctx, g.parties, buyerID)
	if err != nil {
		return nil, err
	}
	provider, err := party.RequireVerified(ctx, g.parties, providerID)
	if err != nil {
		return nil, err
	}

	c := &domain.Contract{
		ID:                domain.NewContractID(),
		Status:            domain.ContractDraft,
		ParentContractID:  parentContractID,
		BuyerPartyID:      buyerID,
		BuyerPartyType:    buyer.Type,
		ProviderPartyID:   providerID,
		ProviderPartyType: provider.Type,
		Terms:             terms,
	}

	guard := func(v store.View) error {
		parent, err := v.Contract(parentContractID)
		if err != nil {
			return err
		}
		if parent.Status != domain.ContractSigned {
			return apperrors.Precondition(apperrors.CodeParentNotSigned,
				"parent contract "+parentContractID+" is "+string(parent.Status)+", not SIGNED")
		}
		c.Scope = parent.Scope
		return nil
	}

	created, _, err := g.store.CreateContract(ctx, c, guard)
	if err != nil {
		return nil, err
	}

	g.dispatch(ctx, domain.NewEvent(domain.EventContractCreated, "contract", created.ID, buyerID, nil))
	logger.Info("sub-contract generated",
		zap.String("contract_id", created.ID),
		zap.String("parent_contract_id", parentContractID),
	)
	return created, nil
}

// Sign moves a DRAFT contract to SIGNED, freezing its terms. Only the
// buyer may sign.
func (g *Generator) Sign(ctx context.Context, contractID, signerID string, expectedGen int64) (*domain.Contract, error) {
	if _, err := party.RequireVerified(ctx, g.parties, signerID); err != nil {
		return nil, err
	}

	c, err := g.store.MutateContract(ctx, contractID, expectedGen, func(_ store.View, c *domain.Contract) error {
		if c.BuyerPartyID != signerID {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"only the buyer may sign contract "+contractID)
		}
		if !domain.ContractCanTransition(c.Status, domain.ContractSigned) {
			return apperrors.StateConflict(apperrors.CodeContractNotDraft,
				"contract "+contractID+" is "+string(c.Status)+", not DRAFT")
		}
		now := time.Now().UTC()
		c.Status = domain.ContractSigned
		c.SignedBy = signerID
		c.SignedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.dispatch(ctx, domain.NewEvent(domain.EventContractSigned, "contract", c.ID, signerID,
		domain.ContractSignedPayload{
			ContractID:       c.ID,
			SourceProposalID: c.SourceProposalID,
			SignedBy:         signerID,
		}))
	logger.Info("contract signed",
		zap.String("contract_id", c.ID),
		zap.String("signed_by", signerID),
	)
	return c, nil
}

// Cancel moves a contract to CANCELLED. Fails with PRECONDITION while
// any dependent engagement is ACTIVE; the engagement and contract are
// read in the same snapshot, so a concurrent start cannot slip past.
func (g *Generator) Cancel(ctx context.Context, contractID, actorID string, expectedGen int64) (*domain.Contract, error) {
	if _, err := party.RequireVerified(ctx, g.parties, actorID); err != nil {
		return nil, err
	}

	c, err := g.store.MutateContract(ctx, contractID, expectedGen, func(v store.View, c *domain.Contract) error {
		if c.BuyerPartyID != actorID && c.ProviderPartyID != actorID {
			return apperrors.Authorization(apperrors.CodeNotCounterpart,
				"party "+actorID+" is not a counterpart of contract "+contractID)
		}
		if !domain.ContractCanTransition(c.Status, domain.ContractCancelled) {
			return apperrors.StateConflict(apperrors.CodeContractNotSigned,
				"contract "+contractID+" is already "+string(c.Status))
		}
		engagements, err := v.EngagementsByContract(contractID)
		if err != nil {
			return err
		}
		for _, e := range engagements {
			if e.Status == domain.EngagementActive {
				return apperrors.Precondition(apperrors.CodeContractHasActiveWork,
					"contract "+contractID+" has active engagement "+e.ID)
			}
		}
		c.Status = domain.ContractCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.dispatch(ctx, domain.NewEvent(domain.EventContractCancelled, "contract", c.ID, actorID, nil))
	logger.Info("contract cancelled", zap.String("contract_id", c.ID))
	return c, nil
}

// Get retrieves a Contract.
func (g *Generator) Get(ctx context.Context, id string) (*domain.Contract, error) {
	return g.store.GetContract(ctx, id)
}

// GetBySourceProposal retrieves the Contract derived from a proposal.
func (g *Generator) GetBySourceProposal(ctx context.Context, proposalID string) (*domain.Contract, error) {
	return g.store.GetContractBySourceProposal(ctx, proposalID)
}

func (g *Generator) resolveParty(ctx context.Context, partyID string) (domain.PartyRef, error) {
	ref, err := g.parties.ResolvePartyRole(ctx, partyID)
	if err != nil {
		return domain.PartyRef{}, apperrors.Wrap(err, apperrors.KindAuthorization, apperrors.CodePartyUnknown,
			"party "+partyID+" could not be resolved")
	}
	return ref, nil
}

func (g *Generator) dispatch(ctx context.Context, ev *domain.DomainEvent) {
	if g.events == nil {
		return
	}
	if err := g.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("contract event delivery incomplete",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
			zap.Error(err),
		)
	}
}
