package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/pkg/worker"
	"collabforge.io/forge/internal/store"
)

// Triggers turns domain events into notifications for the negotiating
// parties:
//
//  1. PROPOSAL_SUBMITTED / PROPOSAL_VERSIONED: tell the counterpart a
//     new version awaits review
//  2. PROPOSAL_FINAL_ACCEPTED: tell both parties the deal finalized
//  3. CONTRACT_SIGNED: tell the provider
//  4. ENGAGEMENT_STARTED / MILESTONE_COMPLETED: tell both contract
//     parties
//
// Delivery is fanned out through the dispatch worker pool when one is
// configured; failures are logged, never propagated back into the
// domain operation.
type Triggers struct {
	sender Sender
	store  store.Store
	pools  *worker.Pools
}

// NewTriggers creates the notification trigger service. pools may be
// nil, in which case delivery is synchronous.
func NewTriggers(sender Sender, st store.Store, pools *worker.Pools) *Triggers {
	return &Triggers{sender: sender, store: st, pools: pools}
}

// RegisterHooks subscribes the trigger service to the dispatcher.
func (t *Triggers) RegisterHooks(d *domain.EventDispatcher) {
	d.RegisterAll(t.onProposalVersioned,
		domain.EventProposalSubmitted, domain.EventProposalVersioned)
	d.Register(domain.EventProposalFinalAccepted, t.onProposalFinalized)
	d.Register(domain.EventContractSigned, t.onContractSigned)
	d.Register(domain.EventEngagementStarted, t.onEngagementStarted)
	d.Register(domain.EventMilestoneCompleted, t.onMilestoneCompleted)
}

func (t *Triggers) onProposalVersioned(ctx context.Context, ev *domain.DomainEvent) error {
	var payload domain.ProposalVersionedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode proposal versioned payload: %w", err)
	}
	p, err := t.store.GetProposal(ctx, payload.ProposalID)
	if err != nil {
		return err
	}

	// Notify the side that did not author this version.
	recipient := p.OwnerPartyID
	if payload.AuthoredBy == p.OwnerPartyID {
		recipient = p.PartyFor(domain.RoleOther)
	}
	notifType := TypeProposalVersioned
	if ev.EventType == domain.EventProposalSubmitted {
		notifType = TypeProposalReceived
	}

	t.deliver(ctx, Params{
		RecipientID:  recipient,
		Type:         notifType,
		Title:        "Proposal version awaiting review",
		Message:      fmt.Sprintf("Version %d of proposal %s awaits your review", payload.Version, p.ID),
		ResourceType: "proposal",
		ResourceID:   p.ID,
	})
	return nil
}

func (t *Triggers) onProposalFinalized(ctx context.Context, ev *domain.DomainEvent) error {
	var payload domain.ProposalFinalAcceptedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode final accepted payload: %w", err)
	}
	p, err := t.store.GetProposal(ctx, payload.ProposalID)
	if err != nil {
		return err
	}

	t.deliverMany(ctx, []string{p.OwnerPartyID, p.PartyFor(domain.RoleOther)}, Params{
		Type:         TypeProposalFinalized,
		Title:        "Proposal finalized",
		Message:      fmt.Sprintf("Version %d of proposal %s was mutually accepted", payload.AcceptedVersion, p.ID),
		ResourceType: "proposal",
		ResourceID:   p.ID,
	})
	return nil
}

func (t *Triggers) onContractSigned(ctx context.Context, ev *domain.DomainEvent) error {
	var payload domain.ContractSignedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode contract signed payload: %w", err)
	}
	c, err := t.store.GetContract(ctx, payload.ContractID)
	if err != nil {
		return err
	}

	t.deliver(ctx, Params{
		RecipientID:  c.ProviderPartyID,
		Type:         TypeContractSigned,
		Title:        "Contract signed",
		Message:      fmt.Sprintf("Contract %s was signed by %s", c.ID, payload.SignedBy),
		ResourceType: "contract",
		ResourceID:   c.ID,
	})
	return nil
}

func (t *Triggers) onEngagementStarted(ctx context.Context, ev *domain.DomainEvent) error {
	var payload domain.EngagementStartedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode engagement started payload: %w", err)
	}
	c, err := t.store.GetContract(ctx, payload.ContractID)
	if err != nil {
		return err
	}

	t.deliverMany(ctx, []string{c.BuyerPartyID, c.ProviderPartyID}, Params{
		Type:         TypeEngagementStarted,
		Title:        "Engagement started",
		Message:      fmt.Sprintf("Engagement %s under contract %s is now active", payload.EngagementID, c.ID),
		ResourceType: "engagement",
		ResourceID:   payload.EngagementID,
	})
	return nil
}

func (t *Triggers) onMilestoneCompleted(ctx context.Context, ev *domain.DomainEvent) error {
	var payload domain.MilestoneCompletedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode milestone completed payload: %w", err)
	}
	c, err := t.store.GetContract(ctx, payload.ContractID)
	if err != nil {
		return err
	}

	t.deliverMany(ctx, []string{c.BuyerPartyID, c.ProviderPartyID}, Params{
		Type:         TypeMilestoneCompleted,
		Title:        "Milestone completed",
		Message:      fmt.Sprintf("Milestone %q under engagement %s is complete", payload.Title, payload.EngagementID),
		ResourceType: "milestone",
		ResourceID:   payload.MilestoneID,
	})
	return nil
}

func (t *Triggers) deliver(ctx context.Context, params Params) {
	t.run(ctx, func(ctx context.Context) {
		if err := t.sender.Send(ctx, params); err != nil {
			logger.Error("notification delivery failed",
				zap.String("type", string(params.Type)),
				zap.String("recipient", params.RecipientID),
				zap.Error(err),
			)
		}
	})
}

func (t *Triggers) deliverMany(ctx context.Context, recipients []string, params Params) {
	t.run(ctx, func(ctx context.Context) {
		if err := t.sender.SendToMany(ctx, recipients, params); err != nil {
			logger.Error("notification fan-out failed",
				zap.String("type", string(params.Type)),
				zap.Int("recipients", len(recipients)),
				zap.Error(err),
			)
		}
	})
}

func (t *Triggers) run(ctx context.Context, task worker.Task) {
	if t.pools == nil {
		task(ctx)
		return
	}
	if err := t.pools.SubmitDetached(task); err != nil {
		logger.Error("failed to submit notification task", zap.Error(err))
	}
}
