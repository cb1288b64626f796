package contract

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/negotiation"
	"collabforge.io/forge/internal/party"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/registry"
	"collabforge.io/forge/internal/store"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

const (
	ownerID = "party-owner"
	otherID = "party-other"
)

type fixture struct {
	store         *store.Memory
	events        *domain.EventDispatcher
	opportunities *registry.Registry
	negotiator    *negotiation.Negotiator
	generator     *Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	resolver := party.NewStaticResolver(
		domain.PartyRef{ID: ownerID, Type: domain.PartyOrganization, Verified: true},
		domain.PartyRef{ID: otherID, Type: domain.PartyIndividual, Verified: true},
	)
	st := store.NewMemory()
	events := domain.NewEventDispatcher()
	opportunities := registry.New(st, resolver, events)
	generator := New(st, resolver, events)
	generator.RegisterHooks(events)
	return &fixture{
		store:         st,
		events:        events,
		opportunities: opportunities,
		negotiator:    negotiation.New(st, resolver, events, opportunities),
		generator:     generator,
	}
}

// finalizedProposal negotiates a proposal to FINAL_ACCEPTED, which
// fires the generation hook.
func (f *fixture) finalizedProposal(t *testing.T, intent domain.OpportunityIntent) *domain.Proposal {
	t.Helper()
	ctx := context.Background()

	o, err := f.opportunities.Create(ctx, registry.CreateSpec{
		Intent:         intent,
		Title:          "Depot retrofit",
		Scope:          domain.ScopeRef{Type: domain.ScopeProject, ID: "proj-depot"},
		CreatorPartyID: ownerID,
	})
	require.NoError(t, err)
	o, err = f.opportunities.Publish(ctx, o.ID, ownerID, o.Generation)
	require.NoError(t, err)

	p, err := f.negotiator.Submit(ctx, o.ID, otherID,
		domain.Terms{Total: 16500000, Currency: "EUR", PaymentTerms: "NET45"}, "offer")
	require.NoError(t, err)
	_, err = f.negotiator.Accept(ctx, p.ID, domain.RoleOther, 1, otherID)
	require.NoError(t, err)
	p, err = f.negotiator.Accept(ctx, p.ID, domain.RoleOwner, 1, ownerID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalFinalAccepted, p.Status)
	return p
}

func TestFinalizationHookGeneratesContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)

	c, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	require.Equal(t, domain.ContractDraft, c.Status)
	require.Equal(t, p.ID, c.SourceProposalID)
	require.Equal(t, domain.ScopeRef{Type: domain.ScopeProject, ID: "proj-depot"}, c.Scope)

	// REQUEST_SERVICE: the opportunity owner buys.
	require.Equal(t, ownerID, c.BuyerPartyID)
	require.Equal(t, domain.PartyOrganization, c.BuyerPartyType)
	require.Equal(t, otherID, c.ProviderPartyID)
	require.Equal(t, domain.PartyIndividual, c.ProviderPartyType)

	var snapshot struct {
		SourceProposalID string       `json:"source_proposal_id"`
		AcceptedVersion  int          `json:"accepted_version"`
		Terms            domain.Terms `json:"terms"`
	}
	require.NoError(t, json.Unmarshal(c.Terms, &snapshot))
	require.Equal(t, p.ID, snapshot.SourceProposalID)
	require.Equal(t, 1, snapshot.AcceptedVersion)
	require.EqualValues(t, 16500000, snapshot.Terms.Total)
}

func TestOfferServiceIntentFlipsRoles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentOfferService)

	c, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	// OFFER_SERVICE: the owner offers, so the counterpart buys.
	require.Equal(t, otherID, c.BuyerPartyID)
	require.Equal(t, ownerID, c.ProviderPartyID)
}

func TestGenerateFromProposalIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)

	first, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	// Replaying the hook path returns the same contract.
	replay, err := f.generator.GenerateFromProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, replay.ID)

	again, err := f.generator.GenerateFromProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	// The source index still points at the original contract; replays
	// created no second record.
	bySource, err := f.store.GetContractBySourceProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, bySource.ID)
	require.Equal(t, first.CreatedAt, bySource.CreatedAt)
}

func TestGenerateFromNonFinalProposalFailsPrecondition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	o, err := f.opportunities.Create(ctx, registry.CreateSpec{
		Intent:         domain.IntentRequestService,
		Title:          "open negotiation",
		Scope:          domain.ScopeRef{Type: domain.ScopeProject, ID: "proj-x"},
		CreatorPartyID: ownerID,
	})
	require.NoError(t, err)
	o, err = f.opportunities.Publish(ctx, o.ID, ownerID, o.Generation)
	require.NoError(t, err)
	p, err := f.negotiator.Submit(ctx, o.ID, otherID,
		domain.Terms{Total: 100, Currency: "EUR"}, "")
	require.NoError(t, err)

	_, err = f.generator.GenerateFromProposal(ctx, p.ID)
	require.True(t, apperrors.IsKind(err, apperrors.KindPrecondition))
	appErr, _ := apperrors.IsAppError(err)
	require.Equal(t, apperrors.CodeProposalNotFinal, appErr.Code)
}

func TestSignOnlyByBuyer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)
	c, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.generator.Sign(ctx, c.ID, otherID, c.Generation)
	require.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	signed, err := f.generator.Sign(ctx, c.ID, ownerID, c.Generation)
	require.NoError(t, err)
	require.Equal(t, domain.ContractSigned, signed.Status)
	require.Equal(t, ownerID, signed.SignedBy)
	require.NotNil(t, signed.SignedAt)

	t.Run("double sign conflicts", func(t *testing.T) {
		_, err := f.generator.Sign(ctx, signed.ID, ownerID, signed.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
	})
}

func TestSignWithStaleGenerationConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)
	c, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.generator.Sign(ctx, c.ID, ownerID, c.Generation+41)
	require.True(t, apperrors.IsRetryable(err))
	appErr, _ := apperrors.IsAppError(err)
	require.Equal(t, apperrors.CodeGenerationStale, appErr.Code)
}

func TestGenerateSubContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)
	parent, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	terms := json.RawMessage(`{"subcontracted_work":"electrical"}`)

	t.Run("parent must be signed", func(t *testing.T) {
		_, err := f.generator.GenerateSubContract(ctx, parent.ID, otherID, ownerID, terms)
		require.True(t, apperrors.IsKind(err, apperrors.KindPrecondition))
		appErr, _ := apperrors.IsAppError(err)
		require.Equal(t, apperrors.CodeParentNotSigned, appErr.Code)
	})

	parent, err = f.generator.Sign(ctx, parent.ID, ownerID, parent.Generation)
	require.NoError(t, err)

	t.Run("inherits parent scope", func(t *testing.T) {
		sub, err := f.generator.GenerateSubContract(ctx, parent.ID, otherID, ownerID, terms)
		require.NoError(t, err)
		require.Equal(t, domain.ContractDraft, sub.Status)
		require.Equal(t, parent.ID, sub.ParentContractID)
		require.Equal(t, parent.Scope, sub.Scope)
		require.Equal(t, otherID, sub.BuyerPartyID)
		require.Equal(t, ownerID, sub.ProviderPartyID)
	})

	t.Run("terms required", func(t *testing.T) {
		_, err := f.generator.GenerateSubContract(ctx, parent.ID, otherID, ownerID, nil)
		require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})
}

func TestCancelBlockedByActiveEngagement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)
	c, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)
	c, err = f.generator.Sign(ctx, c.ID, ownerID, c.Generation)
	require.NoError(t, err)

	now := time.Now().UTC()
	e := &domain.Engagement{
		ID:            domain.NewEngagementID(),
		ContractID:    c.ID,
		Type:          "retrofit",
		Status:        domain.EngagementActive,
		AssignedScope: c.Scope,
		StartedAt:     &now,
	}
	require.NoError(t, f.store.CreateEngagement(ctx, e, nil))

	_, err = f.generator.Cancel(ctx, c.ID, ownerID, store.AnyGeneration)
	require.True(t, apperrors.IsKind(err, apperrors.KindPrecondition))
	appErr, _ := apperrors.IsAppError(err)
	require.Equal(t, apperrors.CodeContractHasActiveWork, appErr.Code)

	// Completing the engagement unblocks cancellation.
	_, err = f.store.MutateEngagement(ctx, e.ID, store.AnyGeneration, func(_ store.View, e *domain.Engagement) error {
		e.Status = domain.EngagementCompleted
		return nil
	})
	require.NoError(t, err)

	cancelled, err := f.generator.Cancel(ctx, c.ID, ownerID, store.AnyGeneration)
	require.NoError(t, err)
	require.Equal(t, domain.ContractCancelled, cancelled.Status)
}

func TestCancelOnlyByCounterpart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p := f.finalizedProposal(t, domain.IntentRequestService)
	c, err := f.generator.GetBySourceProposal(ctx, p.ID)
	require.NoError(t, err)

	resolver := party.NewStaticResolver(
		domain.PartyRef{ID: "party-bystander", Type: domain.PartyIndividual, Verified: true},
	)
	outsider := New(f.store, resolver, f.events)
	_, err = outsider.Cancel(ctx, c.ID, "party-bystander", store.AnyGeneration)
	require.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
}
