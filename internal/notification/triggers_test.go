package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

// recordingSender captures deliveries for assertions.
type recordingSender struct {
	mu   sync.Mutex
	sent []Params
}

func (r *recordingSender) Send(_ context.Context, params Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, params)
	return nil
}

func (r *recordingSender) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	for _, id := range recipientIDs {
		p := params
		p.RecipientID = id
		if err := r.Send(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *recordingSender) all() []Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Params, len(r.sent))
	copy(out, r.sent)
	return out
}

type fixture struct {
	store    *store.Memory
	events   *domain.EventDispatcher
	sender   *recordingSender
	triggers *Triggers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemory()
	events := domain.NewEventDispatcher()
	sender := &recordingSender{}
	// nil pools: synchronous delivery, deterministic assertions.
	triggers := NewTriggers(sender, st, nil)
	triggers.RegisterHooks(events)
	return &fixture{store: st, events: events, sender: sender, triggers: triggers}
}

func (f *fixture) seedProposal(t *testing.T) *domain.Proposal {
	t.Helper()

	p := &domain.Proposal{
		ID:               "prop-1",
		OpportunityID:    "opp-1",
		InitiatorPartyID: "party-other",
		ReceiverPartyID:  "party-owner",
		OwnerPartyID:     "party-owner",
		Status:           domain.ProposalSubmitted,
		CurrentVersion:   1,
		Versions:         []domain.ProposalVersion{{Version: 1}},
	}
	require.NoError(t, f.store.CreateProposal(context.Background(), p, nil))
	return p
}

func (f *fixture) seedContract(t *testing.T) *domain.Contract {
	t.Helper()

	c := &domain.Contract{
		ID:              "ctr-1",
		Status:          domain.ContractDraft,
		BuyerPartyID:    "party-owner",
		ProviderPartyID: "party-other",
	}
	_, _, err := f.store.CreateContract(context.Background(), c, nil)
	require.NoError(t, err)
	return c
}

func TestProposalSubmittedNotifiesOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedProposal(t)

	ev := domain.NewEvent(domain.EventProposalSubmitted, "proposal", "prop-1", "party-other",
		domain.ProposalVersionedPayload{ProposalID: "prop-1", Version: 1, AuthoredBy: "party-other"})
	require.NoError(t, f.events.Dispatch(context.Background(), ev))

	sent := f.sender.all()
	require.Len(t, sent, 1)
	require.Equal(t, "party-owner", sent[0].RecipientID)
	require.Equal(t, TypeProposalReceived, sent[0].Type)
	require.Equal(t, "proposal", sent[0].ResourceType)
	require.Equal(t, "prop-1", sent[0].ResourceID)
}

func TestProposalVersionedNotifiesCounterpartOfAuthor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedProposal(t)

	// Owner authored the counter; the other party should hear about it.
	ev := domain.NewEvent(domain.EventProposalVersioned, "proposal", "prop-1", "party-owner",
		domain.ProposalVersionedPayload{ProposalID: "prop-1", Version: 2, AuthoredBy: "party-owner"})
	require.NoError(t, f.events.Dispatch(context.Background(), ev))

	sent := f.sender.all()
	require.Len(t, sent, 1)
	require.Equal(t, "party-other", sent[0].RecipientID)
	require.Equal(t, TypeProposalVersioned, sent[0].Type)
}

func TestProposalFinalizedNotifiesBothParties(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedProposal(t)

	ev := domain.NewEvent(domain.EventProposalFinalAccepted, "proposal", "prop-1", "party-owner",
		domain.ProposalFinalAcceptedPayload{ProposalID: "prop-1", AcceptedVersion: 2, FinalAcceptedAt: time.Now().UTC()})
	require.NoError(t, f.events.Dispatch(context.Background(), ev))

	sent := f.sender.all()
	require.Len(t, sent, 2)
	recipients := []string{sent[0].RecipientID, sent[1].RecipientID}
	require.ElementsMatch(t, []string{"party-owner", "party-other"}, recipients)
	for _, s := range sent {
		require.Equal(t, TypeProposalFinalized, s.Type)
	}
}

func TestContractSignedNotifiesProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedContract(t)

	ev := domain.NewEvent(domain.EventContractSigned, "contract", "ctr-1", "party-owner",
		domain.ContractSignedPayload{ContractID: "ctr-1", SignedBy: "party-owner"})
	require.NoError(t, f.events.Dispatch(context.Background(), ev))

	sent := f.sender.all()
	require.Len(t, sent, 1)
	require.Equal(t, "party-other", sent[0].RecipientID)
	require.Equal(t, TypeContractSigned, sent[0].Type)
}

func TestEngagementStartedNotifiesBothContractParties(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedContract(t)

	ev := domain.NewEvent(domain.EventEngagementStarted, "engagement", "eng-1", "party-other",
		domain.EngagementStartedPayload{EngagementID: "eng-1", ContractID: "ctr-1", StartedAt: time.Now().UTC()})
	require.NoError(t, f.events.Dispatch(context.Background(), ev))

	sent := f.sender.all()
	require.Len(t, sent, 2)
	require.ElementsMatch(t, []string{"party-owner", "party-other"},
		[]string{sent[0].RecipientID, sent[1].RecipientID})
}

func TestMilestoneCompletedNotifiesBothContractParties(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedContract(t)

	ev := domain.NewEvent(domain.EventMilestoneCompleted, "milestone", "mls-1", "party-other",
		domain.MilestoneCompletedPayload{MilestoneID: "mls-1", EngagementID: "eng-1", ContractID: "ctr-1", Title: "Install"})
	require.NoError(t, f.events.Dispatch(context.Background(), ev))

	sent := f.sender.all()
	require.Len(t, sent, 2)
	for _, s := range sent {
		require.Equal(t, TypeMilestoneCompleted, s.Type)
		require.Equal(t, "mls-1", s.ResourceID)
	}
}

func TestMissingAggregateSurfacesError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ev := domain.NewEvent(domain.EventContractSigned, "contract", "ctr-missing", "party-owner",
		domain.ContractSignedPayload{ContractID: "ctr-missing", SignedBy: "party-owner"})
	require.Error(t, f.events.Dispatch(context.Background(), ev))
	require.Empty(t, f.sender.all())
}
