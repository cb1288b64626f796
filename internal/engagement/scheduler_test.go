package engagement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/party"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

const (
	buyerID    = "party-buyer"
	providerID = "party-provider"
)

type fixture struct {
	store     *store.Memory
	scheduler *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	resolver := party.NewStaticResolver(
		domain.PartyRef{ID: buyerID, Type: domain.PartyOrganization, Verified: true},
		domain.PartyRef{ID: providerID, Type: domain.PartyIndividual, Verified: true},
	)
	st := store.NewMemory()
	return &fixture{
		store:     st,
		scheduler: New(st, resolver, domain.NewEventDispatcher()),
	}
}

func (f *fixture) signedContract(t *testing.T, scope domain.ScopeRef) *domain.Contract {
	t.Helper()

	now := time.Now().UTC()
	c := &domain.Contract{
		ID:                domain.NewContractID(),
		Status:            domain.ContractSigned,
		Scope:             scope,
		BuyerPartyID:      buyerID,
		BuyerPartyType:    domain.PartyOrganization,
		ProviderPartyID:   providerID,
		ProviderPartyType: domain.PartyIndividual,
		Terms:             json.RawMessage(`{}`),
		SignedBy:          buyerID,
		SignedAt:          &now,
	}
	created, fresh, err := f.store.CreateContract(context.Background(), c, nil)
	require.NoError(t, err)
	require.True(t, fresh)
	return created
}

func projectScope() domain.ScopeRef {
	return domain.ScopeRef{Type: domain.ScopeProject, ID: "proj-1"}
}

func TestCreatePlansEngagement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.signedContract(t, projectScope())

	e, err := f.scheduler.Create(ctx, c.ID,
		domain.ScopeRef{Type: domain.ScopeSubProject, ID: "proj-1/line-1"},
		"retrofit", providerID)
	require.NoError(t, err)

	require.Equal(t, domain.EngagementPlanned, e.Status)
	require.Equal(t, c.ID, e.ContractID)
	require.Nil(t, e.StartedAt)
}

func TestCreateRejectsUnsignedContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	draft := &domain.Contract{
		ID:              domain.NewContractID(),
		Status:          domain.ContractDraft,
		Scope:           projectScope(),
		BuyerPartyID:    buyerID,
		ProviderPartyID: providerID,
	}
	_, _, err := f.store.CreateContract(ctx, draft, nil)
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, draft.ID, projectScope(), "retrofit", providerID)
	require.True(t, apperrors.IsKind(err, apperrors.KindPrecondition))
	appErr, _ := apperrors.IsAppError(err)
	require.Equal(t, apperrors.CodeContractNotSigned, appErr.Code)
}

func TestCreateRejectsScopeOutsideContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.signedContract(t, projectScope())

	_, err := f.scheduler.Create(ctx, c.ID,
		domain.ScopeRef{Type: domain.ScopeSubProject, ID: "proj-2/line-9"},
		"retrofit", providerID)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	appErr, _ := apperrors.IsAppError(err)
	require.Equal(t, apperrors.CodeScopeOutOfBounds, appErr.Code)
}

func TestCreateRejectsNonCounterpart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.signedContract(t, projectScope())

	resolver := party.NewStaticResolver(
		domain.PartyRef{ID: "party-outsider", Type: domain.PartyIndividual, Verified: true},
	)
	outsider := New(f.store, resolver, nil)
	_, err := outsider.Create(ctx, c.ID, projectScope(), "retrofit", "party-outsider")
	require.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
}

func TestStartChecksClockAndContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.scheduler.WithClock(func() time.Time { return base })

	c := f.signedContract(t, projectScope())
	e, err := f.scheduler.Create(ctx, c.ID, projectScope(), "retrofit", providerID)
	require.NoError(t, err)

	t.Run("future start rejected", func(t *testing.T) {
		_, err := f.scheduler.Start(ctx, e.ID, base.Add(time.Hour), providerID, e.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("zero start rejected", func(t *testing.T) {
		_, err := f.scheduler.Start(ctx, e.ID, time.Time{}, providerID, e.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("start fails after contract cancelled", func(t *testing.T) {
		_, err := f.store.MutateContract(ctx, c.ID, store.AnyGeneration, func(_ store.View, c *domain.Contract) error {
			c.Status = domain.ContractCancelled
			return nil
		})
		require.NoError(t, err)

		_, err = f.scheduler.Start(ctx, e.ID, base.Add(-time.Hour), providerID, e.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindPrecondition))

		// Restore for the success case.
		_, err = f.store.MutateContract(ctx, c.ID, store.AnyGeneration, func(_ store.View, c *domain.Contract) error {
			c.Status = domain.ContractSigned
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("successful start", func(t *testing.T) {
		started, err := f.scheduler.Start(ctx, e.ID, base.Add(-time.Hour), providerID, e.Generation)
		require.NoError(t, err)
		require.Equal(t, domain.EngagementActive, started.Status)
		require.NotNil(t, started.StartedAt)
		require.True(t, started.StartedAt.Equal(base.Add(-time.Hour)))

		_, err = f.scheduler.Start(ctx, started.ID, base, providerID, started.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
	})
}

func TestCompleteAndCancelLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.signedContract(t, projectScope())

	t.Run("complete from active", func(t *testing.T) {
		e, err := f.scheduler.Create(ctx, c.ID, projectScope(), "retrofit", providerID)
		require.NoError(t, err)
		e, err = f.scheduler.Start(ctx, e.ID, time.Now().UTC().Add(-time.Minute), providerID, e.Generation)
		require.NoError(t, err)

		done, err := f.scheduler.Complete(ctx, e.ID, providerID, e.Generation)
		require.NoError(t, err)
		require.Equal(t, domain.EngagementCompleted, done.Status)
		require.NotNil(t, done.CompletedAt)

		_, err = f.scheduler.Cancel(ctx, done.ID, providerID, done.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
	})

	t.Run("complete from planned is illegal", func(t *testing.T) {
		e, err := f.scheduler.Create(ctx, c.ID, projectScope(), "survey", providerID)
		require.NoError(t, err)

		_, err = f.scheduler.Complete(ctx, e.ID, providerID, e.Generation)
		require.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
	})

	t.Run("cancel from planned", func(t *testing.T) {
		e, err := f.scheduler.Create(ctx, c.ID, projectScope(), "audit", providerID)
		require.NoError(t, err)

		gone, err := f.scheduler.Cancel(ctx, e.ID, providerID, e.Generation)
		require.NoError(t, err)
		require.Equal(t, domain.EngagementCancelled, gone.Status)
	})
}

func TestListByContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.signedContract(t, projectScope())

	_, err := f.scheduler.Create(ctx, c.ID, projectScope(), "retrofit", providerID)
	require.NoError(t, err)
	_, err = f.scheduler.Create(ctx, c.ID, projectScope(), "survey", buyerID)
	require.NoError(t, err)

	got, err := f.scheduler.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
