package party

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"collabforge.io/forge/internal/domain"
	apperrors "collabforge.io/forge/internal/pkg/errors"
)

func TestRequireVerified(t *testing.T) {
	t.Parallel()

	r := NewStaticResolver(
		domain.PartyRef{ID: "party-ok", Type: domain.PartyOrganization, Verified: true},
		domain.PartyRef{ID: "party-pending", Type: domain.PartyIndividual, Verified: false},
	)
	ctx := context.Background()

	t.Run("verified party passes", func(t *testing.T) {
		ref, err := RequireVerified(ctx, r, "party-ok")
		require.NoError(t, err)
		require.Equal(t, domain.PartyOrganization, ref.Type)
	})

	t.Run("empty id is validation", func(t *testing.T) {
		_, err := RequireVerified(ctx, r, "")
		require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("unknown party is authorization", func(t *testing.T) {
		_, err := RequireVerified(ctx, r, "party-ghost")
		require.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
		appErr, _ := apperrors.IsAppError(err)
		require.Equal(t, apperrors.CodePartyUnknown, appErr.Code)
	})

	t.Run("unverified party is authorization", func(t *testing.T) {
		_, err := RequireVerified(ctx, r, "party-pending")
		require.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
		appErr, _ := apperrors.IsAppError(err)
		require.Equal(t, apperrors.CodePartyUnverified, appErr.Code)
	})
}

func TestStaticResolverAddReplaces(t *testing.T) {
	t.Parallel()

	r := NewStaticResolver()
	r.Add(domain.PartyRef{ID: "party-a", Type: domain.PartyIndividual, Verified: false})
	r.Add(domain.PartyRef{ID: "party-a", Type: domain.PartyIndividual, Verified: true})

	ref, err := r.ResolvePartyRole(context.Background(), "party-a")
	require.NoError(t, err)
	require.True(t, ref.Verified)
}
