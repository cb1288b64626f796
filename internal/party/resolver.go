// Package party bridges the external identity collaborator into the
// core. The core validates that every mutating actor is a known,
// verified party; it never inspects identity documents itself.
package party

import (
	"context"
	"sync"

	"collabforge.io/forge/internal/domain"
	apperrors "collabforge.io/forge/internal/pkg/errors"
)

// RequireVerified resolves a party and fails with AUTHORIZATION unless
// the identity collaborator reports it as verified.
func RequireVerified(ctx context.Context, r domain.PartyResolver, partyID string) (domain.PartyRef, error) {
	if partyID == "" {
		return domain.PartyRef{}, apperrors.Validation(apperrors.CodeValidationFailed, "actor party id is required")
	}
	ref, err := r.ResolvePartyRole(ctx, partyID)
	if err != nil {
		return domain.PartyRef{}, apperrors.Wrap(err, apperrors.KindAuthorization, apperrors.CodePartyUnknown,
			"party "+partyID+" could not be resolved")
	}
	if !ref.Verified {
		return domain.PartyRef{}, apperrors.Authorization(apperrors.CodePartyUnverified,
			"party "+partyID+" is not verified")
	}
	return ref, nil
}

// StaticResolver is a fixed-map PartyResolver for seeds and tests.
type StaticResolver struct {
	mu      sync.RWMutex
	parties map[string]domain.PartyRef
}

// NewStaticResolver creates a resolver over the given parties.
func NewStaticResolver(parties ...domain.PartyRef) *StaticResolver {
	r := &StaticResolver{parties: make(map[string]domain.PartyRef, len(parties))}
	for _, p := range parties {
		r.parties[p.ID] = p
	}
	return r
}

// Add registers or replaces a party.
func (r *StaticResolver) Add(p domain.PartyRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parties[p.ID] = p
}

// ResolvePartyRole implements domain.PartyResolver.
func (r *StaticResolver) ResolvePartyRole(_ context.Context, partyID string) (domain.PartyRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parties[partyID]
	if !ok {
		return domain.PartyRef{}, apperrors.NotFound(apperrors.CodePartyUnknown, "party "+partyID+" not registered")
	}
	return p, nil
}
