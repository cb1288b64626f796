package domain

import "context"

// PartyRef is the resolved identity of a party, as reported by the
// external identity collaborator. The core never inspects identity
// documents itself.
type PartyRef struct {
	ID       string    `json:"id"`
	Type     PartyType `json:"type"`
	Verified bool      `json:"verified"`
}

// PartyResolver resolves party ids to their type and verification
// state. Implemented by the platform's identity service; the core
// consults it before every mutating operation.
type PartyResolver interface {
	ResolvePartyRole(ctx context.Context, partyID string) (PartyRef, error)
}
