package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProposalStatus is the Proposal negotiation state.
type ProposalStatus string

const (
	ProposalSubmitted        ProposalStatus = "SUBMITTED"
	ProposalUnderReview      ProposalStatus = "UNDER_REVIEW"
	ProposalChangesRequested ProposalStatus = "CHANGES_REQUESTED"
	ProposalRejected         ProposalStatus = "REJECTED"
	ProposalFinalAccepted    ProposalStatus = "FINAL_ACCEPTED"
)

// Terminal reports whether no further negotiation is possible.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalRejected || s == ProposalFinalAccepted
}

// PartyRole identifies which side of the negotiation acts.
// OWNER is the party that owns the Opportunity; OTHER is the
// counterparty.
type PartyRole string

const (
	RoleOwner PartyRole = "OWNER"
	RoleOther PartyRole = "OTHER"
)

// Terms is the negotiated content of a proposal version.
type Terms struct {
	// Total is the amount in minor currency units.
	Total        int64                  `json:"total"`
	Currency     string                 `json:"currency"`
	PaymentTerms string                 `json:"payment_terms,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// ProposalVersion is an immutable snapshot of terms at one point in
// the negotiation. Versions are append-only and never mutated.
type ProposalVersion struct {
	Version   int       `json:"version"`
	Terms     Terms     `json:"terms"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	Status    string    `json:"status"`
}

// Acceptance tracks per-role, version-scoped acceptance. A role is
// bound only to the exact version number it accepted.
type Acceptance struct {
	OwnerAcceptedVersion    *int       `json:"owner_accepted_version,omitempty"`
	OtherAcceptedVersion    *int       `json:"other_party_accepted_version,omitempty"`
	MutuallyAcceptedVersion *int       `json:"mutually_accepted_version,omitempty"`
	FinalAcceptedAt         *time.Time `json:"final_accepted_at,omitempty"`
}

// Proposal is a versioned negotiated offer against an Opportunity.
//
// Invariants:
//   - CurrentVersion == len(Versions) at every observable state.
//   - MutuallyAcceptedVersion is set iff both role versions are equal
//     and non-nil.
//   - Status is FINAL_ACCEPTED iff MutuallyAcceptedVersion equals
//     CurrentVersion. After that, no versions may be appended.
//   - REJECTED is terminal.
type Proposal struct {
	ID               string         `json:"id"`
	OpportunityID    string         `json:"opportunity_id"`
	InitiatorPartyID string         `json:"initiator_party_id"`
	ReceiverPartyID  string         `json:"receiver_party_id"`
	OwnerPartyID     string         `json:"owner_party_id"`
	Status           ProposalStatus `json:"status"`

	// Total/Currency/PaymentTerms mirror the current version's terms.
	Total        int64  `json:"total"`
	Currency     string `json:"currency"`
	PaymentTerms string `json:"payment_terms,omitempty"`

	Versions       []ProposalVersion `json:"versions"`
	CurrentVersion int               `json:"current_version"`
	Acceptance     Acceptance        `json:"acceptance"`
	RejectReason   string            `json:"reject_reason,omitempty"`

	Generation int64     `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewProposalID returns a fresh prefixed proposal id.
func NewProposalID() string {
	return "prop-" + uuid.NewString()
}

// Current returns the current version record, or nil when empty.
func (p *Proposal) Current() *ProposalVersion {
	if p.CurrentVersion == 0 || p.CurrentVersion > len(p.Versions) {
		return nil
	}
	return &p.Versions[p.CurrentVersion-1]
}

// RoleOf resolves the negotiation role of a party id, or "" when the
// party is not a counterpart of this proposal.
func (p *Proposal) RoleOf(partyID string) PartyRole {
	switch partyID {
	case p.OwnerPartyID:
		return RoleOwner
	case p.counterpartID():
		return RoleOther
	}
	return ""
}

// PartyFor returns the party id bound to a negotiation role.
func (p *Proposal) PartyFor(role PartyRole) string {
	if role == RoleOwner {
		return p.OwnerPartyID
	}
	return p.counterpartID()
}

func (p *Proposal) counterpartID() string {
	if p.InitiatorPartyID == p.OwnerPartyID {
		return p.ReceiverPartyID
	}
	return p.InitiatorPartyID
}

// AcceptedVersionFor returns the version pointer for a role.
func (a *Acceptance) AcceptedVersionFor(role PartyRole) *int {
	if role == RoleOwner {
		return a.OwnerAcceptedVersion
	}
	return a.OtherAcceptedVersion
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Versions = make([]ProposalVersion, len(p.Versions))
	copy(cp.Versions, p.Versions)
	cp.Acceptance = Acceptance{
		OwnerAcceptedVersion:    cloneIntPtr(p.Acceptance.OwnerAcceptedVersion),
		OtherAcceptedVersion:    cloneIntPtr(p.Acceptance.OtherAcceptedVersion),
		MutuallyAcceptedVersion: cloneIntPtr(p.Acceptance.MutuallyAcceptedVersion),
		FinalAcceptedAt:         cloneTimePtr(p.Acceptance.FinalAcceptedAt),
	}
	return &cp
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
