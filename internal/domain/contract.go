package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContractStatus is the Contract lifecycle state.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "DRAFT"
	ContractSigned    ContractStatus = "SIGNED"
	ContractCancelled ContractStatus = "CANCELLED"
)

// PartyType classifies a contracting party.
type PartyType string

const (
	PartyIndividual   PartyType = "INDIVIDUAL"
	PartyOrganization PartyType = "ORGANIZATION"
)

// Contract is the binding agreement derived from a finalized Proposal.
// SourceProposalID is a uniqueness key: at most one Contract exists
// per Proposal. Sub-contracts have no source proposal and reference a
// SIGNED parent instead.
type Contract struct {
	ID               string `json:"id"`
	SourceProposalID string `json:"source_proposal_id,omitempty"`

	Scope ScopeRef `json:"scope"`

	BuyerPartyID      string    `json:"buyer_party_id"`
	BuyerPartyType    PartyType `json:"buyer_party_type"`
	ProviderPartyID   string    `json:"provider_party_id"`
	ProviderPartyType PartyType `json:"provider_party_type"`

	Status           ContractStatus `json:"status"`
	ParentContractID string         `json:"parent_contract_id,omitempty"`

	// Terms is the immutable snapshot of the accepted terms. It is
	// frozen at creation and must never change after SIGNED.
	Terms json.RawMessage `json:"terms"`

	SignedBy string     `json:"signed_by,omitempty"`
	SignedAt *time.Time `json:"signed_at,omitempty"`

	Generation int64     `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewContractID returns a fresh prefixed contract id.
func NewContractID() string {
	return "ctr-" + uuid.NewString()
}

// Clone returns a deep copy.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Terms != nil {
		cp.Terms = make(json.RawMessage, len(c.Terms))
		copy(cp.Terms, c.Terms)
	}
	cp.SignedAt = cloneTimePtr(c.SignedAt)
	return &cp
}
