// Package domain provides the aggregate model for the collaboration
// negotiation core: Opportunity → Proposal → Contract → Engagement →
// Milestone. Control flow is strictly forward; downstream aggregates
// hold read-only references and never mutate upstream fields.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OpportunityIntent declares what the creating party is looking for.
type OpportunityIntent string

const (
	IntentRequestService OpportunityIntent = "REQUEST_SERVICE"
	IntentOfferService   OpportunityIntent = "OFFER_SERVICE"
	IntentBoth           OpportunityIntent = "BOTH"
)

// Valid reports whether the intent is a known value.
func (i OpportunityIntent) Valid() bool {
	switch i {
	case IntentRequestService, IntentOfferService, IntentBoth:
		return true
	}
	return false
}

// OpportunityStatus is the Opportunity lifecycle state.
// Transitions are monotonic: DRAFT → PUBLISHED → CLOSED.
type OpportunityStatus string

const (
	OpportunityDraft     OpportunityStatus = "DRAFT"
	OpportunityPublished OpportunityStatus = "PUBLISHED"
	OpportunityClosed    OpportunityStatus = "CLOSED"
)

// Opportunity is a published intent to request or offer collaboration.
type Opportunity struct {
	ID             string            `json:"id"`
	Intent         OpportunityIntent `json:"intent"`
	Status         OpportunityStatus `json:"status"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Scope          ScopeRef          `json:"scope"`
	Location       string            `json:"location,omitempty"`
	PaymentTerms   string            `json:"payment_terms,omitempty"`
	CreatorPartyID string            `json:"creator_party_id"`

	// Locked is set once a Proposal against this Opportunity reaches
	// FINAL_ACCEPTED. A locked Opportunity accepts no new Proposals;
	// already-open negotiations continue.
	Locked bool `json:"locked"`

	// Generation is the optimistic concurrency counter, bumped on
	// every write.
	Generation int64 `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOpportunityID returns a fresh prefixed opportunity id.
func NewOpportunityID() string {
	return "opp-" + uuid.NewString()
}

// Clone returns a deep copy.
func (o *Opportunity) Clone() *Opportunity {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}
