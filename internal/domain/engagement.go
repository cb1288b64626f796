package domain

import (
	"time"

	"github.com/google/uuid"
)

// EngagementStatus is the Engagement execution state.
// COMPLETED and CANCELLED are terminal; there is no un-starting.
type EngagementStatus string

const (
	EngagementPlanned   EngagementStatus = "PLANNED"
	EngagementActive    EngagementStatus = "ACTIVE"
	EngagementCompleted EngagementStatus = "COMPLETED"
	EngagementCancelled EngagementStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s EngagementStatus) Terminal() bool {
	return s == EngagementCompleted || s == EngagementCancelled
}

// Engagement binds a SIGNED Contract to a concrete execution scope.
//
// Invariants:
//   - ContractID references a SIGNED contract at creation and at start.
//   - AssignedScope falls within the contract's declared scope.
//   - Status cannot be ACTIVE without StartedAt set.
type Engagement struct {
	ID         string           `json:"id"`
	ContractID string           `json:"contract_id"`
	Type       string           `json:"engagement_type"`
	Status     EngagementStatus `json:"status"`

	AssignedScope ScopeRef `json:"assigned_scope"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Generation int64     `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewEngagementID returns a fresh prefixed engagement id.
func NewEngagementID() string {
	return "eng-" + uuid.NewString()
}

// Clone returns a deep copy.
func (e *Engagement) Clone() *Engagement {
	if e == nil {
		return nil
	}
	cp := *e
	cp.StartedAt = cloneTimePtr(e.StartedAt)
	cp.CompletedAt = cloneTimePtr(e.CompletedAt)
	return &cp
}
