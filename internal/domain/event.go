package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of domain event.
type EventType string

const (
	// Opportunity events
	EventOpportunityPublished EventType = "OPPORTUNITY_PUBLISHED"
	EventOpportunityClosed    EventType = "OPPORTUNITY_CLOSED"

	// Proposal events
	EventProposalSubmitted     EventType = "PROPOSAL_SUBMITTED"
	EventProposalVersioned     EventType = "PROPOSAL_VERSIONED"
	EventProposalRejected      EventType = "PROPOSAL_REJECTED"
	EventProposalFinalAccepted EventType = "PROPOSAL_FINAL_ACCEPTED"

	// Contract events
	EventContractCreated   EventType = "CONTRACT_CREATED"
	EventContractSigned    EventType = "CONTRACT_SIGNED"
	EventContractCancelled EventType = "CONTRACT_CANCELLED"

	// Engagement events
	EventEngagementCreated   EventType = "ENGAGEMENT_CREATED"
	EventEngagementStarted   EventType = "ENGAGEMENT_STARTED"
	EventEngagementCompleted EventType = "ENGAGEMENT_COMPLETED"
	EventEngagementCancelled EventType = "ENGAGEMENT_CANCELLED"

	// Milestone events
	EventMilestoneCreated   EventType = "MILESTONE_CREATED"
	EventMilestoneAdvanced  EventType = "MILESTONE_ADVANCED"
	EventMilestoneCompleted EventType = "MILESTONE_COMPLETED"
)

// DomainEvent is an immutable record of something that happened to an
// aggregate. Delivery and formatting are the notification
// collaborator's responsibility.
type DomainEvent struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent builds a DomainEvent with a fresh id and timestamp.
// Payload marshal failures are reported by leaving Payload empty; the
// payload types below are all marshalable structs.
func NewEvent(eventType EventType, aggregateType, aggregateID, actor string, payload interface{}) *DomainEvent {
	ev := &DomainEvent{
		EventID:       "evt-" + uuid.NewString(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// ProposalVersionedPayload accompanies PROPOSAL_VERSIONED events.
type ProposalVersionedPayload struct {
	ProposalID    string `json:"proposal_id"`
	OpportunityID string `json:"opportunity_id"`
	Version       int    `json:"version"`
	AuthoredBy    string `json:"authored_by"`
}

// ProposalFinalAcceptedPayload accompanies PROPOSAL_FINAL_ACCEPTED
// events. The contract generation hook consumes it.
type ProposalFinalAcceptedPayload struct {
	ProposalID      string    `json:"proposal_id"`
	OpportunityID   string    `json:"opportunity_id"`
	AcceptedVersion int       `json:"accepted_version"`
	FinalAcceptedAt time.Time `json:"final_accepted_at"`
}

// ContractSignedPayload accompanies CONTRACT_SIGNED events.
type ContractSignedPayload struct {
	ContractID       string `json:"contract_id"`
	SourceProposalID string `json:"source_proposal_id,omitempty"`
	SignedBy         string `json:"signed_by"`
}

// EngagementStartedPayload accompanies ENGAGEMENT_STARTED events.
type EngagementStartedPayload struct {
	EngagementID string    `json:"engagement_id"`
	ContractID   string    `json:"contract_id"`
	StartedAt    time.Time `json:"started_at"`
}

// MilestoneCompletedPayload accompanies MILESTONE_COMPLETED events.
type MilestoneCompletedPayload struct {
	MilestoneID  string `json:"milestone_id"`
	EngagementID string `json:"engagement_id"`
	ContractID   string `json:"contract_id"`
	Title        string `json:"title"`
}
