package errors

// Error code constants. Errors carry kind + code + params; invoking
// collaborators decide presentation.

// Opportunity error codes.
const (
	CodeOpportunityNotFound = "OPPORTUNITY_NOT_FOUND"
	CodeOpportunityNotDraft = "OPPORTUNITY_NOT_DRAFT"
	CodeOpportunityClosed   = "OPPORTUNITY_CLOSED"
	CodeOpportunityLocked   = "OPPORTUNITY_LOCKED"
)

// Proposal error codes.
const (
	CodeProposalNotFound     = "PROPOSAL_NOT_FOUND"
	CodeProposalVersionStale = "PROPOSAL_VERSION_STALE"
	CodeProposalFinalized    = "PROPOSAL_FINALIZED"
	CodeProposalRejected     = "PROPOSAL_REJECTED"
	CodeProposalNotFinal     = "PROPOSAL_NOT_FINAL_ACCEPTED"
)

// Contract error codes.
const (
	CodeContractNotFound      = "CONTRACT_NOT_FOUND"
	CodeContractNotDraft      = "CONTRACT_NOT_DRAFT"
	CodeContractNotSigned     = "CONTRACT_NOT_SIGNED"
	CodeContractHasActiveWork = "CONTRACT_HAS_ACTIVE_ENGAGEMENT"
	CodeParentNotSigned       = "PARENT_CONTRACT_NOT_SIGNED"
)

// Engagement error codes.
const (
	CodeEngagementNotFound   = "ENGAGEMENT_NOT_FOUND"
	CodeEngagementNotPlanned = "ENGAGEMENT_NOT_PLANNED"
	CodeEngagementTerminal   = "ENGAGEMENT_TERMINAL"
	CodeScopeOutOfBounds     = "SCOPE_OUT_OF_BOUNDS"
)

// Milestone error codes.
const (
	CodeMilestoneNotFound   = "MILESTONE_NOT_FOUND"
	CodeMilestoneBackward   = "MILESTONE_TRANSITION_BACKWARD"
	CodeMilestoneDrift      = "MILESTONE_CONTRACT_DRIFT"
	CodeMilestoneIncomplete = "MILESTONE_FIELDS_INCOMPLETE"
)

// Shared error codes.
const (
	CodeGenerationStale  = "GENERATION_STALE"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodePartyUnknown     = "PARTY_UNKNOWN"
	CodePartyUnverified  = "PARTY_UNVERIFIED"
	CodeNotCounterpart   = "NOT_COUNTERPART"
	CodeStoreFailure     = "STORE_FAILURE"
)
