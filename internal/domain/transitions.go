package domain

// Status transition tables. Lifecycle rules are enforced here
// centrally, not re-checked ad hoc at call sites.

var opportunityTransitions = map[OpportunityStatus]map[OpportunityStatus]bool{
	OpportunityDraft:     {OpportunityPublished: true, OpportunityClosed: true},
	OpportunityPublished: {OpportunityClosed: true},
	OpportunityClosed:    {},
}

// OpportunityCanTransition reports whether from → to is a legal
// Opportunity transition. Transitions are monotonic: no PUBLISHED →
// DRAFT, no republish after CLOSED.
func OpportunityCanTransition(from, to OpportunityStatus) bool {
	return opportunityTransitions[from][to]
}

var contractTransitions = map[ContractStatus]map[ContractStatus]bool{
	ContractDraft:     {ContractSigned: true, ContractCancelled: true},
	ContractSigned:    {ContractCancelled: true},
	ContractCancelled: {},
}

// ContractCanTransition reports whether from → to is a legal Contract
// transition.
func ContractCanTransition(from, to ContractStatus) bool {
	return contractTransitions[from][to]
}

var engagementTransitions = map[EngagementStatus]map[EngagementStatus]bool{
	EngagementPlanned:   {EngagementActive: true, EngagementCancelled: true},
	EngagementActive:    {EngagementCompleted: true, EngagementCancelled: true},
	EngagementCompleted: {},
	EngagementCancelled: {},
}

// EngagementCanTransition reports whether from → to is a legal
// Engagement transition. ACTIVE → PLANNED is not permitted.
func EngagementCanTransition(from, to EngagementStatus) bool {
	return engagementTransitions[from][to]
}

// Milestone transitions are forward-only, one step at a time:
// PENDING → IN_PROGRESS → COMPLETED. Skipping and moving backward are
// both rejected (policy decision, recorded in DESIGN.md).
var milestoneTransitions = map[MilestoneStatus]map[MilestoneStatus]bool{
	MilestonePending:    {MilestoneInProgress: true},
	MilestoneInProgress: {MilestoneCompleted: true},
	MilestoneCompleted:  {},
}

// MilestoneCanTransition reports whether from → to is a legal
// Milestone transition.
func MilestoneCanTransition(from, to MilestoneStatus) bool {
	return milestoneTransitions[from][to]
}
