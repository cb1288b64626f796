// Package store provides the aggregate store for the negotiation core.
//
// Every aggregate carries a generation counter used for optimistic
// concurrency: a mutating call supplies the generation it read and
// fails with STATE_CONFLICT when stale. Mutations and their guards run
// against a consistent snapshot (a single critical section in the
// memory store, a transaction with row locks in the postgres store),
// so cross-aggregate validation never races a concurrent write.
package store

import (
	"context"
	"time"

	"collabforge.io/forge/internal/domain"
)

// AnyGeneration disables the optimistic generation check for callers
// that carry their own version discipline (e.g. proposal negotiation,
// which is keyed on the negotiation version itself).
const AnyGeneration int64 = 0

// View is a consistent read snapshot handed to guards and mutation
// functions. Reads through a View observe the same state the mutation
// will commit against.
type View interface {
	Opportunity(id string) (*domain.Opportunity, error)
	Proposal(id string) (*domain.Proposal, error)
	Contract(id string) (*domain.Contract, error)
	Engagement(id string) (*domain.Engagement, error)
	Milestone(id string) (*domain.Milestone, error)
	EngagementsByContract(contractID string) ([]*domain.Engagement, error)
}

// Guard validates a pending create against a consistent snapshot.
// A non-nil error aborts the create without any write.
type Guard func(v View) error

// OpportunityFilter narrows opportunity listings.
type OpportunityFilter struct {
	Status        domain.OpportunityStatus
	CreatorID     string
	UpdatedBefore time.Time
}

// ProposalFilter narrows proposal listings.
type ProposalFilter struct {
	OpportunityID string
	Statuses      []domain.ProposalStatus
	UpdatedBefore time.Time
}

// Store is the aggregate store shared by all components. Each entity
// is exclusively owned by the component that creates it; downstream
// components read upstream aggregates but never mutate them.
type Store interface {
	CreateOpportunity(ctx context.Context, o *domain.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*domain.Opportunity, error)
	ListOpportunities(ctx context.Context, f OpportunityFilter) ([]*domain.Opportunity, error)
	MutateOpportunity(ctx context.Context, id string, expectedGen int64, fn func(v View, o *domain.Opportunity) error) (*domain.Opportunity, error)

	CreateProposal(ctx context.Context, p *domain.Proposal, guard Guard) error
	GetProposal(ctx context.Context, id string) (*domain.Proposal, error)
	ListProposals(ctx context.Context, f ProposalFilter) ([]*domain.Proposal, error)
	MutateProposal(ctx context.Context, id string, expectedGen int64, fn func(v View, p *domain.Proposal) error) (*domain.Proposal, error)

	// CreateContract has idempotent-create semantics on
	// SourceProposalID: when a contract for the same source proposal
	// already exists, the existing contract is returned with
	// created == false and no new record is written.
	CreateContract(ctx context.Context, c *domain.Contract, guard Guard) (created *domain.Contract, fresh bool, err error)
	GetContract(ctx context.Context, id string) (*domain.Contract, error)
	GetContractBySourceProposal(ctx context.Context, proposalID string) (*domain.Contract, error)
	MutateContract(ctx context.Context, id string, expectedGen int64, fn func(v View, c *domain.Contract) error) (*domain.Contract, error)

	CreateEngagement(ctx context.Context, e *domain.Engagement, guard Guard) error
	GetEngagement(ctx context.Context, id string) (*domain.Engagement, error)
	ListEngagementsByContract(ctx context.Context, contractID string) ([]*domain.Engagement, error)
	MutateEngagement(ctx context.Context, id string, expectedGen int64, fn func(v View, e *domain.Engagement) error) (*domain.Engagement, error)

	CreateMilestone(ctx context.Context, m *domain.Milestone, guard Guard) error
	GetMilestone(ctx context.Context, id string) (*domain.Milestone, error)
	ListMilestonesByEngagement(ctx context.Context, engagementID string) ([]*domain.Milestone, error)
	MutateMilestone(ctx context.Context, id string, expectedGen int64, fn func(v View, m *domain.Milestone) error) (*domain.Milestone, error)
}
