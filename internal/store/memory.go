package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"collabforge.io/forge/internal/domain"
	apperrors "collabforge.io/forge/internal/pkg/errors"
)

// Memory is the in-process Store implementation. One store-wide mutex
// gives every operation a transactional read-modify-write over a
// consistent snapshot; generation counters still surface lost-update
// conflicts to callers that interleave read and write across calls.
type Memory struct {
	mu sync.RWMutex

	opportunities map[string]*domain.Opportunity
	proposals     map[string]*domain.Proposal
	contracts     map[string]*domain.Contract
	engagements   map[string]*domain.Engagement
	milestones    map[string]*domain.Milestone

	// contractsBySource indexes contracts by SourceProposalID; it is
	// the unique constraint behind idempotent contract creation.
	contractsBySource map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		opportunities:     make(map[string]*domain.Opportunity),
		proposals:         make(map[string]*domain.Proposal),
		contracts:         make(map[string]*domain.Contract),
		engagements:       make(map[string]*domain.Engagement),
		milestones:        make(map[string]*domain.Milestone),
		contractsBySource: make(map[string]string),
	}
}

var _ Store = (*Memory)(nil)

// memView reads the maps directly; valid only while the store mutex is
// held.
type memView struct {
	s *Memory
}

func (v memView) Opportunity(id string) (*domain.Opportunity, error) {
	o, ok := v.s.opportunities[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeOpportunityNotFound, "opportunity "+id+" not found")
	}
	return o.Clone(), nil
}

func (v memView) Proposal(id string) (*domain.Proposal, error) {
	p, ok := v.s.proposals[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeProposalNotFound, "proposal "+id+" not found")
	}
	return p.Clone(), nil
}

func (v memView) Contract(id string) (*domain.Contract, error) {
	c, ok := v.s.contracts[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeContractNotFound, "contract "+id+" not found")
	}
	return c.Clone(), nil
}

func (v memView) Engagement(id string) (*domain.Engagement, error) {
	e, ok := v.s.engagements[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeEngagementNotFound, "engagement "+id+" not found")
	}
	return e.Clone(), nil
}

func (v memView) Milestone(id string) (*domain.Milestone, error) {
	m, ok := v.s.milestones[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeMilestoneNotFound, "milestone "+id+" not found")
	}
	return m.Clone(), nil
}

func (v memView) EngagementsByContract(contractID string) ([]*domain.Engagement, error) {
	var out []*domain.Engagement
	for _, e := range v.s.engagements {
		if e.ContractID == contractID {
			out = append(out, e.Clone())
		}
	}
	sortByID(out, func(e *domain.Engagement) string { return e.ID })
	return out, nil
}

func checkGeneration(expected, actual int64, aggregate, id string) error {
	if expected == AnyGeneration || expected == actual {
		return nil
	}
	return apperrors.StateConflict(apperrors.CodeGenerationStale,
		aggregate+" "+id+" was modified concurrently").
		WithParams(map[string]interface{}{"expected": expected, "actual": actual})
}

func stamp(now time.Time, createdAt *time.Time, updatedAt *time.Time, gen *int64) {
	if createdAt != nil && createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
	*gen++
}

// Opportunity operations

func (s *Memory) CreateOpportunity(_ context.Context, o *domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.opportunities[o.ID]; exists {
		return apperrors.StateConflict(apperrors.CodeValidationFailed, "opportunity "+o.ID+" already exists")
	}
	cp := o.Clone()
	stamp(time.Now().UTC(), &cp.CreatedAt, &cp.UpdatedAt, &cp.Generation)
	s.opportunities[cp.ID] = cp
	*o = *cp.Clone()
	return nil
}

func (s *Memory) GetOpportunity(_ context.Context, id string) (*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Opportunity(id)
}

func (s *Memory) ListOpportunities(_ context.Context, f OpportunityFilter) ([]*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Opportunity
	for _, o := range s.opportunities {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CreatorID != "" && o.CreatorPartyID != f.CreatorID {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !o.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, o.Clone())
	}
	sortByID(out, func(o *domain.Opportunity) string { return o.ID })
	return out, nil
}

func (s *Memory) MutateOpportunity(_ context.Context, id string, expectedGen int64, fn func(v View, o *domain.Opportunity) error) (*domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.opportunities[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeOpportunityNotFound, "opportunity "+id+" not found")
	}
	if err := checkGeneration(expectedGen, cur.Generation, "opportunity", id); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(memView{s}, next); err != nil {
		return nil, err
	}
	stamp(time.Now().UTC(), nil, &next.UpdatedAt, &next.Generation)
	s.opportunities[id] = next
	return next.Clone(), nil
}

// Proposal operations

func (s *Memory) CreateProposal(_ context.Context, p *domain.Proposal, guard Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guard != nil {
		if err := guard(memView{s}); err != nil {
			return err
		}
	}
	if _, exists := s.proposals[p.ID]; exists {
		return apperrors.StateConflict(apperrors.CodeValidationFailed, "proposal "+p.ID+" already exists")
	}
	cp := p.Clone()
	stamp(time.Now().UTC(), &cp.CreatedAt, &cp.UpdatedAt, &cp.Generation)
	s.proposals[cp.ID] = cp
	*p = *cp.Clone()
	return nil
}

func (s *Memory) GetProposal(_ context.Context, id string) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Proposal(id)
}

func (s *Memory) ListProposals(_ context.Context, f ProposalFilter) ([]*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Proposal
	for _, p := range s.proposals {
		if f.OpportunityID != "" && p.OpportunityID != f.OpportunityID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, p.Status) {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !p.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, p.Clone())
	}
	sortByID(out, func(p *domain.Proposal) string { return p.ID })
	return out, nil
}

func (s *Memory) MutateProposal(_ context.Context, id string, expectedGen int64, fn func(v View, p *domain.Proposal) error) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.proposals[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeProposalNotFound, "proposal "+id+" not found")
	}
	if err := checkGeneration(expectedGen, cur.Generation, "proposal", id); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(memView{s}, next); err != nil {
		return nil, err
	}
	stamp(time.Now().UTC(), nil, &next.UpdatedAt, &next.Generation)
	s.proposals[id] = next
	return next.Clone(), nil
}

// Contract operations

func (s *Memory) CreateContract(_ context.Context, c *domain.Contract, guard Guard) (*domain.Contract, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unique constraint on source proposal: idempotent create.
	if c.SourceProposalID != "" {
		if existingID, ok := s.contractsBySource[c.SourceProposalID]; ok {
			return s.contracts[existingID].Clone(), false, nil
		}
	}
	if guard != nil {
		if err := guard(memView{s}); err != nil {
			return nil, false, err
		}
	}
	if _, exists := s.contracts[c.ID]; exists {
		return nil, false, apperrors.StateConflict(apperrors.CodeValidationFailed, "contract "+c.ID+" already exists")
	}
	cp := c.Clone()
	stamp(time.Now().UTC(), &cp.CreatedAt, &cp.UpdatedAt, &cp.Generation)
	s.contracts[cp.ID] = cp
	if cp.SourceProposalID != "" {
		s.contractsBySource[cp.SourceProposalID] = cp.ID
	}
	return cp.Clone(), true, nil
}

func (s *Memory) GetContract(_ context.Context, id string) (*domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Contract(id)
}

func (s *Memory) GetContractBySourceProposal(_ context.Context, proposalID string) (*domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.contractsBySource[proposalID]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeContractNotFound, "no contract for proposal "+proposalID)
	}
	return s.contracts[id].Clone(), nil
}

func (s *Memory) MutateContract(_ context.Context, id string, expectedGen int64, fn func(v View, c *domain.Contract) error) (*domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.contracts[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeContractNotFound, "contract "+id+" not found")
	}
	if err := checkGeneration(expectedGen, cur.Generation, "contract", id); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(memView{s}, next); err != nil {
		return nil, err
	}
	stamp(time.Now().UTC(), nil, &next.UpdatedAt, &next.Generation)
	s.contracts[id] = next
	return next.Clone(), nil
}

// Engagement operations

func (s *Memory) CreateEngagement(_ context.Context, e *domain.Engagement, guard Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guard != nil {
		if err := guard(memView{s}); err != nil {
			return err
		}
	}
	if _, exists := s.engagements[e.ID]; exists {
		return apperrors.StateConflict(apperrors.CodeValidationFailed, "engagement "+e.ID+" already exists")
	}
	cp := e.Clone()
	stamp(time.Now().UTC(), &cp.CreatedAt, &cp.UpdatedAt, &cp.Generation)
	s.engagements[cp.ID] = cp
	*e = *cp.Clone()
	return nil
}

func (s *Memory) GetEngagement(_ context.Context, id string) (*domain.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Engagement(id)
}

func (s *Memory) ListEngagementsByContract(_ context.Context, contractID string) ([]*domain.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.EngagementsByContract(contractID)
}

func (s *Memory) MutateEngagement(_ context.Context, id string, expectedGen int64, fn func(v View, e *domain.Engagement) error) (*domain.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.engagements[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeEngagementNotFound, "engagement "+id+" not found")
	}
	if err := checkGeneration(expectedGen, cur.Generation, "engagement", id); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(memView{s}, next); err != nil {
		return nil, err
	}
	stamp(time.Now().UTC(), nil, &next.UpdatedAt, &next.Generation)
	s.engagements[id] = next
	return next.Clone(), nil
}

// Milestone operations

func (s *Memory) CreateMilestone(_ context.Context, m *domain.Milestone, guard Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guard != nil {
		if err := guard(memView{s}); err != nil {
			return err
		}
	}
	if _, exists := s.milestones[m.ID]; exists {
		return apperrors.StateConflict(apperrors.CodeValidationFailed, "milestone "+m.ID+" already exists")
	}
	cp := m.Clone()
	stamp(time.Now().UTC(), &cp.CreatedAt, &cp.UpdatedAt, &cp.Generation)
	s.milestones[cp.ID] = cp
	*m = *cp.Clone()
	return nil
}

func (s *Memory) GetMilestone(_ context.Context, id string) (*domain.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Milestone(id)
}

func (s *Memory) ListMilestonesByEngagement(_ context.Context, engagementID string) ([]*domain.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Milestone
	for _, m := range s.milestones {
		if m.EngagementID == engagementID {
			out = append(out, m.Clone())
		}
	}
	sortByID(out, func(m *domain.Milestone) string { return m.ID })
	return out, nil
}

func (s *Memory) MutateMilestone(_ context.Context, id string, expectedGen int64, fn func(v View, m *domain.Milestone) error) (*domain.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.milestones[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeMilestoneNotFound, "milestone "+id+" not found")
	}
	if err := checkGeneration(expectedGen, cur.Generation, "milestone", id); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(memView{s}, next); err != nil {
		return nil, err
	}
	stamp(time.Now().UTC(), nil, &next.UpdatedAt, &next.Generation)
	s.milestones[id] = next
	return next.Clone(), nil
}

func containsStatus(statuses []domain.ProposalStatus, s domain.ProposalStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
