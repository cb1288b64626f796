package domain

import "strings"

// ScopeType is the level in the scope hierarchy a Contract or
// Engagement is bound to.
type ScopeType string

const (
	ScopeOpportunity ScopeType = "OPPORTUNITY"
	ScopeProject     ScopeType = "PROJECT"
	ScopeSubProject  ScopeType = "SUB_PROJECT"
	ScopeWorkPackage ScopeType = "WORK_PACKAGE"
)

// scopeRank orders scope types from broadest to narrowest.
var scopeRank = map[ScopeType]int{
	ScopeOpportunity: 0,
	ScopeProject:     1,
	ScopeSubProject:  2,
	ScopeWorkPackage: 3,
}

// Valid reports whether the scope type is a known value.
func (t ScopeType) Valid() bool {
	_, ok := scopeRank[t]
	return ok
}

// ScopeRef identifies a node in the scope hierarchy. IDs are
// path-shaped ("proj-1/sub-2/wp-3"): a child's ID is its parent's ID
// plus one segment.
type ScopeRef struct {
	Type ScopeType `json:"type"`
	ID   string    `json:"id"`
}

// IsZero reports whether the reference is unset.
func (s ScopeRef) IsZero() bool {
	return s.Type == "" && s.ID == ""
}

// Within reports whether s falls inside parent: the same node, or a
// descendant by path prefix at an equal or narrower level.
func (s ScopeRef) Within(parent ScopeRef) bool {
	if !s.Type.Valid() || !parent.Type.Valid() {
		return false
	}
	if scopeRank[s.Type] < scopeRank[parent.Type] {
		return false
	}
	if s.ID == parent.ID {
		return true
	}
	return strings.HasPrefix(s.ID, parent.ID+"/")
}
