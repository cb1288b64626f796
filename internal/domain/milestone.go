package domain

import (
	"time"

	"github.com/google/uuid"
)

// MilestoneType distinguishes deliverables from checkpoints.
type MilestoneType string

const (
	MilestoneDeliverable MilestoneType = "DELIVERABLE"
	MilestoneCheckpoint  MilestoneType = "MILESTONE"
)

// Valid reports whether the milestone type is a known value.
func (t MilestoneType) Valid() bool {
	return t == MilestoneDeliverable || t == MilestoneCheckpoint
}

// MilestoneStatus is the Milestone progress state.
// Transitions are forward-only, one step at a time.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "PENDING"
	MilestoneInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneCompleted  MilestoneStatus = "COMPLETED"
)

// Milestone is a tracked deliverable or checkpoint under an Engagement.
// ContractID is denormalized from the Engagement at creation time and
// must always equal the engagement's contract id.
type Milestone struct {
	ID           string          `json:"id"`
	EngagementID string          `json:"engagement_id"`
	ContractID   string          `json:"contract_id"`
	Title        string          `json:"title"`
	Type         MilestoneType   `json:"type"`
	Status       MilestoneStatus `json:"status"`
	DueDate      time.Time       `json:"due_date"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Generation int64     `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewMilestoneID returns a fresh prefixed milestone id.
func NewMilestoneID() string {
	return "mls-" + uuid.NewString()
}

// Clone returns a deep copy.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	cp := *m
	cp.CompletedAt = cloneTimePtr(m.CompletedAt)
	return &cp
}
