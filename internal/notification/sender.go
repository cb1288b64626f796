// Package notification bridges domain events to the platform's
// notification delivery collaborator. The core only decides who is
// told about what; delivery and formatting belong to the collaborator.
package notification

import (
	"context"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/pkg/logger"
)

// Type classifies a notification for the delivery collaborator.
type Type string

const (
	TypeProposalReceived   Type = "PROPOSAL_RECEIVED"
	TypeProposalVersioned  Type = "PROPOSAL_VERSIONED"
	TypeProposalFinalized  Type = "PROPOSAL_FINALIZED"
	TypeContractSigned     Type = "CONTRACT_SIGNED"
	TypeEngagementStarted  Type = "ENGAGEMENT_STARTED"
	TypeMilestoneCompleted Type = "MILESTONE_COMPLETED"
)

// Params describes one notification to deliver.
type Params struct {
	RecipientID  string `json:"recipient_id"`
	Type         Type   `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

// Sender delivers notifications. Implemented by the platform's
// delivery service; LogSender is the default no-op-ish fallback.
type Sender interface {
	Send(ctx context.Context, params Params) error
	SendToMany(ctx context.Context, recipientIDs []string, params Params) error
}

// LogSender writes notifications to the structured log. Useful for
// development and as a safe default when no delivery collaborator is
// wired.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, params Params) error {
	logger.Info("notification",
		zap.String("recipient", params.RecipientID),
		zap.String("type", string(params.Type)),
		zap.String("title", params.Title),
		zap.String("resource_type", params.ResourceType),
		zap.String("resource_id", params.ResourceID),
	)
	return nil
}

// SendToMany implements Sender.
func (s LogSender) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	for _, id := range recipientIDs {
		p := params
		p.RecipientID = id
		if err := s.Send(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
