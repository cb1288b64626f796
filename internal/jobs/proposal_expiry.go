package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"collabforge.io/forge/internal/domain"
	apperrors "collabforge.io/forge/internal/pkg/errors"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/store"
)

const (
	// DefaultProposalTTL is the baseline idle period after which a
	// proposal still in negotiation is rejected by the sweep.
	DefaultProposalTTL = 14 * 24 * time.Hour
)

// ProposalExpiryArgs is a periodic maintenance job that rejects
// proposals abandoned mid-negotiation.
type ProposalExpiryArgs struct{}

// Kind returns the job kind identifier for the proposal sweep.
func (ProposalExpiryArgs) Kind() string { return "proposal_expiry" }

// InsertOpts ensures at most one sweep is enqueued per hour.
func (ProposalExpiryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ProposalExpiryWorker rejects proposals idle past the TTL.
// Terminal proposals (REJECTED, FINAL_ACCEPTED) are never touched.
type ProposalExpiryWorker struct {
	river.WorkerDefaults[ProposalExpiryArgs]
	store  store.Store
	events *domain.EventDispatcher
	ttl    time.Duration
}

// NewProposalExpiryWorker creates the sweep worker. Non-positive ttl
// falls back to the 14-day default.
func NewProposalExpiryWorker(st store.Store, events *domain.EventDispatcher, ttl time.Duration) *ProposalExpiryWorker {
	if ttl <= 0 {
		ttl = DefaultProposalTTL
	}
	return &ProposalExpiryWorker{store: st, events: events, ttl: ttl}
}

// Work rejects each expired proposal individually so a conflict on one
// does not abort the whole sweep.
func (w *ProposalExpiryWorker) Work(ctx context.Context, _ *river.Job[ProposalExpiryArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("proposal expiry worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.ttl)
	stale, err := w.store.ListProposals(ctx, store.ProposalFilter{
		Statuses: []domain.ProposalStatus{
			domain.ProposalSubmitted,
			domain.ProposalUnderReview,
			domain.ProposalChangesRequested,
		},
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return fmt.Errorf("list stale proposals before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	rejected := 0
	for _, p := range stale {
		_, err := w.store.MutateProposal(ctx, p.ID, store.AnyGeneration, func(_ store.View, p *domain.Proposal) error {
			if p.Status.Terminal() {
				// Finalized or rejected while the sweep was running.
				return apperrors.StateConflict(apperrors.CodeProposalFinalized, "already terminal")
			}
			p.Status = domain.ProposalRejected
			return nil
		})
		if err != nil {
			if !apperrors.IsKind(err, apperrors.KindStateConflict) {
				logger.Warn("proposal expiry skip",
					zap.String("proposal_id", p.ID),
					zap.Error(err),
				)
			}
			continue
		}
		rejected++
		w.dispatch(ctx, domain.NewEvent(domain.EventProposalRejected, "proposal", p.ID, "system", nil))
	}

	logger.Info("proposal expiry sweep completed",
		zap.Int("candidates", len(stale)),
		zap.Int("rejected", rejected),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("ttl", w.ttl),
	)
	return nil
}

func (w *ProposalExpiryWorker) dispatch(ctx context.Context, ev *domain.DomainEvent) {
	if w.events == nil {
		return
	}
	if err := w.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("expiry event delivery incomplete",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
			zap.Error(err),
		)
	}
}
