// Package jobs defines River Queue job types for background
// maintenance. Expiry sweeps run as periodic jobs so that stale
// negotiations do not linger forever.
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
	// DefaultOpportunityTTL is the baseline idle period after which a
	// PUBLISHED opportunity is closed by the sweep.
	DefaultOpportunityTTL = 30 * 24 * time.Hour
)

// OpportunityExpiryArgs is a periodic maintenance job that closes
// PUBLISHED opportunities that saw no activity within the TTL.
type OpportunityExpiryArgs struct{}

// Kind returns the job kind identifier for the opportunity sweep.
func (OpportunityExpiryArgs) Kind() string { return "opportunity_expiry" }

// InsertOpts ensures at most one sweep is enqueued per hour.
func (OpportunityExpiryArgs) InsertOpts() river.InsertOpts {
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

// OpportunityExpiryWorker closes opportunities idle past the TTL.
type OpportunityExpiryWorker struct {
	river.WorkerDefaults[OpportunityExpiryArgs]
	store  store.Store
	events *domain.EventDispatcher
	ttl    time.Duration
}

// NewOpportunityExpiryWorker creates the sweep worker. Non-positive
// ttl falls back to the 30-day default.
func NewOpportunityExpiryWorker(st store.Store, events *domain.EventDispatcher, ttl time.Duration) *OpportunityExpiryWorker {
	if ttl <= 0 {
		ttl = DefaultOpportunityTTL
	}
	return &OpportunityExpiryWorker{store: st, events: events, ttl: ttl}
}

// Work closes each expired opportunity individually so a conflict on
// one does not abort the whole sweep.
func (w *OpportunityExpiryWorker) Work(ctx context.Context, _ *river.Job[OpportunityExpiryArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("opportunity expiry worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.ttl)
	stale, err := w.store.ListOpportunities(ctx, store.OpportunityFilter{
		Status:        domain.OpportunityPublished,
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return fmt.Errorf("list stale opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	closed := 0
	for _, o := range stale {
		_, err := w.store.MutateOpportunity(ctx, o.ID, store.AnyGeneration, func(_ store.View, o *domain.Opportunity) error {
			if o.Status != domain.OpportunityPublished {
				// Raced with an explicit close; nothing to do.
				return apperrors.StateConflict(apperrors.CodeOpportunityClosed, "already closed")
			}
			o.Status = domain.OpportunityClosed
			return nil
		})
		if err != nil {
			if !apperrors.IsKind(err, apperrors.KindStateConflict) {
				logger.Warn("opportunity expiry skip",
					zap.String("opportunity_id", o.ID),
					zap.Error(err),
				)
			}
			continue
		}
		closed++
		w.dispatch(ctx, domain.NewEvent(domain.EventOpportunityClosed, "opportunity", o.ID, "system", nil))
	}

	logger.Info("opportunity expiry sweep completed",
		zap.Int("candidates", len(stale)),
		zap.Int("closed", closed),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("ttl", w.ttl),
	)
	return nil
}

func (w *OpportunityExpiryWorker) dispatch(ctx context.Context, ev *domain.DomainEvent) {
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
