package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabforge.io/forge/internal/domain"
	apperrors "collabforge.io/forge/internal/pkg/errors"
)

// Postgres is the pgx-backed Store implementation. Aggregates are
// stored as JSONB documents with the columns the core filters on
// pulled out; each mutation runs in a transaction that locks the
// target row FOR UPDATE, so guards validate against a consistent
// snapshot. The unique index on contracts.source_proposal_id is the
// transactional at-most-once constraint behind contract generation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a postgres-backed store over an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// Migrate creates the aggregate tables. Development convenience;
// production deployments manage schema externally.
func (s *Postgres) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS opportunities (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	creator_id  TEXT NOT NULL,
	generation  BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	doc         JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS proposals (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL,
	status         TEXT NOT NULL,
	generation     BIGINT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	doc            JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS proposals_opportunity_idx ON proposals (opportunity_id);
CREATE TABLE IF NOT EXISTS contracts (
	id                 TEXT PRIMARY KEY,
	source_proposal_id TEXT,
	status             TEXT NOT NULL,
	generation         BIGINT NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	doc                JSONB NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS contracts_source_proposal_idx
	ON contracts (source_proposal_id) WHERE source_proposal_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS engagements (
	id          TEXT PRIMARY KEY,
	contract_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	generation  BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	doc         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS engagements_contract_idx ON engagements (contract_id);
CREATE TABLE IF NOT EXISTS milestones (
	id            TEXT PRIMARY KEY,
	engagement_id TEXT NOT NULL,
	status        TEXT NOT NULL,
	generation    BIGINT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	doc           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS milestones_engagement_idx ON milestones (engagement_id);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate aggregate tables: %w", err)
	}
	return nil
}

// pgView reads within the mutation's transaction.
type pgView struct {
	ctx context.Context
	tx  pgx.Tx
}

func (v pgView) Opportunity(id string) (*domain.Opportunity, error) {
	var o domain.Opportunity
	if err := scanDoc(v.ctx, v.tx, "opportunities", id, &o); err != nil {
		return nil, notFoundOr(err, apperrors.CodeOpportunityNotFound, "opportunity "+id+" not found")
	}
	return &o, nil
}

func (v pgView) Proposal(id string) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := scanDoc(v.ctx, v.tx, "proposals", id, &p); err != nil {
		return nil, notFoundOr(err, apperrors.CodeProposalNotFound, "proposal "+id+" not found")
	}
	return &p, nil
}

func (v pgView) Contract(id string) (*domain.Contract, error) {
	var c domain.Contract
	if err := scanDoc(v.ctx, v.tx, "contracts", id, &c); err != nil {
		return nil, notFoundOr(err, apperrors.CodeContractNotFound, "contract "+id+" not found")
	}
	return &c, nil
}

func (v pgView) Engagement(id string) (*domain.Engagement, error) {
	var e domain.Engagement
	if err := scanDoc(v.ctx, v.tx, "engagements", id, &e); err != nil {
		return nil, notFoundOr(err, apperrors.CodeEngagementNotFound, "engagement "+id+" not found")
	}
	return &e, nil
}

func (v pgView) Milestone(id string) (*domain.Milestone, error) {
	var m domain.Milestone
	if err := scanDoc(v.ctx, v.tx, "milestones", id, &m); err != nil {
		return nil, notFoundOr(err, apperrors.CodeMilestoneNotFound, "milestone "+id+" not found")
	}
	return &m, nil
}

func (v pgView) EngagementsByContract(contractID string) ([]*domain.Engagement, error) {
	rows, err := v.tx.Query(v.ctx,
		`SELECT doc FROM engagements WHERE contract_id = $1 ORDER BY id FOR SHARE`, contractID)
	if err != nil {
		return nil, storeFailure("list engagements", err)
	}
	defer rows.Close()
	var out []*domain.Engagement
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, storeFailure("scan engagement", err)
		}
		var e domain.Engagement
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, storeFailure("decode engagement", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// scanDoc locks the referenced row FOR SHARE so a guard cannot validate
// against an aggregate that a concurrent transaction is rewriting.
func scanDoc(ctx context.Context, tx pgx.Tx, table, id string, dst interface{}) error {
	var raw []byte
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1 FOR SHARE`, table), id).Scan(&raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func notFoundOr(err error, code, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound(code, msg)
	}
	return storeFailure(msg, err)
}

func storeFailure(op string, err error) error {
	return apperrors.Wrap(err, apperrors.KindInternal, apperrors.CodeStoreFailure, op)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeFailure("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeFailure("commit tx", err)
	}
	return nil
}

// Opportunity operations

func (s *Postgres) CreateOpportunity(ctx context.Context, o *domain.Opportunity) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		o.CreatedAt, o.UpdatedAt, o.Generation = now, now, 1
		doc, err := json.Marshal(o)
		if err != nil {
			return storeFailure("encode opportunity", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO opportunities (id, status, creator_id, generation, updated_at, doc)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, o.Status, o.CreatorPartyID, o.Generation, o.UpdatedAt, doc)
		if isUniqueViolation(err) {
			return apperrors.StateConflict(apperrors.CodeValidationFailed, "opportunity "+o.ID+" already exists")
		}
		if err != nil {
			return storeFailure("insert opportunity", err)
		}
		return nil
	})
}

func (s *Postgres) GetOpportunity(ctx context.Context, id string) (*domain.Opportunity, error) {
	var o domain.Opportunity
	if err := s.getDoc(ctx, "opportunities", id, &o); err != nil {
		return nil, notFoundOr(err, apperrors.CodeOpportunityNotFound, "opportunity "+id+" not found")
	}
	return &o, nil
}

func (s *Postgres) ListOpportunities(ctx context.Context, f OpportunityFilter) ([]*domain.Opportunity, error) {
	q := `SELECT doc FROM opportunities WHERE 1=1`
	var args []interface{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CreatorID != "" {
		args = append(args, f.CreatorID)
		q += fmt.Sprintf(" AND creator_id = $%d", len(args))
	}
	if !f.UpdatedBefore.IsZero() {
		args = append(args, f.UpdatedBefore)
		q += fmt.Sprintf(" AND updated_at < $%d", len(args))
	}
	q += " ORDER BY id"
	return queryDocs[domain.Opportunity](ctx, s.pool, q, args...)
}

func (s *Postgres) MutateOpportunity(ctx context.Context, id string, expectedGen int64, fn func(v View, o *domain.Opportunity) error) (*domain.Opportunity, error) {
	var result *domain.Opportunity
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var o domain.Opportunity
		if err := lockDoc(ctx, tx, "opportunities", id, &o); err != nil {
			return notFoundOr(err, apperrors.CodeOpportunityNotFound, "opportunity "+id+" not found")
		}
		if err := checkGeneration(expectedGen, o.Generation, "opportunity", id); err != nil {
			return err
		}
		if err := fn(pgView{ctx, tx}, &o); err != nil {
			return err
		}
		o.Generation++
		o.UpdatedAt = time.Now().UTC()
		doc, err := json.Marshal(&o)
		if err != nil {
			return storeFailure("encode opportunity", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET status = $2, generation = $3, updated_at = $4, doc = $5 WHERE id = $1`,
			id, o.Status, o.Generation, o.UpdatedAt, doc); err != nil {
			return storeFailure("update opportunity", err)
		}
		result = &o
		return nil
	})
	return result, err
}

// Proposal operations

func (s *Postgres) CreateProposal(ctx context.Context, p *domain.Proposal, guard Guard) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if guard != nil {
			if err := guard(pgView{ctx, tx}); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		p.CreatedAt, p.UpdatedAt, p.Generation = now, now, 1
		doc, err := json.Marshal(p)
		if err != nil {
			return storeFailure("encode proposal", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO proposals (id, opportunity_id, status, generation, updated_at, doc)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.OpportunityID, p.Status, p.Generation, p.UpdatedAt, doc)
		if isUniqueViolation(err) {
			return apperrors.StateConflict(apperrors.CodeValidationFailed, "proposal "+p.ID+" already exists")
		}
		if err != nil {
			return storeFailure("insert proposal", err)
		}
		return nil
	})
}

func (s *Postgres) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := s.getDoc(ctx, "proposals", id, &p); err != nil {
		return nil, notFoundOr(err, apperrors.CodeProposalNotFound, "proposal "+id+" not found")
	}
	return &p, nil
}

func (s *Postgres) ListProposals(ctx context.Context, f ProposalFilter) ([]*domain.Proposal, error) {
	q := `SELECT doc FROM proposals WHERE 1=1`
	var args []interface{}
	if f.OpportunityID != "" {
		args = append(args, f.OpportunityID)
		q += fmt.Sprintf(" AND opportunity_id = $%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		q += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if !f.UpdatedBefore.IsZero() {
		args = append(args, f.UpdatedBefore)
		q += fmt.Sprintf(" AND updated_at < $%d", len(args))
	}
	q += " ORDER BY id"
	return queryDocs[domain.Proposal](ctx, s.pool, q, args...)
}

func (s *Postgres) MutateProposal(ctx context.Context, id string, expectedGen int64, fn func(v View, p *domain.Proposal) error) (*domain.Proposal, error) {
	var result *domain.Proposal
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var p domain.Proposal
		if err := lockDoc(ctx, tx, "proposals", id, &p); err != nil {
			return notFoundOr(err, apperrors.CodeProposalNotFound, "proposal "+id+" not found")
		}
		if err := checkGeneration(expectedGen, p.Generation, "proposal", id); err != nil {
			return err
		}
		if err := fn(pgView{ctx, tx}, &p); err != nil {
			return err
		}
		p.Generation++
		p.UpdatedAt = time.Now().UTC()
		doc, err := json.Marshal(&p)
		if err != nil {
			return storeFailure("encode proposal", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE proposals SET status = $2, generation = $3, updated_at = $4, doc = $5 WHERE id = $1`,
			id, p.Status, p.Generation, p.UpdatedAt, doc); err != nil {
			return storeFailure("update proposal", err)
		}
		result = &p
		return nil
	})
	return result, err
}

// Contract operations

func (s *Postgres) CreateContract(ctx context.Context, c *domain.Contract, guard Guard) (*domain.Contract, bool, error) {
	var (
		result *domain.Contract
		fresh  bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if c.SourceProposalID != "" {
			var raw []byte
			err := tx.QueryRow(ctx,
				`SELECT doc FROM contracts WHERE source_proposal_id = $1 FOR SHARE`,
				c.SourceProposalID).Scan(&raw)
			switch {
			case err == nil:
				var existing domain.Contract
				if err := json.Unmarshal(raw, &existing); err != nil {
					return storeFailure("decode contract", err)
				}
				result = &existing
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return storeFailure("lookup contract by source proposal", err)
			}
		}
		if guard != nil {
			if err := guard(pgView{ctx, tx}); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		c.CreatedAt, c.UpdatedAt, c.Generation = now, now, 1
		doc, err := json.Marshal(c)
		if err != nil {
			return storeFailure("encode contract", err)
		}
		var sourceID interface{}
		if c.SourceProposalID != "" {
			sourceID = c.SourceProposalID
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO contracts (id, source_proposal_id, status, generation, updated_at, doc)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, sourceID, c.Status, c.Generation, c.UpdatedAt, doc)
		if isUniqueViolation(err) {
			// Lost the race on source_proposal_id; the winner's row is
			// the contract. Retryable so the caller re-reads it.
			return apperrors.StateConflict(apperrors.CodeGenerationStale,
				"contract for proposal "+c.SourceProposalID+" created concurrently")
		}
		if err != nil {
			return storeFailure("insert contract", err)
		}
		result = c
		fresh = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, fresh, nil
}

func (s *Postgres) GetContract(ctx context.Context, id string) (*domain.Contract, error) {
	var c domain.Contract
	if err := s.getDoc(ctx, "contracts", id, &c); err != nil {
		return nil, notFoundOr(err, apperrors.CodeContractNotFound, "contract "+id+" not found")
	}
	return &c, nil
}

func (s *Postgres) GetContractBySourceProposal(ctx context.Context, proposalID string) (*domain.Contract, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM contracts WHERE source_proposal_id = $1`, proposalID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound(apperrors.CodeContractNotFound, "no contract for proposal "+proposalID)
	}
	if err != nil {
		return nil, storeFailure("lookup contract by source proposal", err)
	}
	var c domain.Contract
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, storeFailure("decode contract", err)
	}
	return &c, nil
}

func (s *Postgres) MutateContract(ctx context.Context, id string, expectedGen int64, fn func(v View, c *domain.Contract) error) (*domain.Contract, error) {
	var result *domain.Contract
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var c domain.Contract
		if err := lockDoc(ctx, tx, "contracts", id, &c); err != nil {
			return notFoundOr(err, apperrors.CodeContractNotFound, "contract "+id+" not found")
		}
		if err := checkGeneration(expectedGen, c.Generation, "contract", id); err != nil {
			return err
		}
		if err := fn(pgView{ctx, tx}, &c); err != nil {
			return err
		}
		c.Generation++
		c.UpdatedAt = time.Now().UTC()
		doc, err := json.Marshal(&c)
		if err != nil {
			return storeFailure("encode contract", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE contracts SET status = $2, generation = $3, updated_at = $4, doc = $5 WHERE id = $1`,
			id, c.Status, c.Generation, c.UpdatedAt, doc); err != nil {
			return storeFailure("update contract", err)
		}
		result = &c
		return nil
	})
	return result, err
}

// Engagement operations

func (s *Postgres) CreateEngagement(ctx context.Context, e *domain.Engagement, guard Guard) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if guard != nil {
			if err := guard(pgView{ctx, tx}); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		e.CreatedAt, e.UpdatedAt, e.Generation = now, now, 1
		doc, err := json.Marshal(e)
		if err != nil {
			return storeFailure("encode engagement", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO engagements (id, contract_id, status, generation, updated_at, doc)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.ContractID, e.Status, e.Generation, e.UpdatedAt, doc)
		if isUniqueViolation(err) {
			return apperrors.StateConflict(apperrors.CodeValidationFailed, "engagement "+e.ID+" already exists")
		}
		if err != nil {
			return storeFailure("insert engagement", err)
		}
		return nil
	})
}

func (s *Postgres) GetEngagement(ctx context.Context, id string) (*domain.Engagement, error) {
	var e domain.Engagement
	if err := s.getDoc(ctx, "engagements", id, &e); err != nil {
		return nil, notFoundOr(err, apperrors.CodeEngagementNotFound, "engagement "+id+" not found")
	}
	return &e, nil
}

func (s *Postgres) ListEngagementsByContract(ctx context.Context, contractID string) ([]*domain.Engagement, error) {
	return queryDocs[domain.Engagement](ctx, s.pool,
		`SELECT doc FROM engagements WHERE contract_id = $1 ORDER BY id`, contractID)
}

func (s *Postgres) MutateEngagement(ctx context.Context, id string, expectedGen int64, fn func(v View, e *domain.Engagement) error) (*domain.Engagement, error) {
	var result *domain.Engagement
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var e domain.Engagement
		if err := lockDoc(ctx, tx, "engagements", id, &e); err != nil {
			return notFoundOr(err, apperrors.CodeEngagementNotFound, "engagement "+id+" not found")
		}
		if err := checkGeneration(expectedGen, e.Generation, "engagement", id); err != nil {
			return err
		}
		if err := fn(pgView{ctx, tx}, &e); err != nil {
			return err
		}
		e.Generation++
		e.UpdatedAt = time.Now().UTC()
		doc, err := json.Marshal(&e)
		if err != nil {
			return storeFailure("encode engagement", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE engagements SET status = $2, generation = $3, updated_at = $4, doc = $5 WHERE id = $1`,
			id, e.Status, e.Generation, e.UpdatedAt, doc); err != nil {
			return storeFailure("update engagement", err)
		}
		result = &e
		return nil
	})
	return result, err
}

// Milestone operations

func (s *Postgres) CreateMilestone(ctx context.Context, m *domain.Milestone, guard Guard) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if guard != nil {
			if err := guard(pgView{ctx, tx}); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		m.CreatedAt, m.UpdatedAt, m.Generation = now, now, 1
		doc, err := json.Marshal(m)
		if err != nil {
			return storeFailure("encode milestone", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO milestones (id, engagement_id, status, generation, updated_at, doc)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.EngagementID, m.Status, m.Generation, m.UpdatedAt, doc)
		if isUniqueViolation(err) {
			return apperrors.StateConflict(apperrors.CodeValidationFailed, "milestone "+m.ID+" already exists")
		}
		if err != nil {
			return storeFailure("insert milestone", err)
		}
		return nil
	})
}

func (s *Postgres) GetMilestone(ctx context.Context, id string) (*domain.Milestone, error) {
	var m domain.Milestone
	if err := s.getDoc(ctx, "milestones", id, &m); err != nil {
		return nil, notFoundOr(err, apperrors.CodeMilestoneNotFound, "milestone "+id+" not found")
	}
	return &m, nil
}

func (s *Postgres) ListMilestonesByEngagement(ctx context.Context, engagementID string) ([]*domain.Milestone, error) {
	return queryDocs[domain.Milestone](ctx, s.pool,
		`SELECT doc FROM milestones WHERE engagement_id = $1 ORDER BY id`, engagementID)
}

func (s *Postgres) MutateMilestone(ctx context.Context, id string, expectedGen int64, fn func(v View, m *domain.Milestone) error) (*domain.Milestone, error) {
	var result *domain.Milestone
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var m domain.Milestone
		if err := lockDoc(ctx, tx, "milestones", id, &m); err != nil {
			return notFoundOr(err, apperrors.CodeMilestoneNotFound, "milestone "+id+" not found")
		}
		if err := checkGeneration(expectedGen, m.Generation, "milestone", id); err != nil {
			return err
		}
		if err := fn(pgView{ctx, tx}, &m); err != nil {
			return err
		}
		m.Generation++
		m.UpdatedAt = time.Now().UTC()
		doc, err := json.Marshal(&m)
		if err != nil {
			return storeFailure("encode milestone", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE milestones SET status = $2, generation = $3, updated_at = $4, doc = $5 WHERE id = $1`,
			id, m.Status, m.Generation, m.UpdatedAt, doc); err != nil {
			return storeFailure("update milestone", err)
		}
		result = &m
		return nil
	})
	return result, err
}

// Shared row helpers

func (s *Postgres) getDoc(ctx context.Context, table, id string, dst interface{}) error {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, table), id).Scan(&raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// lockDoc locks the row FOR UPDATE: single writer per aggregate.
func lockDoc(ctx context.Context, tx pgx.Tx, table, id string, dst interface{}) error {
	var raw []byte
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1 FOR UPDATE`, table), id).Scan(&raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func queryDocs[T any](ctx context.Context, pool *pgxpool.Pool, q string, args ...interface{}) ([]*T, error) {
	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storeFailure("query", err)
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, storeFailure("scan row", err)
		}
		item := new(T)
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, storeFailure("decode row", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
