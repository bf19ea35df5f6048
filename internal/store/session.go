package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, tenant_id, name, dimension, fusion_type, revision_terms, share_policy, reference_policy,
		        scale_by_trust_uncertainty, prior_weight, ageing_rate, round_count, created_at, updated_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	s := &domain.Session{}
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Dimension, &s.FusionType, &s.RevisionTerms,
		&s.SharePolicy, &s.ReferencePolicy, &s.ScaleByTrustUncertainty, &s.PriorWeight, &s.AgeingRate,
		&s.RoundCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO sessions (tenant_id, name, dimension, fusion_type, revision_terms, share_policy, reference_policy,
			                       scale_by_trust_uncertainty, prior_weight, ageing_rate)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id, round_count, created_at, updated_at`,
			sess.TenantID, sess.Name, sess.Dimension, sess.FusionType, sess.RevisionTerms, sess.SharePolicy,
			sess.ReferencePolicy, sess.ScaleByTrustUncertainty, sess.PriorWeight, sess.AgeingRate,
		).Scan(&sess.ID, &sess.RoundCount, &sess.CreatedAt, &sess.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}

		for i := range sess.Sources {
			src := &sess.Sources[i]
			src.SessionID = sess.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO sources (session_id, name, position, trust_belief, trust_base_rate, belief, base_rate, evidence)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 RETURNING id, updated_at`,
				src.SessionID, src.Name, src.Position,
				src.Trust.Belief(), src.Trust.BaseRate(), src.Opinion.Belief(), src.Opinion.BaseRate(), src.Evidence,
			).Scan(&src.ID, &src.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert source %q: %w", src.Name, err)
			}
		}
		return nil
	})
}

func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	))
	if err != nil {
		return nil, err
	}
	if sess.Sources, err = loadSources(ctx, s.db, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func loadSources(ctx context.Context, q querier, sessionID uuid.UUID) ([]domain.Source, error) {
	rows, err := q.Query(ctx,
		`SELECT id, session_id, name, position, trust_belief, trust_base_rate, belief, base_rate, evidence, updated_at
		 FROM sources WHERE session_id = $1
		 ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		var trustBelief, trustBase, belief, base []float64
		if err := rows.Scan(&src.ID, &src.SessionID, &src.Name, &src.Position,
			&trustBelief, &trustBase, &belief, &base, &src.Evidence, &src.UpdatedAt); err != nil {
			return nil, err
		}
		if src.Trust, err = domain.NewOpinion(trustBelief, trustBase); err != nil {
			return nil, fmt.Errorf("source %s trust: %w", src.ID, err)
		}
		if src.Opinion, err = domain.NewOpinion(belief, base); err != nil {
			return nil, fmt.Errorf("source %s opinion: %w", src.ID, err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *SessionStore) ApplyRound(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, fn domain.RoundFunc) (*domain.Round, error) {
	var round *domain.Round
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		sess, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+`
			 FROM sessions WHERE id = $1 AND tenant_id = $2
			 FOR UPDATE`,
			id, tenantID,
		))
		if err != nil {
			return err
		}
		if sess.Sources, err = loadSources(ctx, tx, sess.ID); err != nil {
			return err
		}

		if round, err = fn(sess); err != nil {
			return err
		}

		for _, src := range sess.Sources {
			_, err := tx.Exec(ctx,
				`UPDATE sources
				 SET trust_belief = $2, trust_base_rate = $3, belief = $4, base_rate = $5, evidence = $6, updated_at = NOW()
				 WHERE id = $1`,
				src.ID, src.Trust.Belief(), src.Trust.BaseRate(), src.Opinion.Belief(), src.Opinion.BaseRate(), src.Evidence,
			)
			if err != nil {
				return fmt.Errorf("update source %s: %w", src.ID, err)
			}
		}

		round.SessionID = sess.ID
		projection := pgvector.NewVector(toFloat32(round.Projection))
		err = tx.QueryRow(ctx,
			`INSERT INTO rounds (session_id, number, fused_belief, fused_base_rate, conflict, projection, factors)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			round.SessionID, round.Number, round.Fused.Belief(), round.Fused.BaseRate(), round.Conflict, projection, round.Factors,
		).Scan(&round.ID, &round.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE sessions SET round_count = $2, updated_at = NOW() WHERE id = $1`,
			sess.ID, round.Number,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return round, nil
}

func scanRound(rows pgx.Rows, extra ...any) (domain.Round, error) {
	var r domain.Round
	var belief, base []float64
	var projection pgvector.Vector
	dest := append([]any{&r.ID, &r.SessionID, &r.Number, &belief, &base, &r.Conflict, &projection, &r.Factors, &r.CreatedAt}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return r, err
	}
	fused, err := domain.NewOpinion(belief, base)
	if err != nil {
		return r, fmt.Errorf("round %s fused opinion: %w", r.ID, err)
	}
	r.Fused = fused
	r.Projection = toFloat64(projection.Slice())
	return r, nil
}

func (s *SessionStore) ListRounds(ctx context.Context, sessionID uuid.UUID, tenantID uuid.UUID, limit int) ([]domain.Round, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.session_id, r.number, r.fused_belief, r.fused_base_rate, r.conflict, r.projection, r.factors, r.created_at
		 FROM rounds r
		 JOIN sessions s ON s.id = r.session_id
		 WHERE r.session_id = $1 AND s.tenant_id = $2
		 ORDER BY r.number DESC
		 LIMIT $3`,
		sessionID, tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// FindSimilarRounds returns past rounds whose fused projection lies
// closest (L2) to projection.
func (s *SessionStore) FindSimilarRounds(ctx context.Context, sessionID uuid.UUID, tenantID uuid.UUID, projection []float32, limit int) ([]domain.RoundWithDistance, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(projection)
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.session_id, r.number, r.fused_belief, r.fused_base_rate, r.conflict, r.projection, r.factors, r.created_at,
		        r.projection <-> $3 AS distance
		 FROM rounds r
		 JOIN sessions s ON s.id = r.session_id
		 WHERE r.session_id = $1 AND s.tenant_id = $2
		 ORDER BY r.projection <-> $3
		 LIMIT $4`,
		sessionID, tenantID, vec, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.RoundWithDistance
	for rows.Next() {
		var distance float64
		r, err := scanRound(rows, &distance)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.RoundWithDistance{Round: r, Distance: distance})
	}
	return results, rows.Err()
}

// ListAgeing returns every session with a positive ageing rate, sources
// included.
func (s *SessionStore) ListAgeing(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE ageing_rate > 0`,
	)
	if err != nil {
		return nil, err
	}
	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if sessions[i].Sources, err = loadSources(ctx, s.db, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// UpdateSourceTrust replaces a source's trust unless the source was written
// since readAt, in which case it returns ErrStale.
func (s *SessionStore) UpdateSourceTrust(ctx context.Context, sourceID uuid.UUID, trust domain.Opinion[float64], readAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sources SET trust_belief = $2, trust_base_rate = $3, updated_at = NOW()
		 WHERE id = $1 AND updated_at = $4`,
		sourceID, trust.Belief(), trust.BaseRate(), readAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
