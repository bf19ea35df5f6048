package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
}

// RoundFunc mutates a locked session and returns the round to record.
type RoundFunc func(s *Session) (*Round, error)

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Session, error)
	// ApplyRound loads the session with its sources under a row lock, runs
	// fn and persists the updated sources and the returned round atomically.
	ApplyRound(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, fn RoundFunc) (*Round, error)
	ListRounds(ctx context.Context, sessionID uuid.UUID, tenantID uuid.UUID, limit int) ([]Round, error)
	FindSimilarRounds(ctx context.Context, sessionID uuid.UUID, tenantID uuid.UUID, projection []float32, limit int) ([]RoundWithDistance, error)
	// Ageing
	ListAgeing(ctx context.Context) ([]Session, error)
	// UpdateSourceTrust writes trust only while the source's UpdatedAt still
	// equals readAt, so a round committed after the read is never overwritten.
	UpdateSourceTrust(ctx context.Context, sourceID uuid.UUID, trust Opinion[float64], readAt time.Time) error
}
