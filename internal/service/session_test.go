package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSessionStore mocks the SessionStore interface.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context, s *domain.Session) error {
	args := m.Called(ctx, s)
	if args.Error(0) == nil {
		s.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockSessionStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

// ApplyRound runs fn against the session given to Return, standing in for
// the row-locked session the real store loads.
func (m *MockSessionStore) ApplyRound(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, fn domain.RoundFunc) (*domain.Round, error) {
	args := m.Called(ctx, id, tenantID, fn)
	if sess, ok := args.Get(0).(*domain.Session); ok {
		return fn(sess)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) ListRounds(ctx context.Context, sessionID uuid.UUID, tenantID uuid.UUID, limit int) ([]domain.Round, error) {
	args := m.Called(ctx, sessionID, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Round), args.Error(1)
}

func (m *MockSessionStore) FindSimilarRounds(ctx context.Context, sessionID uuid.UUID, tenantID uuid.UUID, projection []float32, limit int) ([]domain.RoundWithDistance, error) {
	args := m.Called(ctx, sessionID, tenantID, projection, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RoundWithDistance), args.Error(1)
}

func (m *MockSessionStore) ListAgeing(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionStore) UpdateSourceTrust(ctx context.Context, sourceID uuid.UUID, trust domain.Opinion[float64], readAt time.Time) error {
	args := m.Called(ctx, sourceID, trust, readAt)
	return args.Error(0)
}

func newTestSessionService(s domain.SessionStore) *SessionService {
	return NewSessionService(s, DefaultSessionDefaults(), zap.NewNop())
}

// newSensorSession builds a session the way Create would, with sources
// a, b and x under vacuous trust.
func newSensorSession(t *testing.T, svc *SessionService) *domain.Session {
	t.Helper()
	sess, err := svc.buildSession(uuid.New(), CreateSessionInput{
		Name:    "door-open",
		Sources: []string{"a", "b", "x"},
	})
	require.NoError(t, err)
	sess.ID = uuid.New()
	return sess
}

func sensorInputs(t *testing.T) []SourceInput {
	agree := mustOpinion(t, 0.7, 0.1)
	dissent := mustOpinion(t, 0.1, 0.7)
	return []SourceInput{
		{Source: "a", Opinion: &agree},
		{Source: "b", Opinion: &agree},
		{Source: "x", Opinion: &dissent},
	}
}

func TestSessionService_Create(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)
	tenantID := uuid.New()

	sessionStore.On("Create", ctx, mock.AnythingOfType("*domain.Session")).Return(nil)

	sess, err := svc.Create(ctx, tenantID, CreateSessionInput{
		Name:    "  door-open ",
		Sources: []string{"a", "b"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, tenantID, sess.TenantID)
	assert.Equal(t, "door-open", sess.Name)
	assert.Equal(t, 2, sess.Dimension)
	assert.Equal(t, domain.FusionCumulative, sess.FusionType)
	assert.Equal(t, DefaultSessionDefaults().RevisionTerms, sess.RevisionTerms)
	assert.Equal(t, domain.ShareLeaveOneOut, sess.SharePolicy)
	assert.Equal(t, domain.ReferenceLeaveOneOut, sess.ReferencePolicy)
	assert.InDelta(t, 2.0, sess.PriorWeight, tol)

	require.Len(t, sess.Sources, 2)
	for i, src := range sess.Sources {
		assert.Equal(t, i, src.Position)
		assert.True(t, src.Trust.IsVacuous())
		assert.True(t, src.Opinion.IsVacuous())
		assert.Equal(t, 2, src.Opinion.Dimension())
	}

	sessionStore.AssertExpectations(t)
}

func TestSessionService_CreateWithOverrides(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)

	sessionStore.On("Create", ctx, mock.AnythingOfType("*domain.Session")).Return(nil)

	scale := true
	trust, err := domain.NewBinomial(0.5, 0.1)
	require.NoError(t, err)
	terms := []domain.RevisionTerm{{Type: domain.RevisionNormal, Conflict: domain.ConflictBeliefAverage, Weight: 0.5}}

	sess, err := svc.Create(ctx, uuid.New(), CreateSessionInput{
		Name:                    "weather",
		Dimension:               3,
		Sources:                 []string{"s1", "s2"},
		FusionType:              domain.FusionAverage,
		RevisionTerms:           terms,
		SharePolicy:             domain.ShareProportional,
		ReferencePolicy:         domain.ReferenceJoint,
		ScaleByTrustUncertainty: &scale,
		PriorWeight:             1.5,
		AgeingRate:              0.1,
		InitialTrust:            &trust,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.FusionAverage, sess.FusionType)
	assert.Equal(t, terms, sess.RevisionTerms)
	assert.Equal(t, domain.ShareProportional, sess.SharePolicy)
	assert.Equal(t, domain.ReferenceJoint, sess.ReferencePolicy)
	assert.True(t, sess.ScaleByTrustUncertainty)
	assert.InDelta(t, 1.5, sess.PriorWeight, tol)
	assert.InDelta(t, 0.1, sess.AgeingRate, tol)
	assert.True(t, sess.Sources[1].Trust.Equal(trust, 0))
	assert.Equal(t, 3, sess.Sources[1].Opinion.Dimension())
}

func TestSessionService_CreateValidation(t *testing.T) {
	trinomial := mustOpinion(t, 0.1, 0.1, 0.1)

	tests := []struct {
		name    string
		input   CreateSessionInput
		wantErr error
	}{
		{"empty name", CreateSessionInput{Name: "  ", Sources: []string{"a"}}, ErrSessionNameEmpty},
		{"no sources", CreateSessionInput{Name: "s"}, ErrSessionNoSources},
		{"duplicate source", CreateSessionInput{Name: "s", Sources: []string{"a", "a"}}, ErrDuplicateSource},
		{"blank source", CreateSessionInput{Name: "s", Sources: []string{"a", " "}}, ErrDuplicateSource},
		{"dimension one", CreateSessionInput{Name: "s", Sources: []string{"a"}, Dimension: 1}, ErrInvalidSessionInput},
		{"fusion type", CreateSessionInput{Name: "s", Sources: []string{"a"}, FusionType: "majority"}, ErrInvalidSessionInput},
		{"share policy", CreateSessionInput{Name: "s", Sources: []string{"a"}, SharePolicy: "equal"}, ErrInvalidSessionInput},
		{"negative prior", CreateSessionInput{Name: "s", Sources: []string{"a"}, PriorWeight: -1}, ErrInvalidSessionInput},
		{"negative ageing", CreateSessionInput{Name: "s", Sources: []string{"a"}, AgeingRate: -1}, ErrInvalidSessionInput},
		{"revision term", CreateSessionInput{
			Name:          "s",
			Sources:       []string{"a"},
			RevisionTerms: []domain.RevisionTerm{{Type: "bogus", Conflict: domain.ConflictAverage, Weight: 1}},
		}, ErrInvalidSessionInput},
		{"trinomial trust", CreateSessionInput{Name: "s", Sources: []string{"a"}, InitialTrust: &trinomial}, ErrInvalidSessionInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionStore := new(MockSessionStore)
			svc := newTestSessionService(sessionStore)

			_, err := svc.Create(context.Background(), uuid.New(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			sessionStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSessionService_CreateConflict(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)

	sessionStore.On("Create", ctx, mock.AnythingOfType("*domain.Session")).Return(store.ErrConflict)

	_, err := svc.Create(ctx, uuid.New(), CreateSessionInput{Name: "s", Sources: []string{"a"}})
	assert.ErrorIs(t, err, ErrSessionConflict)
}

func TestSessionService_GetByIDNotFound(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)
	id, tenantID := uuid.New(), uuid.New()

	sessionStore.On("GetByID", ctx, id, tenantID).Return(nil, store.ErrNotFound)

	_, err := svc.GetByID(ctx, id, tenantID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_SubmitRound(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)
	sess := newSensorSession(t, svc)

	sessionStore.On("ApplyRound", ctx, sess.ID, sess.TenantID, mock.Anything).Return(sess, nil)

	round, err := svc.SubmitRound(ctx, sess.ID, sess.TenantID, sensorInputs(t))
	require.NoError(t, err)

	assert.Equal(t, 1, round.Number)
	assert.Equal(t, sess.ID, round.SessionID)
	assert.InDelta(t, 0.032, round.Conflict, tol)
	assert.InDeltaSlice(t, []float64{0, 0, 0.032}, round.Factors, tol)
	assert.InDeltaSlice(t, round.Fused.Projection(), round.Projection, tol)
	assert.Greater(t, round.Projection[0], 0.5)

	// revised trust is written back to the locked session
	assert.Equal(t, 1, sess.RoundCount)
	assert.True(t, sess.Sources[0].Trust.IsVacuous())
	assert.InDelta(t, 0.032, sess.Sources[2].Trust.BeliefAt(1), tol)
	assert.InDelta(t, 0.7, sess.Sources[0].Opinion.BeliefAt(0), tol)

	round, err = svc.SubmitRound(ctx, sess.ID, sess.TenantID, sensorInputs(t))
	require.NoError(t, err)
	assert.Equal(t, 2, round.Number)
	assert.Greater(t, sess.Sources[2].Trust.BeliefAt(1), 0.032)

	sessionStore.AssertExpectations(t)
}

func TestSessionService_SubmitRoundNotFound(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)
	id, tenantID := uuid.New(), uuid.New()

	sessionStore.On("ApplyRound", ctx, id, tenantID, mock.Anything).Return(nil, store.ErrNotFound)

	_, err := svc.SubmitRound(ctx, id, tenantID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRunRound_SoftObservations(t *testing.T) {
	svc := newTestSessionService(new(MockSessionStore))
	sess := newSensorSession(t, svc)

	inputs := sensorInputs(t)
	inputs[2] = SourceInput{Source: "x", Weights: []float64{0.8, 0.2}}

	_, err := runRound(sess, inputs)
	require.NoError(t, err)

	x := sess.Sources[2]
	require.Len(t, x.Evidence, 2)
	assert.Greater(t, x.Evidence[0], x.Evidence[1])
	assert.Greater(t, x.Opinion.BeliefAt(0), x.Opinion.BeliefAt(1))

	// evidence accumulates across rounds
	first := x.Evidence[0]
	_, err = runRound(sess, inputs)
	require.NoError(t, err)
	assert.Greater(t, sess.Sources[2].Evidence[0], first)
}

func TestRunRound_ExplicitOpinionResetsEvidence(t *testing.T) {
	svc := newTestSessionService(new(MockSessionStore))
	sess := newSensorSession(t, svc)

	soft := sensorInputs(t)
	soft[2] = SourceInput{Source: "x", Weights: []float64{0.8, 0.2}}
	for i := 0; i < 2; i++ {
		_, err := runRound(sess, soft)
		require.NoError(t, err)
	}
	require.Greater(t, sess.Sources[2].Evidence[0], sess.Sources[2].Evidence[1])

	// W = 2, so (0.1, 0.7) carries evidence 2*b/0.2
	reported := mustOpinion(t, 0.1, 0.7)
	explicit := sensorInputs(t)
	explicit[2] = SourceInput{Source: "x", Opinion: &reported}
	_, err := runRound(sess, explicit)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 7}, sess.Sources[2].Evidence, tol)

	_, err = runRound(sess, soft)
	require.NoError(t, err)
	x := sess.Sources[2]
	assert.Greater(t, x.Opinion.BeliefAt(1), x.Opinion.BeliefAt(0))

	dogmatic := mustOpinion(t, 0.2, 0.8)
	explicit[2] = SourceInput{Source: "x", Opinion: &dogmatic}
	_, err = runRound(sess, explicit)
	require.NoError(t, err)
	assert.Nil(t, sess.Sources[2].Evidence)
}

func TestRunRound_Errors(t *testing.T) {
	svc := newTestSessionService(new(MockSessionStore))
	op := mustOpinion(t, 0.3, 0.3)
	trinomial := mustOpinion(t, 0.1, 0.1, 0.1)

	tests := []struct {
		name    string
		inputs  []SourceInput
		wantErr error
	}{
		{"too few inputs", []SourceInput{{Source: "a", Opinion: &op}}, ErrSourceCountMismatch},
		{"unknown source", []SourceInput{
			{Source: "a", Opinion: &op}, {Source: "b", Opinion: &op}, {Source: "y", Opinion: &op},
		}, ErrUnknownSource},
		{"duplicate source", []SourceInput{
			{Source: "a", Opinion: &op}, {Source: "a", Opinion: &op}, {Source: "x", Opinion: &op},
		}, ErrDuplicateSource},
		{"opinion and weights", []SourceInput{
			{Source: "a", Opinion: &op, Weights: []float64{1, 0}}, {Source: "b", Opinion: &op}, {Source: "x", Opinion: &op},
		}, ErrInvalidSourceInput},
		{"neither", []SourceInput{
			{Source: "a"}, {Source: "b", Opinion: &op}, {Source: "x", Opinion: &op},
		}, ErrInvalidSourceInput},
		{"dimension", []SourceInput{
			{Source: "a", Opinion: &trinomial}, {Source: "b", Opinion: &op}, {Source: "x", Opinion: &op},
		}, domain.ErrDimensionMismatch},
		{"weights", []SourceInput{
			{Source: "a", Weights: []float64{0.9, 0.9}}, {Source: "b", Opinion: &op}, {Source: "x", Opinion: &op},
		}, domain.ErrInvalidWeights},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newSensorSession(t, svc)
			before := append([]domain.Source(nil), sess.Sources...)

			_, err := runRound(sess, tt.inputs)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, sess.RoundCount)
			assert.Equal(t, before, sess.Sources)
		})
	}
}

func TestSessionService_FindSimilarRounds(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)
	sess := newSensorSession(t, svc)

	want := []domain.RoundWithDistance{{Round: domain.Round{Number: 3}, Distance: 0.01}}
	sessionStore.On("GetByID", ctx, sess.ID, sess.TenantID).Return(sess, nil)
	sessionStore.On("FindSimilarRounds", ctx, sess.ID, sess.TenantID, []float32{0.75, 0.25}, 5).Return(want, nil)

	got, err := svc.FindSimilarRounds(ctx, sess.ID, sess.TenantID, []float64{0.75, 0.25}, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.FindSimilarRounds(ctx, sess.ID, sess.TenantID, []float64{0.5, 0.25, 0.25}, 5)
	assert.ErrorIs(t, err, ErrInvalidSessionInput)

	sessionStore.AssertExpectations(t)
}

func TestSessionService_ListRounds(t *testing.T) {
	ctx := context.Background()
	sessionStore := new(MockSessionStore)
	svc := newTestSessionService(sessionStore)
	sess := newSensorSession(t, svc)

	rounds := []domain.Round{{Number: 2}, {Number: 1}}
	sessionStore.On("GetByID", ctx, sess.ID, sess.TenantID).Return(sess, nil)
	sessionStore.On("ListRounds", ctx, sess.ID, sess.TenantID, 10).Return(rounds, nil)

	got, err := svc.ListRounds(ctx, sess.ID, sess.TenantID, 10)
	require.NoError(t, err)
	assert.Equal(t, rounds, got)

	other := uuid.New()
	sessionStore.On("GetByID", ctx, other, sess.TenantID).Return(nil, store.ErrNotFound)
	_, err = svc.ListRounds(ctx, other, sess.TenantID, 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	sessionStore.AssertNotCalled(t, "ListRounds", ctx, other, sess.TenantID, 10)
}
