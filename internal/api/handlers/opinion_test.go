package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newTestOpinionHandler() *OpinionHandler {
	return NewOpinionHandler(service.DefaultSessionDefaults())
}

func TestOpinionHandler_Fuse(t *testing.T) {
	h := newTestOpinionHandler()

	rec := postJSON(t, h.Fuse, `{"fusion_type":"average","opinions":[{"belief":[0.6,0.2]},{"belief":[0.3,0.5]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[opinionResponse](t, rec)
	assert.InDeltaSlice(t, []float64{0.45, 0.35}, resp.Opinion.Belief(), 1e-9)
	assert.InDeltaSlice(t, []float64{0.55, 0.45}, resp.Projection, 1e-9)

	// fusion type falls back to the configured default
	rec = postJSON(t, h.Fuse, `{"opinions":[{"belief":[0.6,0.2]},{"belief":[0.3,0.5]}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[opinionResponse](t, rec)
	assert.InDeltaSlice(t, []float64{0.5, 0.14 / 0.36}, resp.Opinion.Belief(), 1e-9)
}

func TestOpinionHandler_FuseErrors(t *testing.T) {
	h := newTestOpinionHandler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed", `{"opinions":`, http.StatusBadRequest},
		{"invalid opinion", `{"opinions":[{"belief":[0.8,0.8]}]}`, http.StatusBadRequest},
		{"no opinions", `{"opinions":[]}`, http.StatusBadRequest},
		{"unknown fusion", `{"fusion_type":"majority","opinions":[{"belief":[0.1,0.1]}]}`, http.StatusBadRequest},
		{"dimension mismatch", `{"opinions":[{"belief":[0.1,0.1]},{"belief":[0.1,0.1,0.1]}]}`, http.StatusBadRequest},
		{"total conflict", `{"fusion_type":"belief_constraint","opinions":[{"belief":[1,0]},{"belief":[0,1]}]}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Fuse, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestOpinionHandler_Conflict(t *testing.T) {
	h := newTestOpinionHandler()

	rec := postJSON(t, h.Conflict, `{"opinions":[{"belief":[0.7,0.1]},{"belief":[0.7,0.1]},{"belief":[0.1,0.7]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[conflictResponse](t, rec)
	assert.InDelta(t, 2*0.384/3, resp.Conflict, 1e-9)
	assert.InDelta(t, (0.64+2*0.256)/3, resp.Harmony, 1e-9)
	assert.InDeltaSlice(t, []float64{-0.5, -0.5, 1}, resp.Shares, 1e-9)

	rec = postJSON(t, h.Conflict, `{"conflict_type":"maximum","opinions":[{"belief":[0.7,0.1]}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpinionHandler_Discount(t *testing.T) {
	h := newTestOpinionHandler()

	rec := postJSON(t, h.Discount, `{"opinion":{"belief":[0.6,0.2]},"factor":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[opinionResponse](t, rec)
	assert.InDeltaSlice(t, []float64{0.3, 0.1}, resp.Opinion.Belief(), 1e-9)

	// trust (0.5, 0) projects to 0.75
	rec = postJSON(t, h.Discount, `{"opinion":{"belief":[0.6,0.2]},"trust":{"belief":[0.5,0]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[opinionResponse](t, rec)
	assert.InDeltaSlice(t, []float64{0.45, 0.15}, resp.Opinion.Belief(), 1e-9)

	for _, body := range []string{
		`{"opinion":{"belief":[0.6,0.2]}}`,
		`{"opinion":{"belief":[0.6,0.2]},"factor":0.5,"trust":{"belief":[0.5,0]}}`,
		`{"opinion":{"belief":[0.6,0.2]},"trust":{"belief":[0.2,0.2,0.2]}}`,
		`{"factor":0.5}`,
		`{"trust":{"belief":[0.5,0]}}`,
	} {
		rec := postJSON(t, h.Discount, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestOpinionHandler_Unfuse(t *testing.T) {
	h := newTestOpinionHandler()

	a, err := domain.NewOpinionNoBase(0.5, 0.2)
	require.NoError(t, err)
	b, err := domain.NewOpinionNoBase(0.1, 0.6)
	require.NoError(t, err)
	fused, err := a.CumFuse(b)
	require.NoError(t, err)

	body, err := json.Marshal(unfuseRequest{Fused: fused, Removed: b})
	require.NoError(t, err)

	rec := postJSON(t, h.Unfuse, string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[opinionResponse](t, rec)
	assert.True(t, resp.Opinion.Equal(a, 1e-6), resp.Opinion.String())

	rec = postJSON(t, h.Unfuse, `{"fused":{"belief":[0.5,0.2]},"removed":{"belief":[0.5,0.5]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOpinionHandler_UnfuseMissingOperand(t *testing.T) {
	h := newTestOpinionHandler()

	for _, body := range []string{
		`{}`,
		`{"fused":{"belief":[0.5,0.2]}}`,
		`{"removed":{"belief":[0.1,0.6]}}`,
	} {
		rec := postJSON(t, h.Unfuse, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotContains(t, rec.Body.String(), `"belief"`, body)
	}
}

func TestOpinionHandler_Barycentric(t *testing.T) {
	h := newTestOpinionHandler()

	rec := postJSON(t, h.Barycentric, `{"opinions":[{"belief":[0,0]},{"belief":[1,0]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[struct {
		Points []point `json:"points"`
	}](t, rec)
	require.Len(t, resp.Points, 2)
	assert.InDelta(t, 0.5, resp.Points[0].X, 1e-9)
	assert.InDelta(t, math.Sqrt(3)/2, resp.Points[0].Y, 1e-9)
	assert.InDelta(t, 1.0, resp.Points[1].X, 1e-9)
	assert.InDelta(t, 0.0, resp.Points[1].Y, 1e-9)

	rec = postJSON(t, h.Barycentric, `{"opinions":[{"belief":[0.1,0.1,0.1]}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpinionHandler_TrustedFuse(t *testing.T) {
	h := newTestOpinionHandler()

	body := `{"sources":[
		{"trust":{"belief":[0,0]},"opinion":{"belief":[0.7,0.1]}},
		{"trust":{"belief":[0,0]},"opinion":{"belief":[0.7,0.1]}},
		{"trust":{"belief":[0,0]},"opinion":{"belief":[0.1,0.7]}}
	]}`
	rec := postJSON(t, h.TrustedFuse, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[trustedFuseResponse](t, rec)
	assert.InDeltaSlice(t, []float64{0, 0, 0.032}, resp.RevisionFactors, 1e-9)
	require.Len(t, resp.Sources, 3)
	assert.InDelta(t, 0.032, resp.Sources[2].Trust.BeliefAt(1), 1e-9)
	assert.True(t, resp.Sources[0].Trust.IsVacuous())
	assert.Greater(t, resp.Fused.Projection[0], 0.5)
}

func TestOpinionHandler_TrustedFuseErrors(t *testing.T) {
	h := newTestOpinionHandler()

	tests := []struct {
		name string
		body string
	}{
		{"trinomial trust", `{"sources":[{"trust":{"belief":[0,0,0]},"opinion":{"belief":[0.7,0.1]}}]}`},
		{"missing opinion", `{"sources":[{"trust":{"belief":[0,0]}}]}`},
		{"no sources", `{"sources":[]}`},
		{"bad term", `{"revision_terms":[{"type":"bogus","conflict":"average","weight":1}],"sources":[{"trust":{"belief":[0,0]},"opinion":{"belief":[0.7,0.1]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.TrustedFuse, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}
