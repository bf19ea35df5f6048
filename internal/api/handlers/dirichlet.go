package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
)

var errAmbiguousDirichlet = errors.New("alphas cannot be combined with evidence, base_rate or prior_weight")

// DirichletHandler exposes soft-observation updates and density
// evaluation on Dirichlet evidence.
type DirichletHandler struct {
	// priorWeight of zero means "use the dimension".
	priorWeight float64
}

func NewDirichletHandler(priorWeight float64) *DirichletHandler {
	return &DirichletHandler{priorWeight: priorWeight}
}

type dirichletRequest struct {
	Evidence    []float64 `json:"evidence,omitempty"`
	Alphas      []float64 `json:"alphas,omitempty"`
	BaseRate    []float64 `json:"base_rate,omitempty"`
	PriorWeight float64   `json:"prior_weight,omitempty"`
}

type dirichletResponse struct {
	Evidence    []float64 `json:"evidence"`
	Alphas      []float64 `json:"alphas"`
	Mean        []float64 `json:"mean"`
	Variances   []float64 `json:"variances"`
	PriorWeight float64   `json:"prior_weight"`
	Opinion     Opinion   `json:"opinion"`
}

func newDirichletResponse(d *domain.Dirichlet[float64]) dirichletResponse {
	return dirichletResponse{
		Evidence:    d.Evidence(),
		Alphas:      d.Alphas(),
		Mean:        d.Mean(),
		Variances:   d.Variances(),
		PriorWeight: d.PriorWeight(),
		Opinion:     d.AsOpinion(),
	}
}

// build turns the request into a distribution. Alphas are only accepted
// with the uniform base rate and default prior weight they imply.
func (h *DirichletHandler) build(req dirichletRequest) (*domain.Dirichlet[float64], error) {
	if req.Alphas != nil {
		if req.Evidence != nil || req.BaseRate != nil || req.PriorWeight != 0 {
			return nil, errAmbiguousDirichlet
		}
		return domain.NewDirichletFromAlphas(req.Alphas)
	}
	n := len(req.Evidence)
	if n < 2 {
		return nil, domain.ErrInvalidDimension
	}
	base := req.BaseRate
	if base == nil {
		base = make([]float64, n)
		for i := range base {
			base[i] = 1 / float64(n)
		}
	}
	w := req.PriorWeight
	if w == 0 {
		w = h.priorWeight
	}
	if w == 0 {
		w = float64(n)
	}
	return domain.NewDirichletWithPrior(req.Evidence, base, w)
}

type dirichletUpdateRequest struct {
	dirichletRequest
	// Observations are applied in order.
	Observations [][]float64 `json:"observations"`
}

// Update folds soft observations into the given evidence by moment
// matching and returns the resulting distribution and opinion.
func (h *DirichletHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dirichletUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Observations) == 0 {
		writeError(w, http.StatusBadRequest, "observations are required")
		return
	}

	d, err := h.build(req.dirichletRequest)
	if err != nil {
		writeDirichletError(w, err)
		return
	}
	for _, obs := range req.Observations {
		if err := d.MomentMatchingUpdateInPlace(obs); err != nil {
			writeDirichletError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newDirichletResponse(d))
}

type dirichletEvaluateRequest struct {
	dirichletRequest
	X     *float64  `json:"x,omitempty"`
	Point []float64 `json:"point,omitempty"`
}

// Evaluate returns the density at x (binomial) or at a simplex point.
func (h *DirichletHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req dirichletEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := h.build(req.dirichletRequest)
	if err != nil {
		writeDirichletError(w, err)
		return
	}

	var density float64
	switch {
	case req.X != nil && req.Point == nil:
		density, err = d.Evaluate(*req.X)
	case req.Point != nil && req.X == nil:
		density, err = d.EvaluateAt(req.Point)
	default:
		writeError(w, http.StatusBadRequest, "exactly one of x or point is required")
		return
	}
	if err != nil {
		writeDirichletError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"density": density})
}

// Every failure past decoding is caused by the request's numbers.
func writeDirichletError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}
