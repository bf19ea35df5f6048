package domain

import "math"

// Float is the scalar precision an opinion is computed in.
type Float interface {
	~float32 | ~float64
}

// Epsilon returns the tolerance used for degenerate-case detection and
// drift clamping at precision F.
func Epsilon[F Float]() F {
	var zero F
	switch any(zero).(type) {
	case float32:
		return F(1e-5)
	default:
		return F(1e-10)
	}
}

func sum[F Float](v []F) F {
	var s F
	for _, x := range v {
		s += x
	}
	return s
}

func uniform[F Float](n int) []F {
	v := make([]F, n)
	for i := range v {
		v[i] = 1 / F(n)
	}
	return v
}

func clone[F Float](v []F) []F {
	out := make([]F, len(v))
	copy(out, v)
	return out
}

func abs[F Float](x F) F {
	if x < 0 {
		return -x
	}
	return x
}

func clamp[F Float](x, lo, hi F) F {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func isFinite[F Float](x F) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// clampMasses pulls every component into [0, 1] and, when the total
// exceeds 1, rescales so that the total is exactly 1.
func clampMasses[F Float](v []F) []F {
	out := make([]F, len(v))
	for i, x := range v {
		out[i] = clamp(x, 0, 1)
	}
	if s := sum(out); s > 1 {
		for i := range out {
			out[i] /= s
		}
	}
	return out
}

// normalizeDistribution clamps negative entries to zero and rescales to
// a probability vector. A vector with no mass becomes uniform.
func normalizeDistribution[F Float](v []F) []F {
	out := make([]F, len(v))
	for i, x := range v {
		if x > 0 {
			out[i] = x
		}
	}
	s := sum(out)
	if s <= Epsilon[F]() {
		return uniform[F](len(v))
	}
	for i := range out {
		out[i] /= s
	}
	return out
}
