package domain

import "math"

// Barycentric maps a binomial opinion to 2D coordinates in the opinion
// triangle with disbelief at (0,0), belief at (1,0) and uncertainty at the
// apex (0.5, sqrt(3)/2).
func Barycentric[F Float](o Opinion[F]) (x, y F, err error) {
	if err := o.requireBinomial(); err != nil {
		return 0, 0, err
	}
	b, u := o.belief[0], o.Uncertainty()
	x = b + 0.5*u
	y = F(math.Sqrt(3)/2) * u
	return x, y, nil
}
