package element

import "math"

// QuadratureRule returns the symmetric 4-point rule on the reference
// tetrahedron {r, s, t >= 0, r+s+t <= 1}. Points are given in (r, s, t);
// the weights sum to the reference volume 1/6. The rule is exact for
// quadratic integrands, which covers products of the linear basis.
func QuadratureRule() (points [NumQuad][Dim]float64, weights [NumQuad]float64) {
	a := (5.0 + 3.0*math.Sqrt(5.0)) / 20.0
	b := (5.0 - math.Sqrt(5.0)) / 20.0
	points = [NumQuad][Dim]float64{
		{a, b, b},
		{b, a, b},
		{b, b, a},
		{b, b, b},
	}
	for q := range weights {
		weights[q] = 1.0 / 24.0
	}
	return
}

// BasisValue evaluates the linear basis function i at reference point r:
// φ0 = r, φ1 = s, φ2 = t, φ3 = 1 - r - s - t.
func BasisValue(i int, r [Dim]float64) float64 {
	switch i {
	case 0:
		return r[0]
	case 1:
		return r[1]
	case 2:
		return r[2]
	case 3:
		return 1.0 - r[0] - r[1] - r[2]
	default:
		panic("basis index out of range")
	}
}

// BasisGradient returns ∇φi in reference coordinates. The basis is linear so
// the gradient does not depend on the evaluation point.
func BasisGradient(i int) [Dim]float64 {
	switch i {
	case 0:
		return [Dim]float64{1, 0, 0}
	case 1:
		return [Dim]float64{0, 1, 0}
	case 2:
		return [Dim]float64{0, 0, 1}
	case 3:
		return [Dim]float64{-1, -1, -1}
	default:
		panic("basis index out of range")
	}
}

// MapToPhysical maps the reference point r into the tetrahedron whose
// vertex coordinates are the columns of xt (xt[d][v] is coordinate d of
// vertex v).
func MapToPhysical(xt [Dim][NumVerts]float64, r [Dim]float64) (x [Dim]float64) {
	for d := 0; d < Dim; d++ {
		for v := 0; v < NumVerts; v++ {
			x[d] += xt[d][v] * BasisValue(v, r)
		}
	}
	return
}

// JacobianXR returns ∂x/∂r for the tetrahedron xt: J[i][j] = Σv xt[i][v] ∂φv/∂rj
func JacobianXR(xt [Dim][NumVerts]float64) (J [Dim][Dim]float64) {
	for v := 0; v < NumVerts; v++ {
		g := BasisGradient(v)
		for i := 0; i < Dim; i++ {
			for j := 0; j < Dim; j++ {
				J[i][j] += xt[i][v] * g[j]
			}
		}
	}
	return
}
