package element

import (
	"fmt"
	"math"
)

// DegenerateTolerance is the smallest |det J| accepted by CheckJacobian,
// relative to the cube of the longest tetrahedron edge.
const DegenerateTolerance = 1.e-12

// LocalStiffness integrates A[i][j] = ∫ ∇φi·∇φj dx over the tetrahedron xt
// (xt[d][v] is coordinate d of vertex v). The integrand is constant, so the
// quadrature reproduces the exact volume-scaled stiffness; the quadrature
// loop is kept so a non-linear basis can be dropped in.
//
// A degenerate tetrahedron is not detected here and yields Inf/NaN entries.
func LocalStiffness(xt [Dim][NumVerts]float64) (A [NumVerts][NumVerts]float64) {
	_, qw := QuadratureRule()
	Jxr := JacobianXR(xt)
	Jrx := Inverse3(Jxr)
	detJ := math.Abs(Determinant3(Jxr))

	// physical gradients ∇xφv = ∇rφv · ∂r/∂x
	var grad [NumVerts][Dim]float64
	for v := 0; v < NumVerts; v++ {
		g := BasisGradient(v)
		for alpha := 0; alpha < Dim; alpha++ {
			for beta := 0; beta < Dim; beta++ {
				grad[v][alpha] += g[beta] * Jrx[beta][alpha]
			}
		}
	}

	for q := 0; q < NumQuad; q++ {
		for i := 0; i < NumVerts; i++ {
			for j := 0; j < NumVerts; j++ {
				var f float64
				for alpha := 0; alpha < Dim; alpha++ {
					f += grad[i][alpha] * grad[j][alpha]
				}
				A[i][j] += f * detJ * qw[q]
			}
		}
	}
	return
}

// CheckJacobian fails with ErrDegenerateElement when xt has (numerically)
// zero volume or non-finite coordinates.
func CheckJacobian(xt [Dim][NumVerts]float64) error {
	det := Determinant3(JacobianXR(xt))
	if math.IsNaN(det) || math.IsInf(det, 0) {
		return fmt.Errorf("%w: non-finite Jacobian determinant %g", ErrDegenerateElement, det)
	}
	var hmax float64
	for a := 0; a < NumVerts; a++ {
		for b := a + 1; b < NumVerts; b++ {
			var d2 float64
			for d := 0; d < Dim; d++ {
				dx := xt[d][a] - xt[d][b]
				d2 += dx * dx
			}
			hmax = max(hmax, math.Sqrt(d2))
		}
	}
	if hmax == 0 || math.Abs(det) <= DegenerateTolerance*hmax*hmax*hmax {
		return fmt.Errorf("%w: Jacobian determinant %g for edge scale %g",
			ErrDegenerateElement, det, hmax)
	}
	return nil
}
