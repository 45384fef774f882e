package mesh

import (
	"fmt"
	"math"
	"slices"

	"github.com/notargets/gocfd/utils"
	"gonum.org/v1/gonum/mat"
)

// GLLNodes returns the n Gauss-Lobatto-Legendre points on [-1,1]: the two
// endpoints plus the zeros of P'_{n-1}, which are the Gauss-Jacobi(1,1)
// points of degree n-2.
func GLLNodes(n int) (utils.Vector, error) {
	if n < 2 {
		return utils.Vector{}, fmt.Errorf("GLL needs at least 2 points, got %d", n)
	}
	x := make([]float64, n)
	x[0], x[n-1] = -1, 1
	if n > 2 {
		xint, err := gaussJacobi(1, 1, n-3)
		if err != nil {
			return utils.Vector{}, err
		}
		copy(x[1:n-1], xint)
	}
	return utils.NewVector(n, x), nil
}

// UniformNodes returns n equispaced points on [-1,1]
func UniformNodes(n int) (utils.Vector, error) {
	if n < 2 {
		return utils.Vector{}, fmt.Errorf("need at least 2 points, got %d", n)
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = -1 + 2*float64(i)/float64(n-1)
	}
	return utils.NewVector(n, x), nil
}

// gaussJacobi computes the N+1 Gauss-Jacobi points for the weight
// (1-x)^alpha (1+x)^beta as eigenvalues of the symmetric tridiagonal Jacobi
// matrix (Golub-Welsch).
func gaussJacobi(alpha, beta float64, N int) ([]float64, error) {
	if N == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2.)}, nil
	}

	h1 := make([]float64, N+1)
	for i := range h1 {
		h1[i] = 2*float64(i) + alpha + beta
	}

	JJ := mat.NewSymDense(N+1, nil)
	fac := beta*beta - alpha*alpha
	for i := 0; i <= N; i++ {
		JJ.SetSym(i, i, fac/(h1[i]*(h1[i]+2.)))
	}
	if alpha+beta < 10*1.e-16 {
		JJ.SetSym(0, 0, 0.)
	}
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		JJ.SetSym(i, i+1, 2.0/(val+2.0)*math.Sqrt(
			ip1*(ip1+alpha+beta)*(ip1+alpha)*(ip1+beta)/(val+1)/(val+3),
		))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, false); !ok {
		return nil, fmt.Errorf("Gauss-Jacobi eigenvalue decomposition failed for N=%d", N)
	}
	x := eig.Values(nil)
	slices.Sort(x)
	return x, nil
}
