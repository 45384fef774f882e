// Package assembly builds the low-order finite element stiffness matrix of a
// spectral element mesh into a distributed sparse matrix. Two backends share
// one element traversal: Direct inserts every tetrahedron contribution from
// the host, OffloadedGraph builds the nonzero pattern on the host and lets a
// device kernel compute the values into it.
package assembly

import (
	"fmt"
	"math"

	"github.com/notargets/SEMFEM/element"
	"github.com/notargets/SEMFEM/mesh"
)

// DefaultTolerance is the absolute value below which a tetrahedron
// contribution is not inserted
const DefaultTolerance = 1.e-7

// Inserter receives additive contributions; *ijmatrix.IJMatrix implements it
type Inserter interface {
	AddToValue(row, col int64, v float64) error
	AddToValues(ncols []int, rows, cols []int64, vals []float64) error
}

// Problem is one rank's assembly input
type Problem struct {
	Mesh *mesh.Mesh
	// Ranks holds the dense global row of every local node, negative for
	// constrained nodes
	Ranks           []int64
	Tolerance       float64
	AllowDegenerate bool
}

func (p *Problem) Validate() error {
	if p.Mesh == nil {
		return fmt.Errorf("assembly problem without a mesh")
	}
	if err := p.Mesh.Validate(); err != nil {
		return err
	}
	if len(p.Ranks) != p.Mesh.NumNodes() {
		return fmt.Errorf("%d ranks for %d mesh nodes", len(p.Ranks), p.Mesh.NumNodes())
	}
	if p.Tolerance < 0 || math.IsNaN(p.Tolerance) {
		return fmt.Errorf("invalid insertion tolerance %g", p.Tolerance)
	}
	return nil
}

// Free reports whether local node n is a DOF
func (p *Problem) Free(n int) bool {
	return p.Mesh.Mask[n] > 0 && p.Ranks[n] >= 0
}

// ForEachTet visits the eight tetrahedra of every sub-hexahedron; nodes
// holds the local node index of each tetrahedron vertex in TetMap order
func (p *Problem) ForEachTet(fn func(e int, nodes [element.NumVerts]int) error) error {
	return p.Mesh.ForEachSubHex(func(e int, corners [element.NumCorns]int) error {
		for t := 0; t < element.NumTets; t++ {
			var nodes [element.NumVerts]int
			for v := 0; v < element.NumVerts; v++ {
				nodes[v] = corners[element.TetMap[t][v]]
			}
			if err := fn(e, nodes); err != nil {
				return err
			}
		}
		return nil
	})
}

// TetCoords gathers the vertex coordinates of a tetrahedron
func (p *Problem) TetCoords(nodes [element.NumVerts]int) (xt [element.Dim][element.NumVerts]float64) {
	m := p.Mesh
	for v, n := range nodes {
		xt[0][v], xt[1][v], xt[2][v] = m.X[n], m.Y[n], m.Z[n]
	}
	return
}

// CheckGeometry fails on the first degenerate tetrahedron
func (p *Problem) CheckGeometry() error {
	return p.ForEachTet(func(e int, nodes [element.NumVerts]int) error {
		if err := element.CheckJacobian(p.TetCoords(nodes)); err != nil {
			return fmt.Errorf("element %d, vertices %v: %w", e, nodes, err)
		}
		return nil
	})
}
