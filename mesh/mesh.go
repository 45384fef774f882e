// Package mesh holds the per-rank spectral element input of the SEM to FEM
// assembly: node coordinates, boundary mask and global gather ids laid out
// element by element on an N×N×N structured grid, plus a structured box
// generator that produces such input for any number of ranks.
package mesh

import (
	"errors"
	"fmt"

	"github.com/notargets/SEMFEM/element"
)

var ErrBadMesh = errors.New("invalid mesh")

// Mesh is one rank's slice of a hexahedral spectral element mesh. Node
// (i,j,k) of local element e lives at NodeIndex(e,i,j,k) in every array.
type Mesh struct {
	N           int // nodes per direction
	NumElements int

	X, Y, Z []float64
	// Mask > 0 marks a free DOF; anything else is constrained
	Mask []float64
	// GlobalIDs identify the physical node across ranks; ids <= 0 are
	// excluded from duplicate resolution
	GlobalIDs []int64
}

func (m *Mesh) NodesPerElement() int { return m.N * m.N * m.N }

func (m *Mesh) NumNodes() int { return m.NumElements * m.NodesPerElement() }

// NodeIndex is i + j·N + k·N² + e·N³
func (m *Mesh) NodeIndex(e, i, j, k int) int {
	N := m.N
	return i + N*(j+N*(k+N*e))
}

// SubHexCorners returns the node indices of the corners of sub-hexahedron
// (si,sj,sk) of element e, in element.HexVertexOffsets order.
func (m *Mesh) SubHexCorners(e, si, sj, sk int) (corners [element.NumCorns]int) {
	for c, off := range element.HexVertexOffsets {
		corners[c] = m.NodeIndex(e, si+off[0], sj+off[1], sk+off[2])
	}
	return
}

// ForEachSubHex visits the (N-1)³ sub-hexahedra of every element in element
// order, stopping at the first error.
func (m *Mesh) ForEachSubHex(fn func(e int, corners [element.NumCorns]int) error) error {
	for e := 0; e < m.NumElements; e++ {
		for sk := 0; sk < m.N-1; sk++ {
			for sj := 0; sj < m.N-1; sj++ {
				for si := 0; si < m.N-1; si++ {
					if err := fn(e, m.SubHexCorners(e, si, sj, sk)); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Validate checks array lengths against N and NumElements
func (m *Mesh) Validate() error {
	if m.N < 2 {
		return fmt.Errorf("%w: need at least 2 nodes per direction, got %d", ErrBadMesh, m.N)
	}
	if m.NumElements < 0 {
		return fmt.Errorf("%w: negative element count %d", ErrBadMesh, m.NumElements)
	}
	n := m.NumNodes()
	for _, a := range []struct {
		name string
		len  int
	}{
		{"X", len(m.X)}, {"Y", len(m.Y)}, {"Z", len(m.Z)},
		{"Mask", len(m.Mask)}, {"GlobalIDs", len(m.GlobalIDs)},
	} {
		if a.len != n {
			return fmt.Errorf("%w: %s has %d entries, want %d (%d elements of %d³ nodes)",
				ErrBadMesh, a.name, a.len, n, m.NumElements, m.N)
		}
	}
	return nil
}
