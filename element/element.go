// Package element holds the low-order finite element used to precondition a
// spectral element operator: every sub-hexahedron of the spectral element
// node lattice is covered by eight collocated linear tetrahedra, one per
// hexahedron corner, and each tetrahedron contributes a 4×4 stiffness
// matrix.
package element

import "errors"

const (
	Dim      = 3 // spatial dimension
	NumVerts = 4 // vertices (and linear basis functions) per tetrahedron
	NumQuad  = 4 // quadrature points per tetrahedron
	NumTets  = 8 // tetrahedra per sub-hexahedron
	NumCorns = 8 // corners per sub-hexahedron
)

// ErrDegenerateElement reports a tetrahedron whose Jacobian cannot be
// inverted (zero or vanishing volume, or non-finite coordinates).
var ErrDegenerateElement = errors.New("degenerate element")

// HexVertexOffsets gives the lattice offset (i, j, k) of each corner of a
// sub-hexahedron relative to its lowest corner. Corner c sits at
// (c&1, (c>>1)&1, (c>>2)&1).
var HexVertexOffsets = [NumCorns][Dim]int{
	{0, 0, 0},
	{1, 0, 0},
	{0, 1, 0},
	{1, 1, 0},
	{0, 0, 1},
	{1, 0, 1},
	{0, 1, 1},
	{1, 1, 1},
}

// TetMap lists the hexahedron corners forming each tetrahedron. Tetrahedron
// t is the corner tetrahedron of corner t: its first vertex is corner t and
// the other three are the corners adjacent to it along the x, y and z
// edges, ordered so every tetrahedron has positive orientation.
var TetMap = [NumTets][NumVerts]int{
	{0, 2, 1, 4},
	{1, 0, 3, 5},
	{2, 6, 3, 0},
	{3, 2, 7, 1},
	{4, 5, 6, 0},
	{5, 7, 4, 1},
	{6, 7, 2, 4},
	{7, 3, 6, 5},
}
