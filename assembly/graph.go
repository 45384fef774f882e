package assembly

import (
	"maps"
	"slices"

	"github.com/notargets/SEMFEM/element"
)

// Graph is the nonzero pattern of the rows a rank contributes to, in CSR
// form: row Rows[r] has columns Cols[RowOffsets[r]:RowOffsets[r+1]]
type Graph struct {
	Rows       []int64
	RowOffsets []int64
	Cols       []int64
	NCols      []int
	NNZ        int
}

// BuildGraph is the symbolic pass: every pair of free vertices of every
// tetrahedron becomes an entry, without computing values
func BuildGraph(p *Problem) (*Graph, error) {
	pattern := make(map[int64]map[int64]struct{})
	err := p.ForEachTet(func(_ int, nodes [element.NumVerts]int) error {
		for _, ni := range nodes {
			if !p.Free(ni) {
				continue
			}
			row := p.Ranks[ni]
			cols, ok := pattern[row]
			if !ok {
				cols = make(map[int64]struct{})
				pattern[row] = cols
			}
			for _, nj := range nodes {
				if p.Free(nj) {
					cols[p.Ranks[nj]] = struct{}{}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g := &Graph{
		Rows:       slices.Sorted(maps.Keys(pattern)),
		RowOffsets: make([]int64, 1, len(pattern)+1),
	}
	g.NCols = make([]int, len(g.Rows))
	for r, row := range g.Rows {
		cols := slices.Sorted(maps.Keys(pattern[row]))
		g.Cols = append(g.Cols, cols...)
		g.NCols[r] = len(cols)
		g.RowOffsets = append(g.RowOffsets, int64(len(g.Cols)))
	}
	g.NNZ = len(g.Cols)
	return g, nil
}

// bisect returns the index of key in the ascending a[lo:hi], or -1
func bisect(a []int64, lo, hi int64, key int64) int64 {
	l, r := lo, hi-1
	for l <= r {
		m := (l + r) / 2
		switch {
		case a[m] == key:
			return m
		case a[m] < key:
			l = m + 1
		default:
			r = m - 1
		}
	}
	return -1
}

// Find returns the position of (row, col) in Cols, or -1
func (g *Graph) Find(row, col int64) int {
	r := bisect(g.Rows, 0, int64(len(g.Rows)), row)
	if r < 0 {
		return -1
	}
	return int(bisect(g.Cols, g.RowOffsets[r], g.RowOffsets[r+1], col))
}
