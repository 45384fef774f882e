package assembly

import (
	"fmt"
	"math"

	"github.com/notargets/SEMFEM/element"
)

// Direct computes every tetrahedron stiffness on the host and inserts the
// free-free entries one at a time
type Direct struct {
	inserts int
}

func (d *Direct) Name() string { return "host" }

// Inserts is the number of entries handed to the matrix by the last Fill
func (d *Direct) Inserts() int { return d.inserts }

func (d *Direct) Fill(p *Problem, A Inserter) error {
	d.inserts = 0
	return p.ForEachTet(func(e int, nodes [element.NumVerts]int) error {
		Ae := element.LocalStiffness(p.TetCoords(nodes))
		for i, ni := range nodes {
			if !p.Free(ni) {
				continue
			}
			for j, nj := range nodes {
				if !p.Free(nj) {
					continue
				}
				v := Ae[i][j]
				if !(math.Abs(v) > p.Tolerance) {
					continue
				}
				if err := A.AddToValue(p.Ranks[ni], p.Ranks[nj], v); err != nil {
					return fmt.Errorf("element %d, local nodes (%d, %d): %w", e, ni, nj, err)
				}
				d.inserts++
			}
		}
		return nil
	})
}
