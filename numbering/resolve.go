// Package numbering turns the per-rank node copies of a spectral element mesh
// into a dense, globally consistent DOF numbering and a contiguous row
// interval per rank.
//
// The three steps are collective and must be called by every rank in order:
//
//	tags, err := numbering.ResolveDuplicates(c, gs, mesh.Mask)
//	ranks, err := numbering.DenseRank(c, tags)
//	rows, dofMap, err := numbering.BuildOwnership(c, ranks)
package numbering

import (
	"fmt"

	"github.com/notargets/SEMFEM/comm"
)

// Sentinel marks a constrained node in tag and rank arrays
const Sentinel int64 = -1

// ResolveDuplicates tags every free node (mask > 0) with offset+index, where
// offset is the exclusive prefix sum of local node counts, and every
// constrained node with Sentinel. A min-reduction over the gather-scatter
// handle then gives all copies of a shared node the smallest tag among them.
// A node masked on any copy ends up constrained on all copies.
func ResolveDuplicates(c *comm.Comm, gs *comm.GatherScatter, mask []float64) ([]int64, error) {
	offset, _, err := c.Scan(int64(len(mask)), comm.OpSum)
	if err != nil {
		return nil, fmt.Errorf("tag offset scan: %w", err)
	}
	tags := make([]int64, len(mask))
	for i, m := range mask {
		if m > 0 {
			tags[i] = offset + int64(i)
		} else {
			tags[i] = Sentinel
		}
	}
	if err = gs.MinInt64(tags); err != nil {
		return nil, fmt.Errorf("duplicate tag min-reduction: %w", err)
	}
	return tags, nil
}
