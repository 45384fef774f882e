package comm

import (
	"fmt"
	"slices"
)

// GatherScatter combines values of nodes that share a global id, whether the
// copies live on the same rank or on different ranks. Ids <= 0 mark nodes
// that take no part in the exchange.
type GatherScatter struct {
	comm *Comm
	// ids present on this rank, ascending, each with the local node indices
	// carrying it
	ids    []int64
	copies [][]int
	nodes  int
}

type gsPair struct {
	ID  int64
	Val int64
}

// NewGatherScatter builds the exchange pattern for this rank's node ids.
// Every rank of the world must create its handle before the first Reduce.
func NewGatherScatter(c *Comm, ids []int64) (*GatherScatter, error) {
	byID := make(map[int64][]int)
	for i, id := range ids {
		if id <= 0 {
			continue
		}
		byID[id] = append(byID[id], i)
	}
	gs := &GatherScatter{
		comm:   c,
		ids:    make([]int64, 0, len(byID)),
		copies: make([][]int, 0, len(byID)),
		nodes:  len(ids),
	}
	for id := range byID {
		gs.ids = append(gs.ids, id)
	}
	slices.Sort(gs.ids)
	for _, id := range gs.ids {
		gs.copies = append(gs.copies, byID[id])
	}
	return gs, nil
}

// NumShared returns how many distinct ids this rank takes part in
func (gs *GatherScatter) NumShared() int { return len(gs.ids) }

func (gs *GatherScatter) hub(id int64) int {
	return int(id % int64(gs.comm.Size()))
}

// Reduce replaces every participating entry of values with the op-reduction
// over all copies of its id across the world. It is collective.
func (gs *GatherScatter) Reduce(values []int64, op Op) error {
	if len(values) != gs.nodes {
		return fmt.Errorf("gather-scatter set up for %d nodes, got %d values",
			gs.nodes, len(values))
	}
	size := gs.comm.Size()

	// Pre-reduce local copies, then send one pair per id to its hub rank
	out := make([][]gsPair, size)
	for n, id := range gs.ids {
		acc := op.Identity()
		for _, i := range gs.copies[n] {
			acc = op.Apply(acc, values[i])
		}
		h := gs.hub(id)
		out[h] = append(out[h], gsPair{ID: id, Val: acc})
	}
	in, err := Exchange(gs.comm, out)
	if err != nil {
		return err
	}

	// Hub: reduce over all contributing ranks
	acc := make(map[int64]int64)
	for _, pairs := range in {
		for _, p := range pairs {
			if v, ok := acc[p.ID]; ok {
				acc[p.ID] = op.Apply(v, p.Val)
			} else {
				acc[p.ID] = p.Val
			}
		}
	}
	reply := make([][]gsPair, size)
	for src, pairs := range in {
		reply[src] = make([]gsPair, len(pairs))
		for k, p := range pairs {
			reply[src][k] = gsPair{ID: p.ID, Val: acc[p.ID]}
		}
	}
	back, err := Exchange(gs.comm, reply)
	if err != nil {
		return err
	}

	// Scatter the reduced value onto every local copy
	for _, pairs := range back {
		for _, p := range pairs {
			n, found := slices.BinarySearch(gs.ids, p.ID)
			if !found {
				return fmt.Errorf("%w: hub returned id %d unknown to rank %d",
					ErrProtocol, p.ID, gs.comm.Rank())
			}
			for _, i := range gs.copies[n] {
				values[i] = p.Val
			}
		}
	}
	return nil
}

// MinInt64 is Reduce with OpMin
func (gs *GatherScatter) MinInt64(values []int64) error {
	return gs.Reduce(values, OpMin)
}
