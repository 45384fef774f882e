package numbering

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/mesh"
	"github.com/notargets/SEMFEM/partitions"
)

func run(t *testing.T, size int, fn func(c *comm.Comm) error) error {
	t.Helper()
	return comm.NewWorld(size).Run(context.Background(), func(_ context.Context, c *comm.Comm) error {
		return fn(c)
	})
}

func TestDenseRankHandTags(t *testing.T) {
	in := [][]int64{
		{5, -1, 9, 5},
		{9, 12, 20},
	}
	want := [][]int64{
		{0, -1, 1, 0},
		{1, 2, 3},
	}
	got := make([][]int64, len(in))
	require.NoError(t, run(t, 2, func(c *comm.Comm) (err error) {
		got[c.Rank()], err = DenseRank(c, in[c.Rank()])
		return
	}))
	assert.Equal(t, want, got)
}

func TestDenseRankAllSentinel(t *testing.T) {
	got := make([][]int64, 3)
	require.NoError(t, run(t, 3, func(c *comm.Comm) (err error) {
		got[c.Rank()], err = DenseRank(c, []int64{-1, -1})
		return
	}))
	for _, g := range got {
		assert.Equal(t, []int64{-1, -1}, g)
	}
}

func TestOwnershipEmptyInterval(t *testing.T) {
	// rank 1 only holds a row already covered by rank 0
	ranks := [][]int64{{0, 1, 2}, {1}}
	err := run(t, 2, func(c *comm.Comm) error {
		_, _, err := BuildOwnership(c, ranks[c.Rank()])
		return err
	})
	assert.ErrorIs(t, err, ErrEmptyRowInterval)
}

func TestResolveMaskDisagreement(t *testing.T) {
	// id 3 is free on rank 0 and constrained on rank 1
	ids := [][]int64{{1, 2, 3}, {3, 4, 5}}
	masks := [][]float64{{1, 1, 1}, {0, 1, 1}}
	tags := make([][]int64, 2)
	ranks := make([][]int64, 2)
	require.NoError(t, run(t, 2, func(c *comm.Comm) error {
		gs, err := comm.NewGatherScatter(c, ids[c.Rank()])
		if err != nil {
			return err
		}
		if tags[c.Rank()], err = ResolveDuplicates(c, gs, masks[c.Rank()]); err != nil {
			return err
		}
		ranks[c.Rank()], err = DenseRank(c, tags[c.Rank()])
		return err
	}))
	assert.Equal(t, [][]int64{{0, 1, Sentinel}, {Sentinel, 4, 5}}, tags)
	assert.Equal(t, [][]int64{{0, 1, Sentinel}, {Sentinel, 2, 3}}, ranks)
}

type rankResult struct {
	tags, ranks []int64
	rows        RowInterval
	dofMap      []int64
}

func numberBox(t *testing.T, box *mesh.Box, P int, strategy partitions.PartitionStrategy) ([]*mesh.Mesh, []rankResult) {
	t.Helper()
	meshes, _, err := box.Partition(P, strategy)
	require.NoError(t, err)
	results := make([]rankResult, P)
	require.NoError(t, run(t, P, func(c *comm.Comm) error {
		m := meshes[c.Rank()]
		gs, err := comm.NewGatherScatter(c, m.GlobalIDs)
		if err != nil {
			return err
		}
		r := &results[c.Rank()]
		if r.tags, err = ResolveDuplicates(c, gs, m.Mask); err != nil {
			return err
		}
		if r.ranks, err = DenseRank(c, r.tags); err != nil {
			return err
		}
		r.rows, r.dofMap, err = BuildOwnership(c, r.ranks)
		return err
	}))
	return meshes, results
}

func TestNumberingBox(t *testing.T) {
	box, err := mesh.NewBox(mesh.BoxSpec{
		Elements:  [3]int{3, 2, 2},
		N:         3,
		Length:    [3]float64{1, 1, 1},
		Dirichlet: []mesh.Face{mesh.XMin, mesh.ZMax},
		GLL:       true,
	})
	require.NoError(t, err)
	nFree := int64(box.NumFreeNodes())

	for _, strategy := range []partitions.PartitionStrategy{partitions.BlockPartition, partitions.RoundRobin} {
		for _, P := range []int{1, 2, 3, 4} {
			t.Run(fmt.Sprintf("%v/P=%d", strategy, P), func(t *testing.T) {
				meshes, results := numberBox(t, box, P, strategy)

				idToRank := make(map[int64]int64)
				tagToRank := make(map[int64]int64)
				rankToID := make(map[int64]int64)
				for p, res := range results {
					m := meshes[p]
					for n, id := range m.GlobalIDs {
						r := res.ranks[n]
						if m.Mask[n] <= 0 {
							assert.Equal(t, Sentinel, r)
							continue
						}
						// replica consistency, by physical id and by tag
						if prev, ok := idToRank[id]; ok {
							assert.Equal(t, prev, r, "id %d", id)
						}
						if prev, ok := tagToRank[res.tags[n]]; ok {
							assert.Equal(t, prev, r, "tag %d", res.tags[n])
						}
						if prev, ok := rankToID[r]; ok {
							assert.Equal(t, prev, id, "rank %d shared by two ids", r)
						}
						idToRank[id] = r
						tagToRank[res.tags[n]] = r
						rankToID[r] = id
					}
				}
				// dense ranks are exactly 0..nFree-1
				assert.Len(t, rankToID, int(nFree))
				for r := int64(0); r < nFree; r++ {
					_, ok := rankToID[r]
					assert.True(t, ok, "rank %d missing", r)
				}

				// row intervals partition [0, nFree) in rank order
				next := int64(0)
				for p, res := range results {
					assert.Equal(t, next, res.rows.Start, "rank %d start", p)
					next = res.rows.End + 1
					for off, n := range res.dofMap {
						assert.Equal(t, res.rows.Start+int64(off), res.ranks[n])
					}
				}
				assert.Equal(t, nFree, next)
			})
		}
	}
}
