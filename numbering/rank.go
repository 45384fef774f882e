package numbering

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/notargets/SEMFEM/comm"
)

// RankingTuple carries one node copy through the renumbering exchange. Proc
// is the bucket rank on the way out and the home rank on the way back.
type RankingTuple struct {
	Rank int64
	Proc uint32
	Idx  uint32
}

// DenseRank maps sparse tags onto 0..N-1, where N is the number of distinct
// non-negative tags across the world. Equal tags receive equal ranks and the
// order of tags is preserved. Sentinel entries are not exchanged and stay
// Sentinel.
func DenseRank(c *comm.Comm, tags []int64) ([]int64, error) {
	if uint64(len(tags)) > math.MaxUint32 {
		return nil, fmt.Errorf("%d local nodes exceed the ranking tuple index range", len(tags))
	}
	localMax := Sentinel
	for _, t := range tags {
		localMax = max(localMax, t)
	}
	globalMax, err := c.AllReduce(localMax, comm.OpMax)
	if err != nil {
		return nil, fmt.Errorf("max tag reduction: %w", err)
	}
	// uniform bucket width; bucket of t is t/nstar < Size
	nstar := globalMax/int64(c.Size()) + 1

	tuples := make([]RankingTuple, 0, len(tags))
	for i, t := range tags {
		if t < 0 {
			continue
		}
		tuples = append(tuples, RankingTuple{Rank: t, Proc: uint32(t / nstar), Idx: uint32(i)})
	}

	bucket, err := comm.Transfer(c, tuples,
		func(tp RankingTuple) int { return int(tp.Proc) },
		func(tp *RankingTuple, src int) { tp.Proc = uint32(src) })
	if err != nil {
		return nil, fmt.Errorf("route tuples to buckets: %w", err)
	}

	slices.SortFunc(bucket, func(a, b RankingTuple) int {
		return cmp.Or(cmp.Compare(a.Rank, b.Rank),
			cmp.Compare(a.Proc, b.Proc), cmp.Compare(a.Idx, b.Idx))
	})
	var distinct int64
	prev := Sentinel
	for i := range bucket {
		if bucket[i].Rank > prev {
			prev = bucket[i].Rank
			distinct++
		}
		bucket[i].Rank = distinct - 1
	}

	base, _, err := c.Scan(distinct, comm.OpSum)
	if err != nil {
		return nil, fmt.Errorf("distinct tag scan: %w", err)
	}
	for i := range bucket {
		bucket[i].Rank += base
	}

	home, err := comm.Transfer(c, bucket,
		func(tp RankingTuple) int { return int(tp.Proc) }, nil)
	if err != nil {
		return nil, fmt.Errorf("route ranks home: %w", err)
	}
	if len(home) != len(tuples) {
		return nil, fmt.Errorf("%w: sent %d tuples, %d came back",
			comm.ErrProtocol, len(tuples), len(home))
	}
	slices.SortFunc(home, func(a, b RankingTuple) int { return cmp.Compare(a.Idx, b.Idx) })

	ranks := make([]int64, len(tags))
	for i := range ranks {
		ranks[i] = Sentinel
	}
	for _, tp := range home {
		ranks[tp.Idx] = tp.Rank
	}
	return ranks, nil
}
