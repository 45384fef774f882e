package comm

import (
	"fmt"
	"math"
)

// Op is a reduction operator for scans and all-reduces
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

func (op Op) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Identity returns the neutral element of op
func (op Op) Identity() int64 {
	switch op {
	case OpMax:
		return math.MinInt64
	case OpMin:
		return math.MaxInt64
	default:
		return 0
	}
}

// Apply combines two values with op
func (op Op) Apply(a, b int64) int64 {
	switch op {
	case OpMax:
		return max(a, b)
	case OpMin:
		return min(a, b)
	default:
		return a + b
	}
}

// Exchange is the personalized all-to-all: out[dst] is delivered to rank dst
// and the returned in[src] holds what rank src addressed to this rank. Every
// rank must call Exchange with the same element type. Buffers are handed
// over, not copied: a sender must not modify out after the call.
func Exchange[T any](c *Comm, out [][]T) ([][]T, error) {
	size := c.Size()
	if len(out) != size {
		return nil, fmt.Errorf("%w: exchange needs %d destination buffers, got %d",
			ErrProtocol, size, len(out))
	}
	in := make([][]T, size)
	in[c.rank] = out[c.rank]
	for dst := 0; dst < size; dst++ {
		if dst == c.rank {
			continue
		}
		if err := c.send(dst, out[dst]); err != nil {
			return nil, err
		}
	}
	for src := 0; src < size; src++ {
		if src == c.rank {
			continue
		}
		payload, err := c.recv(src)
		if err != nil {
			return nil, err
		}
		buf, ok := payload.([]T)
		if !ok {
			return nil, fmt.Errorf("%w: rank %d expected %T from rank %d, got %T",
				ErrProtocol, c.rank, buf, src, payload)
		}
		in[src] = buf
	}
	return in, nil
}

// AllGather returns every rank's v, indexed by rank
func AllGather[T any](c *Comm, v T) ([]T, error) {
	out := make([][]T, c.Size())
	for dst := range out {
		out[dst] = []T{v}
	}
	in, err := Exchange(c, out)
	if err != nil {
		return nil, err
	}
	all := make([]T, c.Size())
	for src, buf := range in {
		if len(buf) != 1 {
			return nil, fmt.Errorf("%w: all-gather got %d values from rank %d",
				ErrProtocol, len(buf), src)
		}
		all[src] = buf[0]
	}
	return all, nil
}

// Scan returns the exclusive prefix reduction of v over lower ranks and the
// reduction over all ranks. Rank 0 receives op's identity as its prefix.
func (c *Comm) Scan(v int64, op Op) (exclusive, total int64, err error) {
	all, err := AllGather(c, v)
	if err != nil {
		return 0, 0, err
	}
	exclusive, total = op.Identity(), op.Identity()
	for rank, x := range all {
		if rank < c.rank {
			exclusive = op.Apply(exclusive, x)
		}
		total = op.Apply(total, x)
	}
	return exclusive, total, nil
}

// AllReduce returns the reduction of v over all ranks
func (c *Comm) AllReduce(v int64, op Op) (int64, error) {
	_, total, err := c.Scan(v, op)
	return total, err
}

// Barrier blocks until every rank has reached it
func (c *Comm) Barrier() error {
	_, err := AllGather(c, struct{}{})
	return err
}

// Transfer routes each item to the rank dest(item) and returns the items
// this rank received, grouped by source rank in ascending order. When
// arrived is non-nil it is called on every received item with its source
// rank, which lets a routing field be rewritten so a second Transfer sends
// the items back home. Callers must not rely on the arrival order beyond the
// grouping by source.
func Transfer[T any](c *Comm, items []T, dest func(T) int, arrived func(*T, int)) ([]T, error) {
	size := c.Size()
	counts := make([]int, size)
	for _, it := range items {
		d := dest(it)
		if d < 0 || d >= size {
			return nil, fmt.Errorf("%w: destination rank %d outside [0, %d)",
				ErrProtocol, d, size)
		}
		counts[d]++
	}
	out := make([][]T, size)
	for d := range out {
		out[d] = make([]T, 0, counts[d])
	}
	for _, it := range items {
		d := dest(it)
		out[d] = append(out[d], it)
	}
	in, err := Exchange(c, out)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, buf := range in {
		n += len(buf)
	}
	received := make([]T, 0, n)
	for src, buf := range in {
		start := len(received)
		received = append(received, buf...)
		if arrived != nil {
			for i := start; i < len(received); i++ {
				arrived(&received[i], src)
			}
		}
	}
	return received, nil
}
