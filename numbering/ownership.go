package numbering

import (
	"errors"
	"fmt"

	"github.com/notargets/SEMFEM/comm"
)

var (
	// ErrEmptyRowInterval is returned when a rank would own no rows
	ErrEmptyRowInterval = errors.New("empty row interval")
	// ErrUnownedRow is returned when a row in a rank's interval has no local
	// node
	ErrUnownedRow = errors.New("row in interval has no local node")
)

// RowInterval is the inclusive range [Start, End] of dense ranks owned by one
// rank
type RowInterval struct {
	Start, End int64
}

func (r RowInterval) NumRows() int64 { return r.End - r.Start + 1 }

func (r RowInterval) Contains(row int64) bool { return row >= r.Start && row <= r.End }

func (r RowInterval) String() string { return fmt.Sprintf("[%d, %d]", r.Start, r.End) }

// BuildOwnership gives each rank the rows above the largest rank held by any
// lower rank, up to its own largest rank, and returns the DOF map from local
// row offset to local node index.
func BuildOwnership(c *comm.Comm, ranks []int64) (RowInterval, []int64, error) {
	var rows RowInterval
	rows.End = Sentinel
	for _, r := range ranks {
		rows.End = max(rows.End, r)
	}
	below, _, err := c.Scan(rows.End, comm.OpMax)
	if err != nil {
		return rows, nil, fmt.Errorf("row end scan: %w", err)
	}
	if c.Rank() > 0 {
		rows.Start = max(below, Sentinel) + 1
	}
	if rows.NumRows() <= 0 {
		return rows, nil, fmt.Errorf("%w: rank %d has row interval %v",
			ErrEmptyRowInterval, c.Rank(), rows)
	}

	dofMap := make([]int64, rows.NumRows())
	for i := range dofMap {
		dofMap[i] = Sentinel
	}
	for i, r := range ranks {
		if rows.Contains(r) && dofMap[r-rows.Start] == Sentinel {
			dofMap[r-rows.Start] = int64(i)
		}
	}
	for off, n := range dofMap {
		if n == Sentinel {
			return rows, nil, fmt.Errorf("%w: rank %d row %d", ErrUnownedRow,
				c.Rank(), rows.Start+int64(off))
		}
	}
	return rows, dofMap, nil
}
