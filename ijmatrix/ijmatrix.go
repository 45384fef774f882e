// Package ijmatrix is a row-partitioned distributed sparse matrix addressed
// by global (row, col) indices. Each rank owns a contiguous block of rows and
// accumulates additive contributions; contributions to rows owned elsewhere
// are stashed and delivered to their owner by the collective Assemble.
package ijmatrix

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/james-bowman/sparse"

	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/numbering"
)

var (
	ErrOutOfRange   = errors.New("matrix index out of range")
	ErrBadPartition = errors.New("row intervals do not partition the matrix")
	ErrAssembled    = errors.New("matrix already assembled")
	ErrNotAssembled = errors.New("matrix not assembled")
	ErrNotOwned     = errors.New("row not owned by this rank")
	ErrDestroyed    = errors.New("matrix destroyed")
)

type entry struct {
	Row, Col int64
	Val      float64
}

// IJMatrix holds this rank's rows of a global N×N matrix
type IJMatrix struct {
	comm   *comm.Comm
	rows   numbering.RowInterval
	starts []int64 // first row of every rank
	n      int64

	local *sparse.DOK
	stash map[[2]int64]float64

	// frozen by Assemble; columns ascending within each row
	csr    *sparse.CSR
	indptr []int
	ind    []int64
	data   []float64

	assembled, destroyed bool
}

// Create is collective. The intervals of all ranks must tile [0, N) in rank
// order without gaps or overlaps.
func Create(c *comm.Comm, rows numbering.RowInterval) (*IJMatrix, error) {
	all, err := comm.AllGather(c, rows)
	if err != nil {
		return nil, fmt.Errorf("gather row intervals: %w", err)
	}
	starts := make([]int64, len(all))
	next := int64(0)
	for p, r := range all {
		if r.Start != next || r.NumRows() <= 0 {
			return nil, fmt.Errorf("%w: rank %d has %v, expected start %d",
				ErrBadPartition, p, r, next)
		}
		starts[p] = r.Start
		next = r.End + 1
	}
	return &IJMatrix{
		comm:   c,
		rows:   rows,
		starts: starts,
		n:      next,
		local:  sparse.NewDOK(int(rows.NumRows()), int(next)),
		stash:  make(map[[2]int64]float64),
	}, nil
}

func (m *IJMatrix) Rows() numbering.RowInterval { return m.rows }

// GlobalSize is N for the N×N matrix
func (m *IJMatrix) GlobalSize() int64 { return m.n }

// Owner returns the rank owning global row, or -1
func (m *IJMatrix) Owner(row int64) int {
	if row < 0 || row >= m.n {
		return -1
	}
	return sort.Search(len(m.starts), func(p int) bool { return m.starts[p] > row }) - 1
}

func (m *IJMatrix) writable() error {
	switch {
	case m.destroyed:
		return ErrDestroyed
	case m.assembled:
		return ErrAssembled
	}
	return nil
}

// AddToValue accumulates v into (row, col). Adding an exact zero creates no
// entry.
func (m *IJMatrix) AddToValue(row, col int64, v float64) error {
	if err := m.writable(); err != nil {
		return err
	}
	if row < 0 || row >= m.n || col < 0 || col >= m.n {
		return fmt.Errorf("%w: (%d, %d) in %d×%d matrix on rank %d",
			ErrOutOfRange, row, col, m.n, m.n, m.comm.Rank())
	}
	if v == 0 {
		return nil
	}
	if m.rows.Contains(row) {
		i, j := int(row-m.rows.Start), int(col)
		m.local.Set(i, j, m.local.At(i, j)+v)
		return nil
	}
	m.stash[[2]int64{row, col}] += v
	return nil
}

// AddToValues accumulates a block of rows: row rows[r] receives ncols[r]
// consecutive entries of cols and vals.
func (m *IJMatrix) AddToValues(ncols []int, rows, cols []int64, vals []float64) error {
	if len(ncols) != len(rows) {
		return fmt.Errorf("%d row counts for %d rows", len(ncols), len(rows))
	}
	if len(cols) != len(vals) {
		return fmt.Errorf("%d columns for %d values", len(cols), len(vals))
	}
	k := 0
	for r, row := range rows {
		if ncols[r] < 0 || k+ncols[r] > len(cols) {
			return fmt.Errorf("row %d: %d columns overrun %d supplied", row, ncols[r], len(cols))
		}
		for end := k + ncols[r]; k < end; k++ {
			if err := m.AddToValue(row, cols[k], vals[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Assemble is collective: stashed contributions are sent to their owners and
// summed in, then the matrix is frozen.
func (m *IJMatrix) Assemble() error {
	if err := m.writable(); err != nil {
		return err
	}
	out := make([]entry, 0, len(m.stash))
	for k, v := range m.stash {
		out = append(out, entry{Row: k[0], Col: k[1], Val: v})
	}
	slices.SortFunc(out, func(a, b entry) int {
		return cmp.Or(cmp.Compare(a.Row, b.Row), cmp.Compare(a.Col, b.Col))
	})
	in, err := comm.Transfer(m.comm, out, func(e entry) int { return m.Owner(e.Row) }, nil)
	if err != nil {
		return fmt.Errorf("deliver off-rank rows: %w", err)
	}
	for _, e := range in {
		if !m.rows.Contains(e.Row) {
			return fmt.Errorf("%w: received row %d outside %v", comm.ErrProtocol, e.Row, m.rows)
		}
		i, j := int(e.Row-m.rows.Start), int(e.Col)
		m.local.Set(i, j, m.local.At(i, j)+e.Val)
	}
	m.stash = nil

	unsorted := m.local.ToCSR()
	nr := int(m.rows.NumRows())
	m.indptr = make([]int, nr+1)
	m.ind = make([]int64, 0, m.local.NNZ())
	m.data = make([]float64, 0, m.local.NNZ())
	ja := make([]int, 0, m.local.NNZ())
	for i := 0; i < nr; i++ {
		start := len(m.ind)
		unsorted.DoRowNonZero(i, func(_, j int, v float64) {
			m.ind = append(m.ind, int64(j))
			m.data = append(m.data, v)
		})
		sortRow(m.ind[start:], m.data[start:])
		m.indptr[i+1] = len(m.ind)
		for _, j := range m.ind[start:] {
			ja = append(ja, int(j))
		}
	}
	m.csr = sparse.NewCSR(nr, int(m.n), m.indptr, ja, m.data)
	m.local = nil
	m.assembled = true
	return nil
}

func sortRow(cols []int64, vals []float64) {
	perm := make([]int, len(cols))
	for i := range perm {
		perm[i] = i
	}
	slices.SortFunc(perm, func(a, b int) int { return cmp.Compare(cols[a], cols[b]) })
	c := slices.Clone(cols)
	v := slices.Clone(vals)
	for k, p := range perm {
		cols[k], vals[k] = c[p], v[p]
	}
}

func (m *IJMatrix) readable() error {
	switch {
	case m.destroyed:
		return ErrDestroyed
	case !m.assembled:
		return ErrNotAssembled
	}
	return nil
}

func (m *IJMatrix) localRow(row int64) (int, error) {
	if !m.rows.Contains(row) {
		return 0, fmt.Errorf("%w: row %d, rank %d owns %v", ErrNotOwned, row, m.comm.Rank(), m.rows)
	}
	return int(row - m.rows.Start), nil
}

// GetRowCounts returns the number of stored entries of each owned row
func (m *IJMatrix) GetRowCounts(rows []int64) ([]int, error) {
	if err := m.readable(); err != nil {
		return nil, err
	}
	counts := make([]int, len(rows))
	for r, row := range rows {
		i, err := m.localRow(row)
		if err != nil {
			return nil, err
		}
		counts[r] = m.indptr[i+1] - m.indptr[i]
	}
	return counts, nil
}

// GetValues returns the columns and values of the owned rows, ncols[r]
// entries for rows[r], columns ascending within a row. ncols[r] must match
// the stored count.
func (m *IJMatrix) GetValues(rows []int64, ncols []int) ([]int64, []float64, error) {
	if err := m.readable(); err != nil {
		return nil, nil, err
	}
	if len(ncols) != len(rows) {
		return nil, nil, fmt.Errorf("%d row counts for %d rows", len(ncols), len(rows))
	}
	var total int
	for _, n := range ncols {
		total += n
	}
	cols := make([]int64, 0, total)
	vals := make([]float64, 0, total)
	for r, row := range rows {
		i, err := m.localRow(row)
		if err != nil {
			return nil, nil, err
		}
		lo, hi := m.indptr[i], m.indptr[i+1]
		if hi-lo != ncols[r] {
			return nil, nil, fmt.Errorf("row %d holds %d entries, %d requested", row, hi-lo, ncols[r])
		}
		cols = append(cols, m.ind[lo:hi]...)
		vals = append(vals, m.data[lo:hi]...)
	}
	return cols, vals, nil
}

// At returns entry (row, col) of an owned row of the assembled matrix
func (m *IJMatrix) At(row, col int64) (float64, error) {
	if err := m.readable(); err != nil {
		return 0, err
	}
	i, err := m.localRow(row)
	if err != nil {
		return 0, err
	}
	if col < 0 || col >= m.n {
		return 0, fmt.Errorf("%w: column %d", ErrOutOfRange, col)
	}
	return m.csr.At(i, int(col)), nil
}

// LocalNNZ is the number of stored entries in the owned rows
func (m *IJMatrix) LocalNNZ() int {
	if !m.assembled {
		return 0
	}
	return len(m.ind)
}

// Destroy releases the local storage; the matrix is unusable afterwards
func (m *IJMatrix) Destroy() {
	m.local, m.stash, m.csr = nil, nil, nil
	m.indptr, m.ind, m.data = nil, nil, nil
	m.destroyed = true
}
