package ijmatrix

import (
	"fmt"
)

// COO is the owned block of an assembled matrix as coordinate triples, rows
// ascending and columns ascending within a row
type COO struct {
	Rows, Cols []int64
	Values     []float64
	NNZ        int
}

// Export reads back every owned row of an assembled matrix
func Export(m *IJMatrix) (*COO, error) {
	rows := make([]int64, m.rows.NumRows())
	for i := range rows {
		rows[i] = m.rows.Start + int64(i)
	}
	ncols, err := m.GetRowCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("row counts: %w", err)
	}
	cols, vals, err := m.GetValues(rows, ncols)
	if err != nil {
		return nil, fmt.Errorf("row values: %w", err)
	}
	coo := &COO{
		Rows:   make([]int64, 0, len(cols)),
		Cols:   cols,
		Values: vals,
		NNZ:    len(cols),
	}
	for r, row := range rows {
		for k := 0; k < ncols[r]; k++ {
			coo.Rows = append(coo.Rows, row)
		}
	}
	return coo, nil
}
