package assembly

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/element"
	"github.com/notargets/SEMFEM/ijmatrix"
	"github.com/notargets/SEMFEM/mesh"
	"github.com/notargets/SEMFEM/numbering"
	"github.com/notargets/SEMFEM/runner"
	"github.com/notargets/SEMFEM/utils"
)

// singleHex is one element of 2×2×2 nodes on the cube [0,h]³
func singleHex(t *testing.T, h float64, dirichlet ...mesh.Face) *mesh.Mesh {
	t.Helper()
	b, err := mesh.NewBox(mesh.BoxSpec{
		Elements:  [3]int{1, 1, 1},
		N:         2,
		Length:    [3]float64{h, h, h},
		Dirichlet: dirichlet,
	})
	require.NoError(t, err)
	m, err := b.Extract([]int{0})
	require.NoError(t, err)
	return m
}

// number runs the DOF numbering on a single rank
func number(c *comm.Comm, m *mesh.Mesh) ([]int64, numbering.RowInterval, error) {
	gs, err := comm.NewGatherScatter(c, m.GlobalIDs)
	if err != nil {
		return nil, numbering.RowInterval{}, err
	}
	tags, err := numbering.ResolveDuplicates(c, gs, m.Mask)
	if err != nil {
		return nil, numbering.RowInterval{}, err
	}
	ranks, err := numbering.DenseRank(c, tags)
	if err != nil {
		return nil, numbering.RowInterval{}, err
	}
	rows, _, err := numbering.BuildOwnership(c, ranks)
	return ranks, rows, err
}

// assembleOne numbers and assembles m on one rank with the backend made by
// newBackend
func assembleOne(t *testing.T, m *mesh.Mesh, newBackend func(c *comm.Comm) Backend) (*ijmatrix.COO, error) {
	t.Helper()
	var coo *ijmatrix.COO
	err := comm.NewWorld(1).Run(context.Background(), func(_ context.Context, c *comm.Comm) error {
		ranks, rows, err := number(c, m)
		if err != nil {
			return err
		}
		A, err := ijmatrix.Create(c, rows)
		if err != nil {
			return err
		}
		p := &Problem{Mesh: m, Ranks: ranks, Tolerance: DefaultTolerance}
		coo, err = NewEngine(c, newBackend(c), p, A, nil).Assemble()
		return err
	})
	return coo, err
}

func dense(coo *ijmatrix.COO, n int) [][]float64 {
	A := make([][]float64, n)
	for i := range A {
		A[i] = make([]float64, n)
	}
	for k := 0; k < coo.NNZ; k++ {
		A[coo.Rows[k]][coo.Cols[k]] += coo.Values[k]
	}
	return A
}

func TestDirectCornerMaskedHex(t *testing.T) {
	// Corner 0 sits on all three min faces; masking only those nodes on
	// xmin would drop four corners, so mask corner 0 by hand.
	h := 0.5
	m := singleHex(t, h)
	m.Mask[m.NodeIndex(0, 0, 0, 0)] = 0

	before := testutil.ToFloat64(assemblyInserts.WithLabelValues("host"))
	coo, err := assembleOne(t, m, func(*comm.Comm) Backend { return &Direct{} })
	require.NoError(t, err)
	assert.Equal(t, 64.0, testutil.ToFloat64(assemblyInserts.WithLabelValues("host"))-before)

	assert.Equal(t, 25, coo.NNZ)
	A := dense(coo, 7)
	// free corner c has dense rank c-1
	adjacent := func(a, b int) bool {
		var diff int
		for d := 0; d < element.Dim; d++ {
			if element.HexVertexOffsets[a][d] != element.HexVertexOffsets[b][d] {
				diff++
			}
		}
		return diff == 1
	}
	for a := 1; a < 8; a++ {
		var rowSum float64
		for b := 1; b < 8; b++ {
			want := 0.0
			switch {
			case a == b:
				want = h
			case adjacent(a, b):
				want = -h / 3
			}
			assert.InDelta(t, want, A[a-1][b-1], 1.e-14, "A[%d][%d]", a, b)
			assert.InDelta(t, A[a-1][b-1], A[b-1][a-1], 1.e-15)
			rowSum += A[a-1][b-1]
		}
		if adjacent(a, 0) {
			assert.InDelta(t, h/3, rowSum, 1.e-14, "row %d", a)
		} else {
			assert.InDelta(t, 0.0, rowSum, 1.e-14, "row %d", a)
		}
	}
	// columns ascending within each row
	for k := 1; k < coo.NNZ; k++ {
		if coo.Rows[k] == coo.Rows[k-1] {
			assert.Less(t, coo.Cols[k-1], coo.Cols[k])
		}
	}
}

func TestBuildGraphCornerMaskedHex(t *testing.T) {
	m := singleHex(t, 1)
	m.Mask[0] = 0
	ranks := make([]int64, 8)
	ranks[0] = numbering.Sentinel
	for c := 1; c < 8; c++ {
		ranks[c] = int64(c - 1)
	}
	g, err := BuildGraph(&Problem{Mesh: m, Ranks: ranks})
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, g.Rows)
	assert.Equal(t, 43, g.NNZ)
	assert.Len(t, g.RowOffsets, 8)
	assert.Equal(t, int64(g.NNZ), g.RowOffsets[7])
	assert.Equal(t, []int{6, 6, 6, 6, 6, 6, 7}, g.NCols)

	// corner 1 to corner 3 is an edge, corner 1 to corner 6 the body diagonal
	assert.GreaterOrEqual(t, g.Find(0, 2), 0)
	assert.Equal(t, -1, g.Find(0, 5))
	assert.Equal(t, -1, g.Find(9, 0))
	for r, row := range g.Rows {
		for k := g.RowOffsets[r]; k < g.RowOffsets[r+1]; k++ {
			assert.Equal(t, int(k), g.Find(row, g.Cols[k]))
		}
	}
}

func TestDegenerateElementRejected(t *testing.T) {
	m := singleHex(t, 1)
	for n := range m.Z {
		m.Z[n] = 0
	}
	_, err := assembleOne(t, m, func(*comm.Comm) Backend { return &Direct{} })
	assert.ErrorIs(t, err, element.ErrDegenerateElement)
}

func TestDegenerateAllowedDropsNaN(t *testing.T) {
	m := singleHex(t, 1)
	for n := range m.Z {
		m.Z[n] = 0
	}
	var coo *ijmatrix.COO
	require.NoError(t, comm.NewWorld(1).Run(context.Background(), func(_ context.Context, c *comm.Comm) error {
		ranks, rows, err := number(c, m)
		if err != nil {
			return err
		}
		A, err := ijmatrix.Create(c, rows)
		if err != nil {
			return err
		}
		p := &Problem{Mesh: m, Ranks: ranks, Tolerance: DefaultTolerance, AllowDegenerate: true}
		coo, err = NewEngine(c, &Direct{}, p, A, nil).Assemble()
		return err
	}))
	// a flat tetrahedron has det J = 0, so every contribution is 0·Inf or
	// 0·NaN; NaN never passes |v| > tol
	for _, v := range coo.Values {
		assert.False(t, math.IsNaN(v))
	}
	assert.Zero(t, coo.NNZ)
}

func TestDrainDestroysMatrixOnExportFailure(t *testing.T) {
	m := singleHex(t, 1)
	var A *ijmatrix.IJMatrix
	err := comm.NewWorld(1).Run(context.Background(), func(_ context.Context, c *comm.Comm) error {
		ranks, rows, err := number(c, m)
		if err != nil {
			return err
		}
		if A, err = ijmatrix.Create(c, rows); err != nil {
			return err
		}
		p := &Problem{Mesh: m, Ranks: ranks, Tolerance: DefaultTolerance}
		e := NewEngine(c, &Direct{}, p, A, nil)
		e.export = func(*ijmatrix.IJMatrix) (*ijmatrix.COO, error) {
			return nil, fmt.Errorf("export failed")
		}
		_, err = e.Assemble()
		return err
	})
	assert.ErrorContains(t, err, "export failed")
	_, err = ijmatrix.Export(A)
	assert.ErrorIs(t, err, ijmatrix.ErrDestroyed)
}

func TestEnginePhaseOrder(t *testing.T) {
	m := singleHex(t, 1)
	require.NoError(t, comm.NewWorld(1).Run(context.Background(), func(_ context.Context, c *comm.Comm) error {
		ranks, rows, err := number(c, m)
		if err != nil {
			return err
		}
		A, err := ijmatrix.Create(c, rows)
		if err != nil {
			return err
		}
		p := &Problem{Mesh: m, Ranks: ranks, Tolerance: DefaultTolerance}

		e := NewEngine(c, &OffloadedGraph{}, p, A, nil)
		if err = e.Fill(); !assert.ErrorIs(t, err, ErrPhase) {
			return fmt.Errorf("fill before graph: %v", err)
		}
		if err = e.Finalize(); !assert.ErrorIs(t, err, ErrPhase) {
			return fmt.Errorf("finalize before fill: %v", err)
		}
		assert.Equal(t, PhaseInit, e.Phase())

		// the host backend has no symbolic pass and may fill from Init
		e = NewEngine(c, &Direct{}, p, A, nil)
		if err = e.Fill(); err != nil {
			return err
		}
		if _, err = e.Drain(); !assert.ErrorIs(t, err, ErrPhase) {
			return fmt.Errorf("drain before finalize: %v", err)
		}
		if err = e.Finalize(); err != nil {
			return err
		}
		if _, err = e.Drain(); err != nil {
			return err
		}
		assert.Equal(t, PhaseDrained, e.Phase())
		return nil
	}))
}

func TestHostAndDeviceAgree(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	b, err := mesh.NewBox(mesh.BoxSpec{
		Elements:  [3]int{1, 1, 1},
		N:         8,
		Length:    [3]float64{1, 2, 1.5},
		Dirichlet: []mesh.Face{mesh.XMin},
		GLL:       true,
	})
	require.NoError(t, err)
	m, err := b.Extract([]int{0})
	require.NoError(t, err)

	host, err := assembleOne(t, m, func(*comm.Comm) Backend { return &Direct{} })
	require.NoError(t, err)

	for _, poolBytes := range []int64{0, 64 << 20} {
		t.Run(fmt.Sprintf("pool=%d", poolBytes), func(t *testing.T) {
			kr := runner.NewRunner(device, poolBytes)
			defer kr.Free()

			before := testutil.ToFloat64(scratchFallbackBytes)
			dev, err := assembleOne(t, m, func(c *comm.Comm) Backend {
				return &OffloadedGraph{Runner: kr, Comm: c}
			})
			require.NoError(t, err)
			fallback := testutil.ToFloat64(scratchFallbackBytes) - before
			if poolBytes == 0 {
				assert.Positive(t, fallback)
			} else {
				assert.Zero(t, fallback)
			}

			require.Equal(t, host.NNZ, dev.NNZ)
			assert.Equal(t, host.Rows, dev.Rows)
			assert.Equal(t, host.Cols, dev.Cols)
			assert.InDeltaSlicef(t, host.Values, dev.Values, 1.e-10, "")
		})
	}
}
