package assembly

import (
	"fmt"
	"log/slog"

	"github.com/notargets/gocca"

	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/runner"
)

const bytesPerGB = 1 << 30

// OffloadedGraph builds the nonzero pattern on the host, computes the values
// into it with a device kernel, and inserts the whole block at once.
type OffloadedGraph struct {
	Runner *runner.Runner
	// Comm, when set, is used to sum the fallback allocation report over
	// ranks. Every rank must then use this backend.
	Comm *comm.Comm
	// X, Y, Z are optional device copies of the mesh coordinates on the
	// runner's device; when nil the coordinates are uploaded from the mesh
	X, Y, Z *gocca.OCCAMemory
	Logger  *slog.Logger

	graph   *Graph
	inserts int
}

func (b *OffloadedGraph) Name() string { return "device" }

func (b *OffloadedGraph) Inserts() int { return b.inserts }

func (b *OffloadedGraph) BuildGraph(p *Problem) (err error) {
	b.graph, err = BuildGraph(p)
	return err
}

func (b *OffloadedGraph) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b *OffloadedGraph) coordinate(a *runner.ScratchAllocator, mem *gocca.OCCAMemory, host []float64) runner.DeviceBuffer {
	if mem != nil {
		return runner.DeviceBuffer{Mem: mem, Bytes: int64(len(host)) * runner.WordBytes}
	}
	return a.Float64s(host)
}

func (b *OffloadedGraph) Fill(p *Problem, A Inserter) error {
	if b.graph == nil {
		return fmt.Errorf("%s backend: Fill before BuildGraph", b.Name())
	}
	g := b.graph
	m := p.Mesh
	kernel, err := b.Runner.BuildKernel(stiffnessKernelSource(), stiffnessKernelName,
		map[string]int64{"p_Nq": int64(m.N), "p_Np": int64(m.NodesPerElement())})
	if err != nil {
		return err
	}

	a := b.Runner.Pool.Begin()
	defer a.Release()

	x := b.coordinate(a, b.X, m.X)
	y := b.coordinate(a, b.Y, m.Y)
	z := b.coordinate(a, b.Z, m.Z)
	mask := a.Float64s(m.Mask)
	ranks := a.Int64s(p.Ranks)
	rows := a.Int64s(g.Rows)
	offs := a.Int64s(g.RowOffsets)
	cols := a.Int64s(g.Cols)
	vals := a.ZeroFloat64s(g.NNZ)

	fresh := a.FreshBytes()
	scratchFallbackBytes.Add(float64(fresh))
	if b.Comm != nil {
		total, err := b.Comm.AllReduce(fresh, comm.OpSum)
		if err != nil {
			return fmt.Errorf("fallback allocation report: %w", err)
		}
		if b.Comm.Rank() == 0 && total > 0 {
			b.logger().Info("scratch pool too small, allocated fresh device memory",
				"total_gb", float64(total)/bytesPerGB,
				"per_rank_gb", float64(total)/bytesPerGB/float64(b.Comm.Size()))
		}
	}

	args := []interface{}{int64(m.NumElements)}
	for _, buf := range []runner.DeviceBuffer{x, y, z, mask, ranks} {
		args = append(args, buf.Args()...)
	}
	args = append(args, int64(len(g.Rows)))
	for _, buf := range []runner.DeviceBuffer{rows, offs, cols, vals} {
		args = append(args, buf.Args()...)
	}
	args = append(args, p.Tolerance)
	if err = b.Runner.RunKernel(kernel, args...); err != nil {
		return err
	}

	values := make([]float64, g.NNZ)
	if err = a.CopyBackFloat64s(vals, values); err != nil {
		return err
	}
	if err = A.AddToValues(g.NCols, g.Rows, g.Cols, values); err != nil {
		return fmt.Errorf("bulk insert of %d entries: %w", g.NNZ, err)
	}
	b.inserts = g.NNZ
	return nil
}
