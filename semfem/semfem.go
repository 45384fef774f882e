// Package semfem is the entry point of the low-order preconditioner setup.
// Setup numbers the degrees of freedom of one rank's spectral element mesh
// and assembles the rank's rows of the low-order stiffness matrix; Run drives
// a whole in-process world from a configuration.
package semfem

import (
	"fmt"
	"log/slog"

	"github.com/notargets/gocca"

	"github.com/notargets/SEMFEM/assembly"
	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/config"
	"github.com/notargets/SEMFEM/ijmatrix"
	"github.com/notargets/SEMFEM/mesh"
	"github.com/notargets/SEMFEM/numbering"
	"github.com/notargets/SEMFEM/runner"
)

// Input is one rank's mesh. DeviceX, DeviceY and DeviceZ optionally hold the
// coordinates already resident on the runner's device.
type Input struct {
	Mesh                      *mesh.Mesh
	DeviceX, DeviceY, DeviceZ *gocca.OCCAMemory
}

// Data is the assembled result of one rank. Ai, Aj and Av are the owned
// entries in row major order with ascending columns.
type Data struct {
	Ai, Aj []int64
	Av     []float64
	NNZ    int64
	// RowStart and RowEnd bound the owned rows, both inclusive
	RowStart, RowEnd int64
	// DofMap lists the local node index of each owned row
	DofMap []int64
}

type Options struct {
	Backend         string // config.BackendHost or config.BackendDevice
	Runner          *runner.Runner
	Tolerance       float64
	AllowDegenerate bool
	Logger          *slog.Logger
}

func (o Options) backend(c *comm.Comm, in Input) (assembly.Backend, error) {
	switch o.Backend {
	case "", config.BackendHost:
		return &assembly.Direct{}, nil
	case config.BackendDevice:
		if o.Runner == nil {
			return nil, fmt.Errorf("device backend needs a runner")
		}
		return &assembly.OffloadedGraph{
			Runner: o.Runner,
			Comm:   c,
			X:      in.DeviceX,
			Y:      in.DeviceY,
			Z:      in.DeviceZ,
			Logger: o.Logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
}

// Setup is collective over c
func Setup(c *comm.Comm, in Input, opts Options) (*Data, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("rank", c.Rank())
	if in.Mesh == nil {
		return nil, fmt.Errorf("rank %d: no mesh", c.Rank())
	}
	if err := in.Mesh.Validate(); err != nil {
		return nil, fmt.Errorf("rank %d: %w", c.Rank(), err)
	}
	backend, err := opts.backend(c, in)
	if err != nil {
		return nil, err
	}

	gs, err := comm.NewGatherScatter(c, in.Mesh.GlobalIDs)
	if err != nil {
		return nil, fmt.Errorf("gather-scatter setup: %w", err)
	}
	logger.Debug("gather-scatter ready", "ids", gs.NumShared())
	tags, err := numbering.ResolveDuplicates(c, gs, in.Mesh.Mask)
	if err != nil {
		return nil, fmt.Errorf("resolve duplicate nodes: %w", err)
	}
	ranks, err := numbering.DenseRank(c, tags)
	if err != nil {
		return nil, fmt.Errorf("dense renumbering: %w", err)
	}
	rows, dofMap, err := numbering.BuildOwnership(c, ranks)
	if err != nil {
		return nil, err
	}
	logger.Debug("owned rows", "rows", rows.String(), "dofs", len(dofMap))

	A, err := ijmatrix.Create(c, rows)
	if err != nil {
		return nil, err
	}
	p := &assembly.Problem{
		Mesh:            in.Mesh,
		Ranks:           ranks,
		Tolerance:       opts.Tolerance,
		AllowDegenerate: opts.AllowDegenerate,
	}
	coo, err := assembly.NewEngine(c, backend, p, A, opts.Logger).Assemble()
	if err != nil {
		return nil, err
	}
	return &Data{
		Ai:       coo.Rows,
		Aj:       coo.Cols,
		Av:       coo.Values,
		NNZ:      int64(coo.NNZ),
		RowStart: rows.Start,
		RowEnd:   rows.End,
		DofMap:   dofMap,
	}, nil
}
