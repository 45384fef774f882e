package assembly

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/ijmatrix"
)

// Phase of one assembly call. Phases only move forward.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseGraph
	PhaseFill
	PhaseFinalize
	PhaseDrained
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseGraph:
		return "graph"
	case PhaseFill:
		return "fill"
	case PhaseFinalize:
		return "finalize"
	case PhaseDrained:
		return "drained"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

var ErrPhase = errors.New("assembly phase out of order")

// Backend computes the element contributions and hands them to the matrix
type Backend interface {
	Name() string
	Fill(p *Problem, A Inserter) error
}

// GraphBuilder is implemented by backends with a symbolic pass before Fill
type GraphBuilder interface {
	BuildGraph(p *Problem) error
}

type insertCounter interface {
	Inserts() int
}

// Engine drives one assembly call through its phases
type Engine struct {
	comm    *comm.Comm
	backend Backend
	problem *Problem
	matrix  *ijmatrix.IJMatrix
	logger  *slog.Logger
	phase   Phase
	export  func(*ijmatrix.IJMatrix) (*ijmatrix.COO, error)
}

func NewEngine(c *comm.Comm, backend Backend, p *Problem, A *ijmatrix.IJMatrix, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		comm:    c,
		backend: backend,
		problem: p,
		matrix:  A,
		logger:  logger.With("backend", backend.Name()),
		export:  ijmatrix.Export,
	}
}

func (e *Engine) Phase() Phase { return e.phase }

func (e *Engine) advance(from []Phase, to Phase) error {
	for _, p := range from {
		if e.phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: %v requested in phase %v", ErrPhase, to, e.phase)
}

func (e *Engine) timed(phase Phase, msg string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	assemblyPhaseSeconds.WithLabelValues(e.backend.Name(), phase.String()).Observe(elapsed.Seconds())
	if e.comm.Rank() == 0 {
		e.logger.Info(msg, "elapsed", elapsed)
	}
	e.phase = phase
	return nil
}

// prepare validates the problem on leaving Init
func (e *Engine) prepare() error {
	if e.phase != PhaseInit {
		return nil
	}
	if err := e.problem.Validate(); err != nil {
		return err
	}
	if !e.problem.AllowDegenerate {
		if err := e.problem.CheckGeometry(); err != nil {
			return fmt.Errorf("rank %d: %w", e.comm.Rank(), err)
		}
	}
	return nil
}

// BuildGraph runs the symbolic pass. Backends without one move straight to
// PhaseGraph.
func (e *Engine) BuildGraph() error {
	if err := e.advance([]Phase{PhaseInit}, PhaseGraph); err != nil {
		return err
	}
	if err := e.prepare(); err != nil {
		return err
	}
	gb, ok := e.backend.(GraphBuilder)
	if !ok {
		e.phase = PhaseGraph
		return nil
	}
	return e.timed(PhaseGraph, "symbolic graph construction took", func() error {
		return gb.BuildGraph(e.problem)
	})
}

func (e *Engine) Fill() error {
	if _, ok := e.backend.(GraphBuilder); ok {
		if err := e.advance([]Phase{PhaseGraph}, PhaseFill); err != nil {
			return err
		}
	} else if err := e.advance([]Phase{PhaseInit, PhaseGraph}, PhaseFill); err != nil {
		return err
	}
	if err := e.prepare(); err != nil {
		return err
	}
	err := e.timed(PhaseFill, "graph fill took", func() error {
		return e.backend.Fill(e.problem, e.matrix)
	})
	if err != nil {
		return err
	}
	if ic, ok := e.backend.(insertCounter); ok {
		assemblyInserts.WithLabelValues(e.backend.Name()).Add(float64(ic.Inserts()))
	}
	return nil
}

// Finalize assembles the matrix; it is collective
func (e *Engine) Finalize() error {
	if err := e.advance([]Phase{PhaseFill}, PhaseFinalize); err != nil {
		return err
	}
	if err := e.timed(PhaseFinalize, "matrix assembly took", e.matrix.Assemble); err != nil {
		return err
	}
	e.logger.Debug("assembled local rows", "rank", e.comm.Rank(),
		"rows", e.matrix.Rows().String(), "nnz", e.matrix.LocalNNZ())
	return nil
}

// Drain exports the owned rows and destroys the matrix, also when the
// export fails
func (e *Engine) Drain() (*ijmatrix.COO, error) {
	if err := e.advance([]Phase{PhaseFinalize}, PhaseDrained); err != nil {
		return nil, err
	}
	defer e.matrix.Destroy()
	var coo *ijmatrix.COO
	err := e.timed(PhaseDrained, "matrix export took", func() (err error) {
		coo, err = e.export(e.matrix)
		return err
	})
	if err != nil {
		return nil, err
	}
	return coo, nil
}

// Assemble runs every phase in order
func (e *Engine) Assemble() (*ijmatrix.COO, error) {
	if err := e.BuildGraph(); err != nil {
		return nil, err
	}
	if err := e.Fill(); err != nil {
		return nil, err
	}
	if err := e.Finalize(); err != nil {
		return nil, err
	}
	return e.Drain()
}
