package comm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrAborted is returned by a collective when another rank failed and
	// the world was torn down while this rank was waiting.
	ErrAborted = errors.New("comm: world aborted")

	// ErrProtocol reports ranks that disagree on the sequence of
	// collectives (a payload of the wrong kind arrived).
	ErrProtocol = errors.New("comm: collective protocol mismatch")
)

// mailboxDepth bounds how far a fast rank can run ahead of a slow one on a
// single (src, dst) link. One collective in flight per link is enough since
// every collective completes its sends before its receives.
const mailboxDepth = 2

// World is a group of cooperating ranks living in one process. Each rank
// runs on its own goroutine and talks to the others only through the
// collectives on Comm.
type World struct {
	size int
	// boxes[dst][src] carries payloads sent by src to dst, in call order
	boxes [][]chan any
}

// NewWorld creates a world of size ranks
func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, got %d", size))
	}
	w := &World{
		size:  size,
		boxes: make([][]chan any, size),
	}
	for dst := 0; dst < size; dst++ {
		w.boxes[dst] = make([]chan any, size)
		for src := 0; src < size; src++ {
			w.boxes[dst][src] = make(chan any, mailboxDepth)
		}
	}
	return w
}

// Size returns the number of ranks
func (w *World) Size() int { return w.size }

// Run executes fn once per rank and waits for all of them. The first rank
// to fail cancels the shared context, which releases every other rank from
// the collective it is blocked in. Run returns that first error.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c *Comm) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.size; rank++ {
		c := &Comm{rank: rank, world: w, ctx: gctx}
		g.Go(func() error {
			if err := fn(gctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Comm is one rank's handle on its world. A Comm must only be used by the
// goroutine it was handed to.
type Comm struct {
	rank  int
	world *World
	ctx   context.Context
}

// Rank returns this rank's id in [0, Size())
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the world
func (c *Comm) Size() int { return c.world.size }

func (c *Comm) send(dst int, payload any) error {
	select {
	case c.world.boxes[dst][c.rank] <- payload:
		return nil
	case <-c.ctx.Done():
		return ErrAborted
	}
}

func (c *Comm) recv(src int) (any, error) {
	select {
	case payload := <-c.world.boxes[c.rank][src]:
		return payload, nil
	case <-c.ctx.Done():
		return nil, ErrAborted
	}
}
