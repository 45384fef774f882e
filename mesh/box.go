package mesh

import (
	"fmt"
	"strings"

	"github.com/notargets/gocfd/utils"

	"github.com/notargets/SEMFEM/partitions"
)

// Face names one of the six faces of the box
type Face int

const (
	XMin Face = iota
	XMax
	YMin
	YMax
	ZMin
	ZMax
)

var faceNames = [...]string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"}

func (f Face) String() string {
	if f < XMin || f > ZMax {
		return fmt.Sprintf("Face(%d)", int(f))
	}
	return faceNames[f]
}

func ParseFace(name string) (Face, error) {
	for i, n := range faceNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Face(i), nil
		}
	}
	return 0, fmt.Errorf("unknown box face %q", name)
}

// BoxSpec describes a structured hexahedral mesh of [0,Lx]×[0,Ly]×[0,Lz]
type BoxSpec struct {
	Elements  [3]int     // elements per direction
	N         int        // nodes per element direction
	Length    [3]float64 // box extent
	Dirichlet []Face     // faces whose nodes are masked out
	GLL       bool       // Gauss-Lobatto-Legendre spacing, else uniform
}

// Box is the global mesh. Coordinates are stored per element, one row per
// element and one column per node in NodeIndex order.
type Box struct {
	Spec    BoxSpec
	R       utils.Vector // 1D reference nodes on [-1,1]
	X, Y, Z utils.Matrix // K × N³
	Mask    utils.Matrix // K × N³
	IDs     [][]int64    // K × N³ global node ids, 1-based

	K  int
	Np int
	// grid points per direction of the assembled (continuous) node lattice
	Points [3]int
}

// NewBox builds the global box mesh
func NewBox(spec BoxSpec) (*Box, error) {
	for d := 0; d < 3; d++ {
		if spec.Elements[d] < 1 {
			return nil, fmt.Errorf("%w: element count %v must be positive", ErrBadMesh, spec.Elements)
		}
		if spec.Length[d] <= 0 {
			return nil, fmt.Errorf("%w: box length %v must be positive", ErrBadMesh, spec.Length)
		}
	}
	var (
		R   utils.Vector
		err error
	)
	if spec.GLL {
		R, err = GLLNodes(spec.N)
	} else {
		R, err = UniformNodes(spec.N)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMesh, err)
	}

	N := spec.N
	Ex, Ey, Ez := spec.Elements[0], spec.Elements[1], spec.Elements[2]
	b := &Box{
		Spec: spec,
		R:    R,
		K:    Ex * Ey * Ez,
		Np:   N * N * N,
	}
	for d := 0; d < 3; d++ {
		b.Points[d] = spec.Elements[d]*(N-1) + 1
	}
	b.X = utils.NewMatrix(b.K, b.Np)
	b.Y = utils.NewMatrix(b.K, b.Np)
	b.Z = utils.NewMatrix(b.K, b.Np)
	b.Mask = utils.NewMatrix(b.K, b.Np)
	b.IDs = make([][]int64, b.K)

	masked := b.dirichletSet()
	r := R.Data()
	coord := func(d, e, i int) float64 {
		return spec.Length[d] * (float64(e) + 0.5*(1+r[i])) / float64(spec.Elements[d])
	}

	for ez := 0; ez < Ez; ez++ {
		for ey := 0; ey < Ey; ey++ {
			for ex := 0; ex < Ex; ex++ {
				k := ex + Ex*(ey+Ey*ez)
				b.IDs[k] = make([]int64, b.Np)
				for kk := 0; kk < N; kk++ {
					for j := 0; j < N; j++ {
						for i := 0; i < N; i++ {
							node := i + N*(j+N*kk)
							g := [3]int{ex*(N-1) + i, ey*(N-1) + j, ez*(N-1) + kk}
							b.X.Set(k, node, coord(0, ex, i))
							b.Y.Set(k, node, coord(1, ey, j))
							b.Z.Set(k, node, coord(2, ez, kk))
							b.Mask.Set(k, node, b.maskAt(g, masked))
							b.IDs[k][node] = 1 + int64(g[0]+b.Points[0]*(g[1]+b.Points[1]*g[2]))
						}
					}
				}
			}
		}
	}
	return b, nil
}

func (b *Box) maskAt(g [3]int, masked map[Face]bool) float64 {
	for d := 0; d < 3; d++ {
		if (g[d] == 0 && masked[Face(2*d)]) ||
			(g[d] == b.Points[d]-1 && masked[Face(2*d+1)]) {
			return 0
		}
	}
	return 1
}

// NumGlobalNodes is the number of distinct physical nodes in the box
func (b *Box) NumGlobalNodes() int {
	return b.Points[0] * b.Points[1] * b.Points[2]
}

// NumFreeNodes is the number of distinct physical nodes not on a Dirichlet
// face
func (b *Box) NumFreeNodes() int {
	var n int
	masked := b.dirichletSet()
	for gz := 0; gz < b.Points[2]; gz++ {
		for gy := 0; gy < b.Points[1]; gy++ {
			for gx := 0; gx < b.Points[0]; gx++ {
				n += int(b.maskAt([3]int{gx, gy, gz}, masked))
			}
		}
	}
	return n
}

func (b *Box) dirichletSet() map[Face]bool {
	m := make(map[Face]bool, len(b.Spec.Dirichlet))
	for _, f := range b.Spec.Dirichlet {
		m[f] = true
	}
	return m
}

// Extract builds the rank-local Mesh holding the given global elements, in
// the order listed.
func (b *Box) Extract(elements []int) (*Mesh, error) {
	m := &Mesh{N: b.Spec.N, NumElements: len(elements)}
	n := m.NumNodes()
	m.X = make([]float64, n)
	m.Y = make([]float64, n)
	m.Z = make([]float64, n)
	m.Mask = make([]float64, n)
	m.GlobalIDs = make([]int64, n)
	for le, k := range elements {
		if k < 0 || k >= b.K {
			return nil, fmt.Errorf("%w: element %d outside box of %d elements", ErrBadMesh, k, b.K)
		}
		for node := 0; node < b.Np; node++ {
			idx := le*b.Np + node
			m.X[idx] = b.X.At(k, node)
			m.Y[idx] = b.Y.At(k, node)
			m.Z[idx] = b.Z.At(k, node)
			m.Mask[idx] = b.Mask.At(k, node)
			m.GlobalIDs[idx] = b.IDs[k][node]
		}
	}
	return m, nil
}

// Partition splits the box over nparts ranks and returns one Mesh per rank
func (b *Box) Partition(nparts int, strategy partitions.PartitionStrategy) ([]*Mesh, *partitions.PartitionLayout, error) {
	pb := &partitions.PartitionBuilder{
		NumElements:   b.K,
		NumPartitions: nparts,
		Strategy:      strategy,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, nil, err
	}
	meshes := make([]*Mesh, nparts)
	for i, p := range layout.Partitions {
		if meshes[i], err = b.Extract(p.Elements); err != nil {
			return nil, nil, err
		}
	}
	return meshes, layout, nil
}
