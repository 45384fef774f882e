package partitions

import (
	"fmt"
	"math"
	"strings"
)

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically
)

// ParseStrategy maps a configuration name onto a strategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "block":
		return BlockPartition, nil
	case "round-robin", "roundrobin":
		return RoundRobin, nil
	default:
		return 0, fmt.Errorf("unknown partitioning strategy %q", name)
	}
}

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "round-robin"
	default:
		return fmt.Sprintf("PartitionStrategy(%d)", int(s))
	}
}

// PartitionBuilder distributes the elements of a mesh over a fixed number of
// ranks
type PartitionBuilder struct {
	NumElements   int
	NumPartitions int
	Strategy      PartitionStrategy
}

// BuildPartitions creates and validates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumPartitions < 1 {
		return nil, fmt.Errorf("need at least one partition, got %d", pb.NumPartitions)
	}
	if pb.NumElements < pb.NumPartitions {
		return nil, fmt.Errorf("cannot split %d elements over %d partitions",
			pb.NumElements, pb.NumPartitions)
	}

	eToP, err := pb.partitionElements()
	if err != nil {
		return nil, err
	}
	partitions := pb.createPartitions(eToP)

	kpartMax := 0
	for _, p := range partitions {
		kpartMax = max(kpartMax, p.NumElements)
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.NumElements,
		NumPartitions: pb.NumPartitions,
		EToP:          eToP,
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements() ([]int, error) {
	eToP := make([]int, pb.NumElements)

	switch pb.Strategy {
	case BlockPartition:
		// Balanced contiguous blocks: the first NumElements%NumPartitions
		// partitions take one extra element
		base := pb.NumElements / pb.NumPartitions
		extra := pb.NumElements % pb.NumPartitions
		e := 0
		for p := 0; p < pb.NumPartitions; p++ {
			n := base
			if p < extra {
				n++
			}
			for i := 0; i < n; i++ {
				eToP[e] = p
				e++
			}
		}

	case RoundRobin:
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i % pb.NumPartitions
		}

	default:
		return nil, fmt.Errorf("unsupported strategy %v", pb.Strategy)
	}

	return eToP, nil
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int) []Partition {
	partitions := make([]Partition, pb.NumPartitions)
	perPart := int(math.Ceil(float64(pb.NumElements) / float64(pb.NumPartitions)))
	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0, perPart),
		}
	}
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}
	return partitions
}
