package partitions

import (
	"fmt"
)

// Partition is the set of spectral elements handed to one rank
type Partition struct {
	// Unique identifier for this partition, equal to the owning rank
	ID int

	// Element membership, ascending global element indices
	Elements    []int
	NumElements int
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency: every element belongs to
// exactly one partition, the partition lists agree with EToP, and no
// partition is empty.
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("layout has %d partitions, expected %d",
			len(pl.Partitions), pl.NumPartitions)
	}
	if len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("EToP has %d entries for %d elements",
			len(pl.EToP), pl.TotalElements)
	}
	seen := make([]bool, pl.TotalElements)
	actualMax, total := 0, 0
	for id, p := range pl.Partitions {
		if p.ID != id {
			return fmt.Errorf("partition at position %d has ID %d", id, p.ID)
		}
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d listed elements",
				id, p.NumElements, len(p.Elements))
		}
		if p.NumElements == 0 {
			return fmt.Errorf("partition %d is empty", id)
		}
		for _, e := range p.Elements {
			if e < 0 || e >= pl.TotalElements {
				return fmt.Errorf("partition %d: element %d out of range", id, e)
			}
			if seen[e] {
				return fmt.Errorf("element %d assigned twice", e)
			}
			if pl.EToP[e] != id {
				return fmt.Errorf("element %d listed in partition %d but EToP says %d",
					e, id, pl.EToP[e])
			}
			seen[e] = true
		}
		actualMax = max(actualMax, p.NumElements)
		total += p.NumElements
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, mesh has %d", total, pl.TotalElements)
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	return nil
}
