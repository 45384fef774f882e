package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockPartitionBalanced(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 10, NumPartitions: 3, Strategy: BlockPartition}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, layout.Partitions[0].Elements)
	assert.Equal(t, []int{4, 5, 6}, layout.Partitions[1].Elements)
	assert.Equal(t, []int{7, 8, 9}, layout.Partitions[2].Elements)
	assert.Equal(t, 4, layout.KpartMax)
	assert.Equal(t, 1, layout.GetPartition(5))
	assert.Equal(t, -1, layout.GetPartition(10))
}

func TestRoundRobinPartition(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 7, NumPartitions: 3, Strategy: RoundRobin}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 6}, layout.Partitions[0].Elements)
	assert.Equal(t, []int{1, 4}, layout.Partitions[1].Elements)
	assert.Equal(t, []int{2, 5}, layout.Partitions[2].Elements)
	assert.NoError(t, layout.ValidateLayout())
}

func TestBuildPartitionsRejectsBadSizes(t *testing.T) {
	_, err := (&PartitionBuilder{NumElements: 2, NumPartitions: 3}).BuildPartitions()
	assert.Error(t, err)
	_, err = (&PartitionBuilder{NumElements: 2, NumPartitions: 0}).BuildPartitions()
	assert.Error(t, err)
}

func TestValidateLayoutCatchesInconsistency(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 4, NumPartitions: 2}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	layout.EToP[0] = 1
	assert.Error(t, layout.ValidateLayout())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Round-Robin")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, BlockPartition, s)
	assert.Equal(t, "block", s.String())

	_, err = ParseStrategy("metis")
	assert.Error(t, err)
}
