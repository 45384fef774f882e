package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/SEMFEM/utils"
)

func TestRunner_Creation(t *testing.T) {
	t.Run("NilDevice", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic for nil Device")
			}
		}()
		NewRunner(nil, 0)
	})
}

func TestGeneratePreamble(t *testing.T) {
	pre := GeneratePreamble(map[string]int64{"p_Np": 27, "p_Nq": 3})
	assert.True(t, strings.HasPrefix(pre, "typedef double real_t;\ntypedef long int_t;\n"))
	assert.Less(t, strings.Index(pre, "#define p_Np 27"), strings.Index(pre, "#define p_Nq 3"))
	assert.Equal(t, "k,p_Np=27,p_Nq=3", kernelKey("k", map[string]int64{"p_Nq": 3, "p_Np": 27}))
}

func TestScratchAllocator(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	t.Run("PoolThenFallback", func(t *testing.T) {
		pool := NewScratchPool(device, 10*WordBytes+3)
		defer pool.Free()
		assert.Equal(t, int64(10*WordBytes), pool.Bytes)

		a := pool.Begin()
		b1 := a.Alloc(4)
		assert.False(t, b1.Fresh)
		assert.Equal(t, int64(0), b1.WordOffset())
		b2 := a.Alloc(5)
		assert.False(t, b2.Fresh)
		assert.Equal(t, int64(4), b2.WordOffset())
		// one word left: a one word request is not strictly smaller
		b3 := a.Alloc(1)
		assert.True(t, b3.Fresh)
		assert.Equal(t, int64(WordBytes), a.FreshBytes())
		assert.Equal(t, int64(9*WordBytes), a.PoolBytes())
		a.Release()
		assert.NotNil(t, pool.Mem)
	})

	t.Run("NoPool", func(t *testing.T) {
		pool := NewScratchPool(device, 0)
		defer pool.Free()
		a := pool.Begin()
		defer a.Release()
		b := a.Alloc(0)
		assert.True(t, b.Fresh)
		assert.Equal(t, int64(WordBytes), b.Bytes)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		pool := NewScratchPool(device, 64*WordBytes)
		defer pool.Free()
		a := pool.Begin()
		defer a.Release()
		_ = a.Int64s([]int64{7, 8, 9})
		b := a.Float64s([]float64{1.5, -2, 3.25})
		assert.Equal(t, int64(3), b.WordOffset())
		back := make([]float64, 3)
		require.NoError(t, a.CopyBackFloat64s(b, back))
		assert.Equal(t, []float64{1.5, -2, 3.25}, back)
		assert.Error(t, a.CopyBackFloat64s(b, make([]float64, 4)))
	})
}

const scaleKernel = `
@kernel void scaleInto(const int_t N,
                       const real_t *in_base, const int_t in_off,
                       real_t *out_base, const int_t out_off) {
  for (int b = 0; b < 1; ++b; @outer) {
    for (int i = 0; i < N; ++i; @inner) {
      out_base[out_off + i] = SCALE * in_base[in_off + i];
    }
  }
}
`

func TestRunner_KernelOnPooledBuffers(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	kr := NewRunner(device, 16*WordBytes)
	defer kr.Free()

	defines := map[string]int64{"SCALE": 3}
	kernel, err := kr.BuildKernel(scaleKernel, "scaleInto", defines)
	require.NoError(t, err)
	again, err := kr.BuildKernel(scaleKernel, "scaleInto", defines)
	require.NoError(t, err)
	assert.Same(t, kernel, again)

	a := kr.Pool.Begin()
	defer a.Release()
	in := a.Float64s([]float64{1, 2, 3, 4, 5})
	out := a.ZeroFloat64s(5)
	assert.False(t, in.Fresh || out.Fresh)

	args := []interface{}{int64(5)}
	args = append(args, in.Args()...)
	args = append(args, out.Args()...)
	require.NoError(t, kr.RunKernel(kernel, args...))

	got := make([]float64, 5)
	require.NoError(t, a.CopyBackFloat64s(out, got))
	assert.InDeltaSlicef(t, []float64{3, 6, 9, 12, 15}, got, 1.e-15, "")
}
