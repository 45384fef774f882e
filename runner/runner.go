package runner

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/notargets/gocca"
)

// Runner compiles kernels for one device and owns the scratch pool that
// kernel launches draw their buffers from
type Runner struct {
	Device  *gocca.OCCADevice
	Kernels map[string]*gocca.OCCAKernel
	Pool    *ScratchPool
}

// NewRunner creates a Runner with a scratch pool of poolBytes on device
func NewRunner(device *gocca.OCCADevice, poolBytes int64) *Runner {
	if device == nil {
		panic("NewRunner: nil device")
	}
	return &Runner{
		Device:  device,
		Kernels: make(map[string]*gocca.OCCAKernel),
		Pool:    NewScratchPool(device, poolBytes),
	}
}

// GeneratePreamble emits the type definitions shared by all kernels followed
// by one #define per compile-time constant, in name order
func GeneratePreamble(defines map[string]int64) string {
	var sb strings.Builder
	sb.WriteString("typedef double real_t;\n")
	sb.WriteString("typedef long int_t;\n")
	sb.WriteString("#define REAL_ZERO 0.0\n")
	sb.WriteString("#define REAL_ONE 1.0\n")
	sb.WriteString("\n")
	for _, name := range slices.Sorted(maps.Keys(defines)) {
		sb.WriteString(fmt.Sprintf("#define %s %d\n", name, defines[name]))
	}
	sb.WriteString("\n")
	return sb.String()
}

// kernelKey distinguishes builds of one kernel with different constants
func kernelKey(kernelName string, defines map[string]int64) string {
	var sb strings.Builder
	sb.WriteString(kernelName)
	for _, name := range slices.Sorted(maps.Keys(defines)) {
		sb.WriteString(fmt.Sprintf(",%s=%d", name, defines[name]))
	}
	return sb.String()
}

// BuildKernel compiles kernelSource with the given compile-time constants.
// A kernel already built with the same name and constants is reused.
func (kr *Runner) BuildKernel(kernelSource, kernelName string, defines map[string]int64) (*gocca.OCCAKernel, error) {
	key := kernelKey(kernelName, defines)
	if kernel, ok := kr.Kernels[key]; ok {
		return kernel, nil
	}
	fullSource := GeneratePreamble(defines) + kernelSource

	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if kr.Device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	kr.Kernels[key] = kernel
	return kernel, nil
}

// RunKernel launches a built kernel and waits for the device to finish
func (kr *Runner) RunKernel(kernel *gocca.OCCAKernel, args ...interface{}) error {
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	kr.Device.Finish()
	return nil
}

// Free releases kernels and the scratch pool. The device belongs to the
// caller.
func (kr *Runner) Free() {
	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	clear(kr.Kernels)
	kr.Pool.Free()
}
