package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
)

// WordBytes is the size of every scratch element: real_t and int_t are both
// 8 bytes
const WordBytes = 8

// ScratchPool is one device allocation reused across kernel launches. It
// lives as long as its Runner and is never freed mid-pipeline.
type ScratchPool struct {
	Mem    *gocca.OCCAMemory
	Bytes  int64
	device *gocca.OCCADevice
}

// NewScratchPool allocates bytes (rounded down to whole words) on device. A
// pool of zero bytes holds no memory and sends every request to a fresh
// allocation.
func NewScratchPool(device *gocca.OCCADevice, bytes int64) *ScratchPool {
	bytes -= bytes % WordBytes
	p := &ScratchPool{device: device}
	if bytes > 0 {
		p.Mem = device.Malloc(bytes, nil, nil)
		p.Bytes = bytes
	}
	return p
}

func (p *ScratchPool) Free() {
	if p.Mem != nil {
		p.Mem.Free()
		p.Mem = nil
	}
	p.Bytes = 0
}

// DeviceBuffer is a word range either inside the scratch pool or in its own
// fresh allocation. Kernels receive it as a (Mem, WordOffset) pair.
type DeviceBuffer struct {
	Mem    *gocca.OCCAMemory
	Offset int64 // bytes from the start of Mem
	Bytes  int64
	Fresh  bool
}

func (b DeviceBuffer) WordOffset() int64 { return b.Offset / WordBytes }

// Args returns the kernel arguments addressing b
func (b DeviceBuffer) Args() []interface{} {
	return []interface{}{b.Mem, b.WordOffset()}
}

// ScratchAllocator bump-allocates from the pool for one launch
type ScratchAllocator struct {
	device     *gocca.OCCADevice
	pool       *ScratchPool
	used       int64
	fresh      []*gocca.OCCAMemory
	freshBytes int64
}

// Begin starts a new allocation round at the bottom of the pool. Buffers
// from an earlier round must no longer be in use.
func (p *ScratchPool) Begin() *ScratchAllocator {
	return &ScratchAllocator{device: p.device, pool: p}
}

// Alloc reserves nWords words. The pool serves the request only when it is
// strictly smaller than the remaining capacity; otherwise a fresh device
// allocation is made and tracked for Release.
func (a *ScratchAllocator) Alloc(nWords int64) DeviceBuffer {
	nWords = max(nWords, 1)
	bytes := nWords * WordBytes
	if a.pool.Mem != nil && bytes < a.pool.Bytes-a.used {
		b := DeviceBuffer{Mem: a.pool.Mem, Offset: a.used, Bytes: bytes}
		a.used += bytes
		return b
	}
	mem := a.device.Malloc(bytes, nil, nil)
	a.fresh = append(a.fresh, mem)
	a.freshBytes += bytes
	return DeviceBuffer{Mem: mem, Bytes: bytes, Fresh: true}
}

// Float64s allocates a buffer and fills it from host
func (a *ScratchAllocator) Float64s(host []float64) DeviceBuffer {
	b := a.Alloc(int64(len(host)))
	if len(host) > 0 {
		b.Mem.CopyFromWithOffset(unsafe.Pointer(&host[0]), int64(len(host))*WordBytes, b.Offset)
	}
	return b
}

// Int64s allocates a buffer and fills it from host
func (a *ScratchAllocator) Int64s(host []int64) DeviceBuffer {
	b := a.Alloc(int64(len(host)))
	if len(host) > 0 {
		b.Mem.CopyFromWithOffset(unsafe.Pointer(&host[0]), int64(len(host))*WordBytes, b.Offset)
	}
	return b
}

// ZeroFloat64s allocates n words and clears them
func (a *ScratchAllocator) ZeroFloat64s(n int) DeviceBuffer {
	return a.Float64s(make([]float64, n))
}

// CopyBackFloat64s copies len(host) words of b to host
func (a *ScratchAllocator) CopyBackFloat64s(b DeviceBuffer, host []float64) error {
	bytes := int64(len(host)) * WordBytes
	if bytes > b.Bytes {
		return fmt.Errorf("copy back of %d bytes from a %d byte buffer", bytes, b.Bytes)
	}
	if len(host) > 0 {
		b.Mem.CopyToWithOffset(unsafe.Pointer(&host[0]), bytes, b.Offset)
	}
	return nil
}

// FreshBytes is the total size of the fallback allocations of this round
func (a *ScratchAllocator) FreshBytes() int64 { return a.freshBytes }

// PoolBytes is the part of the pool handed out in this round
func (a *ScratchAllocator) PoolBytes() int64 { return a.used }

// Release frees the fresh allocations. The pool itself stays allocated.
func (a *ScratchAllocator) Release() {
	for _, mem := range a.fresh {
		mem.Free()
	}
	a.fresh = nil
	a.used = 0
}
