// Package kmem owns the kernel's single page table mapper and physical frame
// allocator. Subsystems receive the Context returned by Init and reach both
// collaborators exclusively through WithMapperAndAllocator.
package kmem

import (
	"sync/atomic"

	"vmboot/kernel"
	"vmboot/kernel/boot"
	"vmboot/kernel/cpu"
	"vmboot/kernel/mm"
	"vmboot/kernel/mm/pmm"
	"vmboot/kernel/mm/vmm"
	"vmboot/kernel/sync"
)

var (
	// The following functions are mocked by tests.
	newMapperFn         = vmm.NewMapper
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts

	// initialized is flipped by the first successful call to Init.
	initialized uint32

	// ErrDoubleInit is returned by Init when a memory context already
	// exists.
	ErrDoubleInit = &kernel.Error{Module: "kmem", Message: "memory context already initialized"}
)

// Accessor is implemented by types that grant scoped, exclusive access to the
// page table mapper and the frame allocator. Subsystems depend on Accessor
// rather than on Context.
type Accessor interface {
	WithMapperAndAllocator(fn func(*vmm.Mapper, mm.FrameAllocator) *kernel.Error) *kernel.Error
}

// Context bundles the page table mapper and the frame allocator. Each is
// guarded by its own lock; both locks are always taken together in the same
// order.
type Context struct {
	mapperLock sync.Spinlock
	allocLock  sync.Spinlock

	mapper     *vmm.Mapper
	frameAlloc mm.FrameAllocator
}

// NewContext returns a Context that wraps the supplied mapper and allocator.
func NewContext(mapper *vmm.Mapper, frameAlloc mm.FrameAllocator) *Context {
	return &Context{
		mapper:     mapper,
		frameAlloc: frameAlloc,
	}
}

// Init sets up the physical frame allocator using the boot memory map, builds
// a mapper for the active page table and returns the context that owns them.
// Init may only succeed once; subsequent calls return ErrDoubleInit.
func Init(info *boot.Info) (*Context, *kernel.Error) {
	if !atomic.CompareAndSwapUint32(&initialized, 0, 1) {
		return nil, ErrDoubleInit
	}

	frameAlloc := pmm.NewBootMemAllocator(info.MemoryMap)
	frameAlloc.PrintMemoryMap()

	return NewContext(newMapperFn(info.PhysicalMemoryOffset), frameAlloc), nil
}

// WithMapperAndAllocator runs fn with exclusive access to the mapper and the
// frame allocator. Interrupts are disabled for the duration of the call and
// their previous state is restored afterwards, even if fn panics.
//
// fn must not call WithMapperAndAllocator on the same context; doing so
// deadlocks.
func (c *Context) WithMapperAndAllocator(fn func(*vmm.Mapper, mm.FrameAllocator) *kernel.Error) *kernel.Error {
	if interruptsEnabledFn() {
		disableInterruptsFn()
		defer enableInterruptsFn()
	}

	c.mapperLock.Acquire()
	defer c.mapperLock.Release()

	c.allocLock.Acquire()
	defer c.allocLock.Release()

	return fn(c.mapper, c.frameAlloc)
}
