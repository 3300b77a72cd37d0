// Package heap maps the fixed kernel heap range and hands it to an external
// allocator implementation.
package heap

import (
	"vmboot/kernel"
	"vmboot/kernel/kfmt"
	"vmboot/kernel/mm"
	"vmboot/kernel/mm/kmem"
	"vmboot/kernel/mm/vmm"
)

// Backend is implemented by general-purpose allocators that can manage a
// pre-mapped block of memory.
type Backend interface {
	// Init hands the allocator the virtual range [start, start+size).
	Init(start, size uintptr)
}

// Region describes the mapped heap range.
type Region struct {
	Start uintptr
	Size  mm.Size
}

// End returns the first address past the heap.
func (r Region) End() uintptr {
	return r.Start + uintptr(r.Size)
}

// Init backs the kernel heap range with freshly allocated frames and passes
// it to backend. A nil backend leaves the range mapped but unmanaged. If a
// frame allocation fails the pages mapped so far stay mapped and backend is
// not initialized.
func Init(ctx kmem.Accessor, backend Backend) (Region, *kernel.Error) {
	region := Region{Start: vmm.HeapStart, Size: vmm.HeapSize}

	err := ctx.WithMapperAndAllocator(func(m *vmm.Mapper, alloc mm.FrameAllocator) *kernel.Error {
		return m.MapAllocated(mm.PageFromAddress(region.Start), region.Size.Pages(), vmm.FlagPresent|vmm.FlagRW, alloc)
	})
	if err != nil {
		return Region{}, err
	}

	if backend != nil {
		backend.Init(region.Start, uintptr(region.Size))
	}

	kfmt.Printf("[heap] mapped %dKb at 0x%16x\n", uint64(region.Size/mm.Kb), region.Start)
	return region, nil
}
