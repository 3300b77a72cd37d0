package acpi

import (
	"vmboot/kernel"
	"vmboot/kernel/mm"
	"vmboot/kernel/mm/kmem"
	"vmboot/kernel/mm/vmm"
)

var (
	// windowCursor hands out the virtual ranges used for physical windows.
	windowCursor = vmm.NewRegionCursor(vmm.PhysWindowRegionStart, vmm.PhysWindowRegionEnd)
)

// Handler is implemented by objects that can make an arbitrary physical
// memory range temporarily readable.
type Handler interface {
	// MapPhysicalRegion maps [physAddr, physAddr+size) and returns a
	// handle describing the window.
	MapPhysicalRegion(physAddr, size uintptr) (PhysicalMapping, *kernel.Error)

	// UnmapPhysicalRegion tears down a window returned by
	// MapPhysicalRegion.
	UnmapPhysicalRegion(mapping PhysicalMapping) *kernel.Error
}

// PhysicalMapping describes a window onto physical memory.
type PhysicalMapping struct {
	physStart    uintptr
	virtStart    uintptr
	regionLength uintptr
	pageCount    uintptr
}

// PhysicalStart returns the physical address the window was requested for.
func (m PhysicalMapping) PhysicalStart() uintptr { return m.physStart }

// VirtualStart returns the virtual address that corresponds to
// PhysicalStart. It has the same offset within its page as PhysicalStart.
func (m PhysicalMapping) VirtualStart() uintptr { return m.virtStart }

// RegionLength returns the requested window length.
func (m PhysicalMapping) RegionLength() uintptr { return m.regionLength }

// PageCount returns the number of pages that back the window.
func (m PhysicalMapping) PageCount() uintptr { return m.pageCount }

// MappedLength returns the number of bytes covered by the backing pages.
func (m PhysicalMapping) MappedLength() uintptr { return m.pageCount << mm.PageShift }

// RegionMapper implements Handler by mapping physical memory into a dedicated
// part of the kernel address space. Virtual ranges are never reused.
type RegionMapper struct {
	ctx kmem.Accessor
}

// NewRegionMapper returns a RegionMapper that edits page tables through ctx.
func NewRegionMapper(ctx kmem.Accessor) *RegionMapper {
	return &RegionMapper{ctx: ctx}
}

// MapPhysicalRegion maps the frames covering [physAddr, physAddr+size) to a
// fresh virtual range. A zero size is treated as a single byte.
func (rm *RegionMapper) MapPhysicalRegion(physAddr, size uintptr) (PhysicalMapping, *kernel.Error) {
	startFrame, pageCount := frameRange(physAddr, size)

	startPage, err := windowCursor.Reserve(pageCount)
	if err != nil {
		return PhysicalMapping{}, err
	}

	err = rm.ctx.WithMapperAndAllocator(func(m *vmm.Mapper, alloc mm.FrameAllocator) *kernel.Error {
		return m.MapRegion(startPage, startFrame, pageCount, vmm.FlagPresent|vmm.FlagRW, alloc)
	})
	if err != nil {
		return PhysicalMapping{}, err
	}

	return PhysicalMapping{
		physStart:    physAddr,
		virtStart:    startPage.Address() + vmm.PageOffset(physAddr),
		regionLength: size,
		pageCount:    pageCount,
	}, nil
}

// UnmapPhysicalRegion unmaps every page of the window and flushes the
// corresponding TLB entries. The virtual range is not returned to the cursor.
func (rm *RegionMapper) UnmapPhysicalRegion(mapping PhysicalMapping) *kernel.Error {
	startPage, pageCount := pageRange(mapping.virtStart, mapping.regionLength)

	return rm.ctx.WithMapperAndAllocator(func(m *vmm.Mapper, _ mm.FrameAllocator) *kernel.Error {
		for page := startPage; page < startPage+mm.Page(pageCount); page++ {
			_, flush, err := m.Unmap(page)
			if err != nil {
				return err
			}
			flush.Flush()
		}

		return nil
	})
}

// frameRange returns the first frame and the number of frames spanned by
// [physAddr, physAddr+size).
func frameRange(physAddr, size uintptr) (mm.Frame, uintptr) {
	if size == 0 {
		size = 1
	}

	startFrame := mm.FrameFromAddress(physAddr)
	endFrame := mm.FrameFromAddress(physAddr + size - 1)
	return startFrame, uintptr(endFrame-startFrame) + 1
}

func pageRange(virtAddr, size uintptr) (mm.Page, uintptr) {
	startFrame, count := frameRange(virtAddr, size)
	return mm.Page(startFrame), count
}
