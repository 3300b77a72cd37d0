// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"vmboot/kernel"
	"vmboot/kernel/boot"
	"vmboot/kernel/kfmt"
	"vmboot/kernel/mm"
)

// BootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator hands out frames from the usable regions of the boot memory
// map in the order the regions are listed, tracking its position with a
// persistent (region, frame) cursor so each call only resumes where the
// previous one stopped.
//
// Due to the way that the allocator works, it is not possible to free
// allocated frames.
type BootMemAllocator struct {
	memMap boot.MemoryMap

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// regionIndex is the position in the memory map of the region that
	// nextFrame belongs to.
	regionIndex int

	// nextFrame is the frame that will be returned by the next call to
	// AllocFrame if it still lies within the current region.
	nextFrame mm.Frame
}

// NewBootMemAllocator returns an allocator that serves frames from the usable
// regions of memMap.
//
// The caller must guarantee that every region marked as boot.RegionUsable is
// really unused; this is not checked.
func NewBootMemAllocator(memMap boot.MemoryMap) *BootMemAllocator {
	return &BootMemAllocator{memMap: memMap}
}

// AllocFrame reserves the next available free frame. It returns
// mm.ErrFrameAllocationFailed once all usable regions have been exhausted.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	var (
		frame       = mm.InvalidFrame
		regionIndex = -1
	)

	alloc.memMap.VisitRegions(func(region *boot.MemoryRegion) bool {
		regionIndex++

		// Skip regions we are done with and regions we may not use
		if regionIndex < alloc.regionIndex || region.Kind != boot.RegionUsable {
			return true
		}

		startFrame, endFrame := usableFrameRange(region)
		if startFrame >= endFrame {
			return true
		}

		// Moving to a new region resets the cursor to its first frame
		if regionIndex > alloc.regionIndex || alloc.nextFrame < startFrame {
			alloc.regionIndex = regionIndex
			alloc.nextFrame = startFrame
		}

		if alloc.nextFrame >= endFrame {
			return true
		}

		frame = alloc.nextFrame
		alloc.nextFrame++
		return false
	})

	if !frame.Valid() {
		return mm.InvalidFrame, mm.ErrFrameAllocationFailed
	}

	alloc.allocCount++
	return frame, nil
}

// PrintMemoryMap scans the memory region information provided by the boot
// environment and prints out the system's memory map.
func (alloc *BootMemAllocator) PrintMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mm.Size
	alloc.memMap.VisitRegions(func(region *boot.MemoryRegion) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.Start, region.End, region.Len(), region.Kind.String())

		if region.Kind == boot.RegionUsable {
			totalFree += mm.Size(region.Len())
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mm.Kb))
}

// usableFrameRange returns the frames [start, end) fully contained in region.
// Reported addresses may not be page-aligned; the start is rounded up and the
// end rounded down so a partially usable frame is never handed out.
func usableFrameRange(region *boot.MemoryRegion) (mm.Frame, mm.Frame) {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	startFrame := mm.Frame(((region.Start + pageSizeMinus1) & ^pageSizeMinus1) >> mm.PageShift)
	endFrame := mm.Frame((region.End & ^pageSizeMinus1) >> mm.PageShift)
	return startFrame, endFrame
}
