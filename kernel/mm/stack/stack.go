// Package stack allocates kernel stacks that are separated from whatever lies
// below them by an unmapped guard page.
package stack

import (
	"vmboot/kernel"
	"vmboot/kernel/mm"
	"vmboot/kernel/mm/vmm"
)

var (
	errStackTooLarge = &kernel.Error{Module: "stack", Message: "requested stack size does not fit in the stack region"}

	// cursor hands out stack ranges. Each allocation consumes one extra
	// page for the guard.
	cursor = vmm.NewRegionCursor(vmm.StackRegionStart, vmm.StackRegionEnd)
)

// Bounds describes the mapped part of a stack. Stacks grow down so End is the
// initial stack pointer.
type Bounds struct {
	Start uintptr
	End   uintptr
}

// Guard returns the unmapped page directly below the stack.
func (b Bounds) Guard() mm.Page {
	return mm.PageFromAddress(b.Start) - 1
}

// Size returns the usable stack size.
func (b Bounds) Size() mm.Size {
	return mm.Size(b.End - b.Start)
}

// Alloc reserves sizeInPages+1 pages of virtual address space, leaves the
// lowest one unmapped and backs the rest with new frames. Pages mapped before
// a failure stay mapped and their virtual range is not reused.
func Alloc(sizeInPages uintptr, m *vmm.Mapper, alloc mm.FrameAllocator) (Bounds, *kernel.Error) {
	if sizeInPages+1 == 0 {
		return Bounds{}, errStackTooLarge
	}

	guardPage, err := cursor.Reserve(sizeInPages + 1)
	if err != nil {
		return Bounds{}, err
	}

	startPage := guardPage + 1
	if err = m.MapAllocated(startPage, sizeInPages, vmm.FlagPresent|vmm.FlagRW, alloc); err != nil {
		return Bounds{}, err
	}

	return Bounds{
		Start: startPage.Address(),
		End:   startPage.Address() + sizeInPages<<mm.PageShift,
	}, nil
}
