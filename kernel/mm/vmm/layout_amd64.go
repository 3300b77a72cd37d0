package vmm

import "vmboot/kernel/mm"

// Kernel virtual address space layout. The heap range and the two cursor
// regions never overlap, so none of the virtual range generators can hand out
// an address owned by another.
const (
	// HeapStart is the first virtual address of the kernel heap.
	HeapStart = uintptr(0x_4444_4444_0000)

	// HeapSize is the size of the kernel heap.
	HeapSize = 100 * mm.Kb

	// StackRegionStart is where the guarded stack cursor begins.
	StackRegionStart = uintptr(0x_5555_5555_0000)

	// StackRegionEnd bounds the guarded stack cursor.
	StackRegionEnd = PhysWindowRegionStart

	// PhysWindowRegionStart is where the physical window cursor used for
	// firmware table access begins.
	PhysWindowRegionStart = uintptr(0x_6969_5555_0000)

	// PhysWindowRegionEnd bounds the physical window cursor. It stays
	// within the lower canonical half of the address space.
	PhysWindowRegionEnd = uintptr(0x_7fff_ffff_0000)
)
