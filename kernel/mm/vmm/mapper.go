// Package vmm manages the kernel's virtual address space: it walks and
// extends the active 4-level page table, translates virtual addresses and
// reserves virtual ranges.
package vmm

import (
	"unsafe"

	"vmboot/kernel"
	"vmboot/kernel/cpu"
	"vmboot/kernel/kfmt"
	"vmboot/kernel/mm"
)

var (
	// activePDTFn is used by tests to override calls to cpu.ActivePDT
	// which will cause a fault if called in user-mode.
	activePDTFn = cpu.ActivePDT

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// panicFn is used by tests to intercept fatal errors.
	panicFn = kfmt.Panic

	// ErrAddressNotPresent is returned by Translate when the virtual
	// address is not backed by a physical frame. It is an ordinary
	// lookup miss.
	ErrAddressNotPresent = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrPageAlreadyMapped is returned when trying to map a page that
	// already has a present mapping.
	ErrPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}

	// ErrPageNotMapped is returned when trying to unmap a page that has no
	// mapping.
	ErrPageNotMapped = &kernel.Error{Module: "vmm", Message: "page is not mapped"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
)

// Mapper provides access to the active page directory table. The boot
// environment maps the entire physical address space at a fixed virtual
// offset; Mapper uses that window to reach every page table it needs to read
// or modify, including tables it allocates itself.
type Mapper struct {
	// pdtFrame is the physical frame of the top-level (P4) table.
	pdtFrame mm.Frame

	// physOffset is the virtual address where physical address 0 is
	// mapped.
	physOffset uintptr

	// active is set when pdtFrame is the table loaded in CR3.
	active bool
}

// NewMapper reads the currently active top-level page table from CR3 and
// returns a Mapper for it.
//
// The caller must guarantee that the complete physical memory is mapped at
// physMemOffset. Creating more than one Mapper for the active table results in
// two unsynchronized writers; kmem.Init is responsible for calling this once.
func NewMapper(physMemOffset uintptr) *Mapper {
	m := NewMapperAt(mm.FrameFromAddress(activePDTFn()&ptePhysPageMask), physMemOffset)
	m.active = true
	return m
}

// NewMapperAt returns a Mapper for the top-level table stored in pdtFrame.
// The table is treated as inactive: the TLB cannot hold any of its
// translations so flushing a PendingFlush returned by this Mapper is a no-op.
func NewMapperAt(pdtFrame mm.Frame, physMemOffset uintptr) *Mapper {
	return &Mapper{
		pdtFrame:   pdtFrame,
		physOffset: physMemOffset,
	}
}

// tableAt returns the page table stored in the given physical frame.
func (m *Mapper) tableAt(frame mm.Frame) *pageTable {
	return (*pageTable)(unsafe.Pointer(m.physOffset + frame.Address()))
}
