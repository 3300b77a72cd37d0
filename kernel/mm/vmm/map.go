package vmm

import (
	"vmboot/kernel"
	"vmboot/kernel/mm"
)

// PendingFlush is returned by every operation that changes a page table entry.
// Until Flush is called the TLB may still hold the previous translation for
// the page. Callers that batch several changes, or that know the page was
// never cached, may call Ignore instead.
type PendingFlush struct {
	page   mm.Page
	active bool
}

// Page returns the page whose translation changed.
func (f PendingFlush) Page() mm.Page {
	return f.page
}

// Flush invalidates the TLB entry for the modified page.
func (f PendingFlush) Flush() {
	if f.active {
		flushTLBEntryFn(f.page.Address())
	}
}

// Ignore discards the flush obligation.
func (f PendingFlush) Ignore() {}

// MapTo establishes a mapping between a virtual page and a physical memory
// frame in the active page directory table. Missing intermediate tables are
// allocated from alloc, zeroed and linked in as present and writable.
//
// MapTo returns ErrPageAlreadyMapped if page already has a present mapping and
// mm.ErrFrameAllocationFailed if a table frame could not be obtained. Tables
// allocated before a failure remain linked in.
func (m *Mapper) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) (PendingFlush, *kernel.Error) {
	var err *kernel.Error

	m.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = ErrPageAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents before linking
		// it in.
		if !pte.HasFlags(FlagPresent) {
			newTableFrame, allocErr := alloc.AllocFrame()
			if allocErr != nil {
				err = mm.ErrFrameAllocationFailed
				return false
			}

			kernel.Memset(m.physOffset+newTableFrame.Address(), 0, mm.PageSize)

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW | (flags & FlagUserAccessible))
			return true
		}

		if mayBeHugePage(pteLevel) && pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	if err != nil {
		return PendingFlush{}, err
	}

	return PendingFlush{page: page, active: m.active}, nil
}

// Unmap removes the mapping for page and returns the frame it pointed to. The
// intermediate tables are left in place.
func (m *Mapper) Unmap(page mm.Page) (mm.Frame, PendingFlush, *kernel.Error) {
	var (
		err   *kernel.Error
		frame = mm.InvalidFrame
	)

	m.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrPageNotMapped
			return false
		}

		if pteLevel == pageLevels-1 {
			frame = pte.Frame()
			*pte = 0
			return true
		}

		if mayBeHugePage(pteLevel) && pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	if err != nil {
		return mm.InvalidFrame, PendingFlush{}, err
	}

	return frame, PendingFlush{page: page, active: m.active}, nil
}

// MapRegion maps pageCount consecutive pages starting at startPage to
// pageCount consecutive frames starting at startFrame and flushes each
// modified TLB entry. Mappings established before a failure are kept.
func (m *Mapper) MapRegion(startPage mm.Page, startFrame mm.Frame, pageCount uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	for page, frame := startPage, startFrame; pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		flush, err := m.MapTo(page, frame, flags, alloc)
		if err != nil {
			return err
		}
		flush.Flush()
	}

	return nil
}

// MapAllocated backs pageCount consecutive pages starting at startPage with
// freshly allocated frames. Mappings established before a failure are kept.
func (m *Mapper) MapAllocated(startPage mm.Page, pageCount uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	for page := startPage; pageCount > 0; pageCount, page = pageCount-1, page+1 {
		frame, err := alloc.AllocFrame()
		if err != nil {
			return mm.ErrFrameAllocationFailed
		}

		flush, err := m.MapTo(page, frame, flags, alloc)
		if err != nil {
			return err
		}
		flush.Flush()
	}

	return nil
}
