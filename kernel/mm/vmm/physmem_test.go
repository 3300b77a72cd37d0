package vmm

import (
	"runtime"
	"testing"
	"unsafe"

	"vmboot/kernel"
	"vmboot/kernel/mm"
)

// fakePhysMem backs a small number of page-aligned frames with Go memory. The
// aligned base of the buffer plays the role of the physical memory offset so
// frame N lives at offset + N*PageSize. Frame 0 holds the top-level table.
type fakePhysMem struct {
	buf      []byte
	offset   uintptr
	frames   int
	nextFree int
}

func newFakePhysMem(t *testing.T, frames int) *fakePhysMem {
	buf := make([]byte, (frames+1)*int(mm.PageSize))
	t.Cleanup(func() { runtime.KeepAlive(buf) })

	return &fakePhysMem{
		buf:      buf,
		offset:   (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) &^ (mm.PageSize - 1),
		frames:   frames,
		nextFree: 1,
	}
}

// AllocFrame hands out frames 1 to frames-1. Each frame is filled with junk
// so tests can tell whether new page tables get cleared.
func (p *fakePhysMem) AllocFrame() (mm.Frame, *kernel.Error) {
	if p.nextFree >= p.frames {
		return mm.InvalidFrame, mm.ErrFrameAllocationFailed
	}

	frame := mm.Frame(p.nextFree)
	p.nextFree++
	kernel.Memset(p.offset+frame.Address(), 0xfe, mm.PageSize)
	return frame, nil
}

func (p *fakePhysMem) table(frame mm.Frame) *pageTable {
	return (*pageTable)(unsafe.Pointer(p.offset + frame.Address()))
}

// entryFor returns the entry at the requested level for virtAddr, following
// present entries from the top-level table. It returns nil if an upper level
// entry is not present.
func (p *fakePhysMem) entryFor(virtAddr uintptr, level uint8) *pageTableEntry {
	tableFrame := mm.Frame(0)
	for l := uint8(0); ; l++ {
		index := (virtAddr >> pageLevelShifts[l]) & ((1 << pageLevelBits[l]) - 1)
		pte := &p.table(tableFrame)[index]
		if l == level {
			return pte
		}
		if !pte.HasFlags(FlagPresent) {
			return nil
		}
		tableFrame = pte.Frame()
	}
}

// newTestMapper returns a Mapper whose top-level table lives in frame 0 of a
// fresh fakePhysMem. The mocked CR3 value carries cache control bits that
// NewMapper must strip.
func newTestMapper(t *testing.T, frames int) (*Mapper, *fakePhysMem) {
	defer func(origActivePDT func() uintptr) {
		activePDTFn = origActivePDT
	}(activePDTFn)

	mem := newFakePhysMem(t, frames)
	activePDTFn = func() uintptr { return 0x18 }

	return NewMapper(mem.offset), mem
}
