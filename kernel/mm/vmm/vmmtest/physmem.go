// Package vmmtest provides a Go-memory stand-in for physical RAM so that code
// built on vmm.Mapper can be tested outside the kernel.
package vmmtest

import (
	"runtime"
	"testing"
	"unsafe"

	"vmboot/kernel"
	"vmboot/kernel/mm"
	"vmboot/kernel/mm/vmm"
)

// PhysMem backs a fixed number of page-aligned frames with a Go buffer. The
// aligned buffer base acts as the physical memory offset: frame N lives at
// Offset()+N*PageSize. Frame 0 holds an empty top-level page table.
type PhysMem struct {
	buf      []byte
	offset   uintptr
	frames   int
	nextFree int
}

// New allocates a PhysMem with the requested number of frames. The buffer is
// kept alive until tb completes.
func New(tb testing.TB, frames int) *PhysMem {
	buf := make([]byte, (frames+1)*int(mm.PageSize))
	tb.Cleanup(func() { runtime.KeepAlive(buf) })

	return &PhysMem{
		buf:      buf,
		offset:   (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) &^ (mm.PageSize - 1),
		frames:   frames,
		nextFree: 1,
	}
}

// Offset returns the virtual address of physical address 0.
func (p *PhysMem) Offset() uintptr {
	return p.offset
}

// Mapper returns a vmm.Mapper for the top-level table in frame 0.
func (p *PhysMem) Mapper() *vmm.Mapper {
	return vmm.NewMapperAt(mm.Frame(0), p.offset)
}

// AllocFrame implements mm.FrameAllocator. Frames are handed out in order
// starting at frame 1 and are filled with junk.
func (p *PhysMem) AllocFrame() (mm.Frame, *kernel.Error) {
	if p.nextFree >= p.frames {
		return mm.InvalidFrame, mm.ErrFrameAllocationFailed
	}

	frame := mm.Frame(p.nextFree)
	p.nextFree++
	kernel.Memset(p.offset+frame.Address(), 0xfe, mm.PageSize)
	return frame, nil
}

// Allocated returns the number of frames handed out so far.
func (p *PhysMem) Allocated() int {
	return p.nextFree - 1
}

// Frame returns the contents of the given frame.
func (p *PhysMem) Frame(frame mm.Frame) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p.offset+frame.Address())), mm.PageSize)
}

// WithMapperAndAllocator runs fn against Mapper() and p without any locking
// or interrupt control.
func (p *PhysMem) WithMapperAndAllocator(fn func(*vmm.Mapper, mm.FrameAllocator) *kernel.Error) *kernel.Error {
	return fn(p.Mapper(), p)
}
