package vmm

import (
	"sync/atomic"

	"vmboot/kernel"
	"vmboot/kernel/mm"
)

var errReserveNoSpace = &kernel.Error{Module: "region_cursor", Message: "remaining virtual address space not large enough to satisfy reservation request"}

// RegionCursor hands out page-aligned virtual ranges from a fixed window in
// strictly increasing order. Ranges are never returned to the cursor.
// Reserve may be called concurrently.
type RegionCursor struct {
	next  uint64
	limit uint64
}

// NewRegionCursor returns a cursor over [base, limit). Both bounds are
// truncated to a page boundary.
func NewRegionCursor(base, limit uintptr) *RegionCursor {
	return &RegionCursor{
		next:  uint64(base &^ (mm.PageSize - 1)),
		limit: uint64(limit &^ (mm.PageSize - 1)),
	}
}

// Reserve advances the cursor by pageCount pages and returns the first page
// of the reserved range.
func (c *RegionCursor) Reserve(pageCount uintptr) (mm.Page, *kernel.Error) {
	if uint64(pageCount) > c.limit>>mm.PageShift {
		return 0, errReserveNoSpace
	}

	size := uint64(pageCount) << mm.PageShift
	for {
		cur := atomic.LoadUint64(&c.next)
		if cur > c.limit || c.limit-cur < size {
			return 0, errReserveNoSpace
		}

		if atomic.CompareAndSwapUint64(&c.next, cur, cur+size) {
			return mm.PageFromAddress(uintptr(cur)), nil
		}
	}
}

// Next returns the address the next reservation will start at.
func (c *RegionCursor) Next() uintptr {
	return uintptr(atomic.LoadUint64(&c.next))
}
