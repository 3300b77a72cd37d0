package vmm

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments.  If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the top-level table. It calls the supplied walkFn with the page table entry
// that corresponds to each page table level. If walkFn returns false then the
// walk is aborted.
//
// Each table is reached through the physical memory window, so walkFn may
// install a frame into a non-present entry and the walk will descend into it.
func (m *Mapper) walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level      uint8
		tableFrame = m.pdtFrame
		entryIndex uintptr
		pte        *pageTableEntry
	)

	for level = 0; level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte = &m.tableAt(tableFrame)[entryIndex]

		if !walkFn(level, pte) {
			return
		}

		tableFrame = pte.Frame()
	}
}
