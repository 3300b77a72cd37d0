package vmm

import "vmboot/kernel"

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrAddressNotPresent if the virtual address is not
// mapped. Encountering a huge page mapping is fatal.
func (m *Mapper) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err   *kernel.Error
		entry *pageTableEntry
	)

	m.walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			entry = nil
			err = ErrAddressNotPresent
			return false
		}

		if mayBeHugePage(pteLevel) && pte.HasFlags(FlagHugePage) {
			entry = nil
			err = errNoHugePageSupport
			panicFn(err)
			return false
		}

		entry = pte
		return true
	})

	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return entry.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}
