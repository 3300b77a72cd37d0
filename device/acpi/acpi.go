// Package acpi locates the ACPI firmware tables by opening temporary windows
// onto physical memory.
package acpi

import (
	"io"
	"unsafe"

	"vmboot/device/acpi/table"
	"vmboot/kernel"
	"vmboot/kernel/kfmt"
)

const (
	acpiRev1 uint8 = 0
)

var (
	errMissingRSDP           = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}
	errTableChecksumMismatch = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table header"}
	errTableTooShort         = &kernel.Error{Module: "acpi", Message: "ACPI table length is smaller than its header"}

	// RDSP must be located in the physical memory region 0xe0000 to 0xfffff
	rsdpLocationLow uintptr = 0xe0000
	rsdpLocationHi  uintptr = 0xfffff
	rsdpAlignment   uintptr = 16

	rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}
)

// TableInfo describes a table that was found and passed its checksum.
type TableInfo struct {
	Signature [4]byte
	PhysAddr  uintptr
	Length    uint32
	Revision  uint8
	OEMID     [6]byte
}

// Tables lists the tables referenced by the root system descriptor table.
type Tables struct {
	// RootAddr is the physical address of the RSDT or XSDT.
	RootAddr uintptr

	// UseXSDT is set when RootAddr points to an XSDT with 8-byte entries.
	UseXSDT bool

	entries []TableInfo
}

// Lookup returns the first table with the given signature.
func (t *Tables) Lookup(signature string) (TableInfo, bool) {
	for _, info := range t.entries {
		if string(info.Signature[:]) == signature {
			return info, true
		}
	}

	return TableInfo{}, false
}

// Count returns the number of valid tables.
func (t *Tables) Count() int {
	return len(t.entries)
}

// LocateTables finds the RSDP in the BIOS area, walks the RSDT or XSDT it
// points to and records every table with a valid checksum. Tables that fail
// the checksum are logged to w and skipped. Every window opened through h is
// closed before LocateTables returns.
func LocateTables(h Handler, w io.Writer) (*Tables, *kernel.Error) {
	rootAddr, useXSDT, err := locateRSDT(h)
	if err != nil {
		return nil, err
	}

	tables := &Tables{RootAddr: rootAddr, UseXSDT: useXSDT}
	if err = tables.enumerate(h, w); err != nil {
		return nil, err
	}

	tables.printTableInfo(w)
	return tables, nil
}

func (t *Tables) enumerate(h Handler, w io.Writer) *kernel.Error {
	rootHeader, rootMapping, err := mapACPITable(h, t.RootAddr)
	if err != nil {
		return err
	}
	defer func() { _ = h.UnmapPhysicalRegion(rootMapping) }()

	var (
		payloadLen = uintptr(rootHeader.Length) - table.SizeofSDTHeader
		entryPtr   = rootMapping.VirtualStart() + table.SizeofSDTHeader
		entrySize  = uintptr(4)
		tableAddr  uintptr
	)

	// RSDT uses 4-byte long pointers whereas the XSDT uses 8-byte long.
	if t.UseXSDT {
		entrySize = 8
	}

	for ; payloadLen >= entrySize; payloadLen, entryPtr = payloadLen-entrySize, entryPtr+entrySize {
		switch entrySize {
		case 8:
			tableAddr = uintptr(*(*uint64)(unsafe.Pointer(entryPtr)))
		default:
			tableAddr = uintptr(*(*uint32)(unsafe.Pointer(entryPtr)))
		}

		header, mapping, err := mapACPITable(h, tableAddr)
		switch err {
		case nil:
		case errTableChecksumMismatch, errTableTooShort:
			kfmt.Fprintf(w, "%s at 0x%16x %6x [%s; skipping]\n",
				header.Signature[:],
				tableAddr,
				header.Length,
				err.Message,
			)
			continue
		default:
			return err
		}

		t.entries = append(t.entries, TableInfo{
			Signature: header.Signature,
			PhysAddr:  tableAddr,
			Length:    header.Length,
			Revision:  header.Revision,
			OEMID:     header.OEMID,
		})

		if err = h.UnmapPhysicalRegion(mapping); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tables) printTableInfo(w io.Writer) {
	for _, info := range t.entries {
		kfmt.Fprintf(w, "%s at 0x%16x %6x (%6s)\n",
			info.Signature[:],
			info.PhysAddr,
			info.Length,
			info.OEMID[:],
		)
	}
}

// mapACPITable maps the header of the table at tableAddr, uses its length
// field to map the full table and verifies the checksum. On success the
// caller owns the returned mapping. On failure no window is left open; a copy
// of the header is still returned when the checksum does not match.
func mapACPITable(h Handler, tableAddr uintptr) (table.SDTHeader, PhysicalMapping, *kernel.Error) {
	headerMapping, err := h.MapPhysicalRegion(tableAddr, table.SizeofSDTHeader)
	if err != nil {
		return table.SDTHeader{}, PhysicalMapping{}, err
	}

	header := *(*table.SDTHeader)(unsafe.Pointer(headerMapping.VirtualStart()))
	if err = h.UnmapPhysicalRegion(headerMapping); err != nil {
		return header, PhysicalMapping{}, err
	}

	if header.Length < table.SizeofSDTHeader {
		return header, PhysicalMapping{}, errTableTooShort
	}

	// Expand mapping to cover the table contents
	mapping, err := h.MapPhysicalRegion(tableAddr, uintptr(header.Length))
	if err != nil {
		return header, PhysicalMapping{}, err
	}

	if !validTable(mapping.VirtualStart(), header.Length) {
		_ = h.UnmapPhysicalRegion(mapping)
		return header, PhysicalMapping{}, errTableChecksumMismatch
	}

	return header, mapping, nil
}

// locateRSDT scans the memory region [rsdpLocationLow, rsdpLocationHi] looking
// for the signature of the root system descriptor pointer (RSDP). If the RSDP
// is found and is valid, locateRSDT returns the physical address of the root
// system descriptor table (RSDT) or the extended system descriptor table (XSDT)
// if the system supports ACPI 2.0+.
func locateRSDT(h Handler) (uintptr, bool, *kernel.Error) {
	var (
		rsdp   *table.RSDPDescriptor
		rsdp2  *table.ExtRSDPDescriptor
		winLen = rsdpLocationHi - rsdpLocationLow + 1
	)

	mapping, err := h.MapPhysicalRegion(rsdpLocationLow, winLen)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(mapping) }()

	winStart := mapping.VirtualStart()
	winEnd := winStart + winLen

	// The RSDP should be aligned on a 16-byte boundary
checkNextBlock:
	for curPtr := winStart; curPtr+table.SizeofRSDP <= winEnd; curPtr += rsdpAlignment {
		rsdp = (*table.RSDPDescriptor)(unsafe.Pointer(curPtr))
		for i, b := range rsdpSignature {
			if rsdp.Signature[i] != b {
				continue checkNextBlock
			}
		}

		if rsdp.Revision == acpiRev1 {
			if !validTable(curPtr, table.SizeofRSDP) {
				continue
			}

			return uintptr(rsdp.RSDTAddr), false, nil
		}

		// System uses ACPI revision > 1 and provides an extended RSDP
		// which can be accessed at the same place.
		if curPtr+table.SizeofExtRSDP > winEnd {
			continue
		}

		rsdp2 = (*table.ExtRSDPDescriptor)(unsafe.Pointer(curPtr))
		if !validTable(curPtr, table.SizeofExtRSDP) {
			continue
		}

		return uintptr(rsdp2.XSDTAddr), true, nil
	}

	return 0, false, errMissingRSDP
}

// validTable calculates the checksum for an ACPI table of length tableLength
// that starts at tablePtr and returns true if the table is valid.
func validTable(tablePtr uintptr, tableLength uint32) bool {
	var (
		i   uint32
		sum uint8
	)

	for i = 0; i < tableLength; i++ {
		sum += *(*uint8)(unsafe.Pointer(tablePtr + uintptr(i)))
	}

	return sum == 0
}
