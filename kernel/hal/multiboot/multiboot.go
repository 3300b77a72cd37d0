// Package multiboot decodes the memory map that a multiboot2-compliant
// bootloader passes to the kernel and exposes it as a boot.MemoryMap.
package multiboot

import (
	"unsafe"

	"vmboot/kernel/boot"
)

var infoData uintptr

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
)

// tagHeader describes the header the precedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. According to the spec, each tag starts at a 8-byte aligned
	// address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// MemoryEntryType defines the type of a memoryMapEntry as encoded by the
// bootloader.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// MemBad indicates defective RAM.
	MemBad
)

// memoryMapEntry is the raw layout of a multiboot2 memory map entry.
type memoryMapEntry struct {
	physAddress uint64
	length      uint64
	entryType   MemoryEntryType
	reserved    uint32
}

// regionKind maps a multiboot entry type to a boot.RegionKind. Any value that
// the bootloader spec does not define is treated as reserved.
func regionKind(t MemoryEntryType) boot.RegionKind {
	switch t {
	case MemAvailable:
		return boot.RegionUsable
	case MemAcpiReclaimable:
		return boot.RegionAcpiReclaimable
	case MemNvs:
		return boot.RegionAcpiNvs
	case MemBad:
		return boot.RegionBadMemory
	default:
		return boot.RegionReserved
	}
}

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before accessing the memory map.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// MemoryMap implements boot.MemoryMap on top of the multiboot info data set
// via SetInfoPtr.
type MemoryMap struct{}

// VisitRegions invokes visitor for each memory map entry supplied by the
// bootloader. Entries are decoded into a stack-allocated boot.MemoryRegion so
// no memory is allocated; visitors must copy the region if they need to keep
// it.
func (MemoryMap) VisitRegions(visitor boot.RegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += unsafe.Sizeof(mmapHeader{})

	var region boot.MemoryRegion
	for ; curPtr < endPtr; curPtr += uintptr(ptrMapHeader.entrySize) {
		entry := (*memoryMapEntry)(unsafe.Pointer(curPtr))

		region.Start = entry.physAddress
		region.End = entry.physAddress + entry.length
		region.Kind = regionKind(entry.entryType)

		if !visitor(&region) {
			return
		}
	}
}

// findTagByType scans the multiboot info data looking for the start of of the
// specified type. It returns a pointer to the tag contents start offset and
// the content length excluding the tag header.
//
// If the tag is not present in the multiboot info, findTagSection will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	if infoData == 0 {
		return 0, 0
	}

	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr((ptrTagHeader.size + 7) & ^uint32(7))
	}

	return 0, 0
}
