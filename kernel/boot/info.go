// Package boot describes the information handed to the kernel by the boot
// environment before the memory subsystem is initialized.
package boot

// RegionKind classifies a MemoryRegion reported by the boot environment.
type RegionKind uint32

const (
	// RegionUsable is free memory that the kernel may hand out.
	RegionUsable RegionKind = iota + 1

	// RegionReserved is memory that must never be touched.
	RegionReserved

	// RegionAcpiReclaimable holds ACPI tables; it can be reused once the
	// tables have been consumed.
	RegionAcpiReclaimable

	// RegionAcpiNvs must be preserved across sleep states.
	RegionAcpiNvs

	// RegionBootloader is used by the boot environment itself (page
	// tables, boot info, kernel image).
	RegionBootloader

	// RegionBadMemory is memory reported as defective.
	RegionBadMemory
)

// String implements fmt.Stringer for RegionKind.
func (k RegionKind) String() string {
	switch k {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionAcpiReclaimable:
		return "ACPI (reclaimable)"
	case RegionAcpiNvs:
		return "ACPI NVS"
	case RegionBootloader:
		return "bootloader"
	case RegionBadMemory:
		return "bad memory"
	default:
		return "unknown"
	}
}

// MemoryRegion describes the physical range [Start, End) and its kind.
type MemoryRegion struct {
	Start uint64
	End   uint64
	Kind  RegionKind
}

// Len returns the region length in bytes.
func (r MemoryRegion) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// RegionVisitor is invoked by MemoryMap.VisitRegions for each region in the
// boot memory map. The visitor must return true to continue or false to abort
// the scan.
type RegionVisitor func(*MemoryRegion) bool

// MemoryMap is implemented by sources of boot memory-map information.
// Visiting rather than returning a slice allows implementations to decode
// regions in place without allocating.
type MemoryMap interface {
	VisitRegions(RegionVisitor)
}

// RegionList is a MemoryMap backed by a slice of regions.
type RegionList []MemoryRegion

// VisitRegions implements MemoryMap.
func (l RegionList) VisitRegions(visitor RegionVisitor) {
	for i := range l {
		if !visitor(&l[i]) {
			return
		}
	}
}

// Info bundles the boot-supplied inputs consumed by the memory subsystem.
type Info struct {
	// MemoryMap lists the physical memory regions and their kinds.
	MemoryMap MemoryMap

	// PhysicalMemoryOffset is the virtual address at which the boot
	// environment linearly mapped the entire physical address space.
	PhysicalMemoryOffset uintptr
}
