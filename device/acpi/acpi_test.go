package acpi

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"unsafe"

	"vmboot/device/acpi/table"
	"vmboot/kernel"
)

// fakeHandler exposes a byte slice as physical memory. Windows point directly
// into the slice.
type fakeHandler struct {
	phys      []byte
	openCount int
	mapCount  int
	mapErr    *kernel.Error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{phys: make([]byte, 0x100000)}
}

func (h *fakeHandler) MapPhysicalRegion(physAddr, size uintptr) (PhysicalMapping, *kernel.Error) {
	if h.mapErr != nil {
		return PhysicalMapping{}, h.mapErr
	}

	if physAddr+size > uintptr(len(h.phys)) {
		return PhysicalMapping{}, &kernel.Error{Module: "test", Message: "window outside fake physical memory"}
	}

	h.openCount++
	h.mapCount++
	_, pageCount := frameRange(physAddr, size)
	return PhysicalMapping{
		physStart:    physAddr,
		virtStart:    uintptr(unsafe.Pointer(&h.phys[0])) + physAddr,
		regionLength: size,
		pageCount:    pageCount,
	}, nil
}

func (h *fakeHandler) UnmapPhysicalRegion(_ PhysicalMapping) *kernel.Error {
	h.openCount--
	return nil
}

func checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return -sum
}

func (h *fakeHandler) writeRSDP(addr uintptr, rev uint8, rootAddr uint64) {
	rsdp := (*table.ExtRSDPDescriptor)(unsafe.Pointer(&h.phys[addr]))
	copy(rsdp.Signature[:], "RSD PTR ")
	copy(rsdp.OEMID[:], "VMBOOT")
	rsdp.Revision = rev

	if rev == acpiRev1 {
		rsdp.RSDTAddr = uint32(rootAddr)
		rsdp.Checksum = checksum(h.phys[addr : addr+table.SizeofRSDP])
		return
	}

	rsdp.Length = table.SizeofExtRSDP
	rsdp.XSDTAddr = rootAddr
	rsdp.Checksum = checksum(h.phys[addr : addr+table.SizeofRSDP])
	rsdp.ExtendedChecksum = checksum(h.phys[addr : addr+table.SizeofExtRSDP])
}

func (h *fakeHandler) writeTable(addr uintptr, signature string, payload []byte) {
	header := (*table.SDTHeader)(unsafe.Pointer(&h.phys[addr]))
	copy(header.Signature[:], signature)
	copy(header.OEMID[:], "VMBOOT")
	header.Length = uint32(table.SizeofSDTHeader + len(payload))
	header.Revision = 2
	copy(h.phys[addr+table.SizeofSDTHeader:], payload)
	header.Checksum = checksum(h.phys[addr : addr+uintptr(header.Length)])
}

func (h *fakeHandler) writeRoot(addr uintptr, xsdt bool, entries ...uint64) {
	var (
		payload   []byte
		signature = "RSDT"
	)

	for _, entry := range entries {
		if xsdt {
			payload = binary.LittleEndian.AppendUint64(payload, entry)
			continue
		}
		payload = binary.LittleEndian.AppendUint32(payload, uint32(entry))
	}

	if xsdt {
		signature = "XSDT"
	}
	h.writeTable(addr, signature, payload)
}

func (h *fakeHandler) corrupt(addr uintptr) {
	h.phys[addr+table.SizeofSDTHeader-1]++
}

func TestLocateTables(t *testing.T) {
	specs := []struct {
		setup      func(h *fakeHandler)
		expErr     *kernel.Error
		expRoot    uintptr
		expXSDT    bool
		expTables  []string
		expMissing []string
		expLog     []string
	}{
		{
			// ACPI 1.0 with one corrupted table
			func(h *fakeHandler) {
				h.writeRSDP(0xe0010, 0, 0x10000)
				h.writeRoot(0x10000, false, 0x11000, 0x12000, 0x13000)
				h.writeTable(0x11000, "APIC", []byte{1, 2, 3, 4})
				h.writeTable(0x12000, "HPET", make([]byte, 20))
				h.corrupt(0x12000)
				h.writeTable(0x13000, "FACP", make([]byte, 200))
			},
			nil,
			0x10000,
			false,
			[]string{"APIC", "FACP"},
			[]string{"HPET"},
			[]string{"HPET at", "checksum mismatch while parsing ACPI table header; skipping", "APIC at", "(VMBOOT)"},
		},
		{
			// ACPI 2.0+ with a table that straddles a page boundary
			func(h *fakeHandler) {
				h.writeRSDP(0xf0000, 2, 0x20000)
				h.writeRoot(0x20000, true, 0x21ff0, 0x23000)
				h.writeTable(0x21ff0, "MCFG", make([]byte, 60))
				h.writeTable(0x23000, "SSDT", nil)
			},
			nil,
			0x20000,
			true,
			[]string{"MCFG", "SSDT"},
			[]string{"RSDT", "XSDT"},
			nil,
		},
		{
			// a corrupted RSDP is skipped in favour of a valid one
			func(h *fakeHandler) {
				h.writeRSDP(0xe0000, 0, 0x30000)
				h.phys[0xe0000+8]++
				h.writeRSDP(0xe8000, 0, 0x10000)
				h.writeRoot(0x10000, false, 0x11000)
				h.writeTable(0x11000, "APIC", nil)
			},
			nil,
			0x10000,
			false,
			[]string{"APIC"},
			nil,
			nil,
		},
		{
			// table length smaller than its header
			func(h *fakeHandler) {
				h.writeRSDP(0xe0010, 0, 0x10000)
				h.writeRoot(0x10000, false, 0x11000, 0x12000)
				h.writeTable(0x11000, "BOGS", nil)
				(*table.SDTHeader)(unsafe.Pointer(&h.phys[0x11000])).Length = 10
				h.writeTable(0x12000, "APIC", nil)
			},
			nil,
			0x10000,
			false,
			[]string{"APIC"},
			[]string{"BOGS"},
			[]string{"BOGS at", "smaller than its header; skipping"},
		},
		{
			// no RSDP
			func(h *fakeHandler) {},
			errMissingRSDP,
			0,
			false,
			nil,
			nil,
			nil,
		},
		{
			// extended RSDP truncated by the end of the scan window
			func(h *fakeHandler) {
				copy(h.phys[0xffff0:], "RSD PTR ")
				h.phys[0xffff0+15] = 2
			},
			errMissingRSDP,
			0,
			false,
			nil,
			nil,
			nil,
		},
		{
			// corrupted root table
			func(h *fakeHandler) {
				h.writeRSDP(0xe0010, 0, 0x10000)
				h.writeRoot(0x10000, false, 0x11000)
				h.corrupt(0x10000)
			},
			errTableChecksumMismatch,
			0,
			false,
			nil,
			nil,
			nil,
		},
	}

	for specIndex, spec := range specs {
		h := newFakeHandler()
		spec.setup(h)

		var buf bytes.Buffer
		tables, err := LocateTables(h, &buf)

		if h.openCount != 0 {
			t.Errorf("[spec %d] expected all windows to be closed; %d still open", specIndex, h.openCount)
		}

		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}

		if err != nil {
			continue
		}

		if tables.RootAddr != spec.expRoot || tables.UseXSDT != spec.expXSDT {
			t.Errorf("[spec %d] expected root 0x%x (xsdt: %t); got 0x%x (xsdt: %t)", specIndex, spec.expRoot, spec.expXSDT, tables.RootAddr, tables.UseXSDT)
		}

		if tables.Count() != len(spec.expTables) {
			t.Errorf("[spec %d] expected %d tables; got %d", specIndex, len(spec.expTables), tables.Count())
		}

		for _, signature := range spec.expTables {
			info, ok := tables.Lookup(signature)
			if !ok {
				t.Errorf("[spec %d] expected table %q to be found", specIndex, signature)
				continue
			}

			if string(info.OEMID[:]) != "VMBOOT" {
				t.Errorf("[spec %d] expected OEMID of %q to be recorded; got %q", specIndex, signature, info.OEMID[:])
			}
		}

		for _, signature := range spec.expMissing {
			if _, ok := tables.Lookup(signature); ok {
				t.Errorf("[spec %d] expected table %q not to be recorded", specIndex, signature)
			}
		}

		for _, exp := range spec.expLog {
			if !strings.Contains(buf.String(), exp) {
				t.Errorf("[spec %d] expected output to contain %q; got:\n%s", specIndex, exp, buf.String())
			}
		}
	}
}

func TestLocateTablesMapError(t *testing.T) {
	expErr := &kernel.Error{Module: "test", Message: "map failed"}

	h := newFakeHandler()
	h.mapErr = expErr

	if _, err := LocateTables(h, &bytes.Buffer{}); err != expErr {
		t.Fatalf("expected error %v; got %v", expErr, err)
	}
}

func TestLocateTablesRecordsPhysicalAddress(t *testing.T) {
	h := newFakeHandler()
	h.writeRSDP(0xe0010, 0, 0x10000)
	h.writeRoot(0x10000, false, 0x11000)
	h.writeTable(0x11000, "APIC", make([]byte, 8))

	tables, err := LocateTables(h, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}

	info, _ := tables.Lookup("APIC")
	if info.PhysAddr != 0x11000 || info.Length != table.SizeofSDTHeader+8 || info.Revision != 2 {
		t.Fatalf("unexpected table info %+v", info)
	}

	// RSDP scan, root header, root table and the APIC header plus table
	if exp := 5; h.mapCount != exp {
		t.Fatalf("expected %d windows to be opened; got %d", exp, h.mapCount)
	}
}
