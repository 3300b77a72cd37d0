package kmain

import (
	"vmboot/device/acpi"
	"vmboot/kernel"
	"vmboot/kernel/boot"
	"vmboot/kernel/hal/multiboot"
	"vmboot/kernel/kfmt"
	"vmboot/kernel/mm"
	"vmboot/kernel/mm/heap"
	"vmboot/kernel/mm/kmem"
	"vmboot/kernel/mm/stack"
	"vmboot/kernel/mm/vmm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// HeapBackend receives the mapped heap range. It stays nil until a
	// general-purpose allocator is linked into the kernel.
	HeapBackend heap.Backend

	// interruptStackPages is the size of the stack allocated for the
	// interrupt handlers.
	interruptStackPages uintptr = 4

	// The following functions are mocked by tests.
	initMemoryFn   = initMemory
	heapInitFn     = heap.Init
	stackAllocFn   = stack.Alloc
	locateTablesFn = acpi.LocateTables
	panicFn        = kfmt.Panic
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader and the virtual address at which the bootloader mapped the
// complete physical memory.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, physMemOffset uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	ctx, err := initMemoryFn(&boot.Info{
		MemoryMap:            multiboot.MemoryMap{},
		PhysicalMemoryOffset: physMemOffset,
	})
	if err != nil {
		panicFn(err)
		return
	}

	if _, err = heapInitFn(ctx, HeapBackend); err != nil {
		panicFn(err)
		return
	}

	var intStack stack.Bounds
	err = ctx.WithMapperAndAllocator(func(m *vmm.Mapper, alloc mm.FrameAllocator) *kernel.Error {
		var allocErr *kernel.Error
		intStack, allocErr = stackAllocFn(interruptStackPages, m, alloc)
		return allocErr
	})
	if err != nil {
		panicFn(err)
		return
	}
	kfmt.Printf("[kmain] interrupt stack at [0x%16x - 0x%16x]\n", intStack.Start, intStack.End)

	acpiOut := &kfmt.PrefixWriter{Prefix: []byte("[acpi] ")}
	if _, err = locateTablesFn(acpi.NewRegionMapper(ctx), acpiOut); err != nil {
		kfmt.Printf("[kmain] ACPI tables unavailable: %s\n", err.Message)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// initMemory sets up the global memory context.
func initMemory(info *boot.Info) (kmem.Accessor, *kernel.Error) {
	ctx, err := kmem.Init(info)
	if err != nil {
		return nil, err
	}

	return ctx, nil
}
