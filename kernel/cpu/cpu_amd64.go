// Package cpu exposes the handful of privileged amd64 instructions that the
// memory subsystem depends on. All functions are implemented in assembly and
// fault if invoked from user-mode; packages that call them keep them behind
// function variables so tests can substitute them.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// InterruptsEnabled returns true if the IF bit of the RFLAGS register is set.
func InterruptsEnabled() bool

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ActivePDT returns the raw contents of the CR3 register. Bits 12-51 hold the
// physical address of the active top-level page table; the low bits carry
// cache-control flags (or the PCID when enabled).
func ActivePDT() uintptr
