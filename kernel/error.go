package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error and compared by identity. Most of the memory subsystem runs
// before the Go allocator is backed by a heap, so errors.New is off limits.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
