//go:build !linux

package tasksched

// PinToCPU is a no-op outside linux.
func PinToCPU(int) error { return nil }
