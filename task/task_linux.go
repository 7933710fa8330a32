//go:build linux
// +build linux

package task

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Current returns the identity of the calling thread.  comm is the
// thread name as the kernel reports it (at most 15 bytes).
func Current() *Task {
	var buf [16]byte
	comm := "?"
	if err := unix.Prctl(unix.PR_GET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0); err == nil {
		comm = unix.ByteSliceToString(buf[:])
	}
	return NewTask(unix.Getpid(), unix.Gettid(), comm)
}
