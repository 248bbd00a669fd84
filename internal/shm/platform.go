// Package shm contains platform-specific helpers for the SysV IPC resources
// behind a rendezvous channel: counting semaphores and shared memory segments.
package shm

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned by every helper on platforms without SysV IPC.
var ErrUnsupported = fmt.Errorf("shm: sysv ipc on %s/%s: %w", runtime.GOOS, runtime.GOARCH, errors.ErrUnsupported)

// MappedRegion represents an attached SysV shared memory segment.
type MappedRegion struct {
	Addr []byte
	ID   int
	Key  int32
}

// MapOptions defines options for attaching a shared memory segment.
type MapOptions struct {
	Key    int32
	Size   int
	Create bool
	Perm   uint32
}

// RegionInfo is the kernel's view of a segment.
type RegionInfo struct {
	Size       int
	CreatorPID int32
	LastPID    int32
	Attached   int
}

// SemaphoreOptions defines options for creating or opening a semaphore.
type SemaphoreOptions struct {
	Key    int32
	Create bool
	// Value is written with SETVAL after an exclusive create.
	Value int
	Perm  uint32
	// Undo makes the kernel revert this process's Wait and Post adjustments
	// when it exits. Only meaningful for semaphores every process takes and
	// releases in pairs, like a lock.
	Undo bool
}

// Implementations live in platform_linux.go and sem_linux.go, with stubs in
// platform_other.go.
