//go:build linux && (amd64 || arm64)

package shm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// semctl commands from <linux/sem.h>; x/sys/unix does not export them.
const (
	semGetPID  = 11
	semGetVal  = 12
	semGetNCnt = 14
	semSetVal  = 16

	// semUndo is SEM_UNDO from <linux/sem.h>.
	semUndo = 0x1000
)

// sembuf mirrors struct sembuf.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// Semaphore is a single-member SysV semaphore set used as a counting semaphore.
type Semaphore struct {
	id   int
	key  int32
	undo bool
}

// OpenSemaphore creates (exclusively) or opens the semaphore registered under opts.Key.
func OpenSemaphore(opts SemaphoreOptions) (*Semaphore, error) {
	flags := uintptr(opts.Perm & 0o777)
	if opts.Create {
		flags |= unix.IPC_CREAT | unix.IPC_EXCL
	}
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(opts.Key), 1, flags)
	if errno != 0 {
		return nil, fmt.Errorf("semget key=%#x: %w", opts.Key, errno)
	}
	s := &Semaphore{id: int(id), key: opts.Key, undo: opts.Undo}
	if opts.Create {
		if _, err := s.ctl(semSetVal, uintptr(opts.Value)); err != nil {
			_ = s.Remove()
			return nil, err
		}
	}
	return s, nil
}

// ID returns the kernel identifier of the semaphore set.
func (s *Semaphore) ID() int { return s.id }

// Key returns the IPC key the semaphore was opened with.
func (s *Semaphore) Key() int32 { return s.key }

// Wait decrements the semaphore, blocking while it is zero.
// Interrupted waits are restarted.
func (s *Semaphore) Wait() error {
	for {
		err := s.op(-1, 0)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// TryWait decrements the semaphore if it is positive and reports whether it did.
func (s *Semaphore) TryWait() (bool, error) {
	for {
		err := s.op(-1, unix.IPC_NOWAIT)
		switch err {
		case nil:
			return true, nil
		case unix.EAGAIN:
			return false, nil
		case unix.EINTR:
			continue
		}
		return false, err
	}
}

// Post increments the semaphore, releasing one waiter if any.
func (s *Semaphore) Post() error {
	return s.op(1, 0)
}

// Value returns the current semaphore value.
func (s *Semaphore) Value() (int, error) {
	return s.ctl(semGetVal, 0)
}

// Waiters returns the number of processes blocked in Wait.
func (s *Semaphore) Waiters() (int, error) {
	return s.ctl(semGetNCnt, 0)
}

// LastPID returns the pid of the last process that operated on the semaphore.
func (s *Semaphore) LastPID() (int, error) {
	return s.ctl(semGetPID, 0)
}

// Remove destroys the semaphore set, waking every blocked process with EIDRM.
func (s *Semaphore) Remove() error {
	if _, err := s.ctl(unix.IPC_RMID, 0); err != nil {
		return err
	}
	return nil
}

func (s *Semaphore) op(delta int16, flags int16) error {
	if s.undo {
		flags |= semUndo
	}
	sb := sembuf{num: 0, op: delta, flg: flags}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(s.id), uintptr(unsafe.Pointer(&sb)), 1)
	if errno != 0 {
		return errno
	}
	return nil
}

func (s *Semaphore) ctl(cmd int, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, uintptr(cmd), arg, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("semctl id=%d cmd=%d: %w", s.id, cmd, errno)
	}
	return int(r), nil
}
