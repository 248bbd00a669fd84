//go:build linux && (amd64 || arm64)

package shm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion attaches, or exclusively creates and attaches, a SysV shared
// memory segment (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	flags := int(opts.Perm & 0o777)
	if opts.Create {
		flags |= unix.IPC_CREAT | unix.IPC_EXCL
	}
	size := opts.Size
	if !opts.Create {
		size = 0
	}
	id, err := unix.SysvShmGet(int(opts.Key), size, flags)
	if err != nil {
		return nil, fmt.Errorf("shmget key=%#x: %w", opts.Key, err)
	}
	addr, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		if opts.Create {
			_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		}
		return nil, fmt.Errorf("shmat id=%d: %w", id, err)
	}
	if opts.Create {
		clear(addr)
	} else if opts.Size > 0 && len(addr) < opts.Size {
		_ = unix.SysvShmDetach(addr)
		return nil, fmt.Errorf("shm key=%#x: segment is %d bytes, want %d: %w", opts.Key, len(addr), opts.Size, unix.EINVAL)
	}
	return &MappedRegion{Addr: addr, ID: id, Key: opts.Key}, nil
}

// UnmapRegion detaches the segment from this process (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.SysvShmDetach(region.Addr); err != nil {
		return fmt.Errorf("shmdt: %w", err)
	}
	region.Addr = nil
	return nil
}

// RemoveRegion marks the segment for destruction. The kernel frees it once
// the last process detaches.
func RemoveRegion(region *MappedRegion) error {
	if _, err := unix.SysvShmCtl(region.ID, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("shmctl IPC_RMID id=%d: %w", region.ID, err)
	}
	return nil
}

// RemoveRegionByKey removes the segment registered under key without attaching it.
func RemoveRegionByKey(key int32) error {
	id, err := unix.SysvShmGet(int(key), 0, 0)
	if err != nil {
		return fmt.Errorf("shmget key=%#x: %w", key, err)
	}
	return RemoveRegion(&MappedRegion{ID: id, Key: key})
}

// StatRegion reports the kernel's bookkeeping for the segment.
func StatRegion(region *MappedRegion) (RegionInfo, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(region.ID, unix.IPC_STAT, &desc); err != nil {
		return RegionInfo{}, fmt.Errorf("shmctl IPC_STAT id=%d: %w", region.ID, err)
	}
	return RegionInfo{
		Size:       int(desc.Segsz),
		CreatorPID: desc.Cpid,
		LastPID:    desc.Lpid,
		Attached:   int(desc.Nattch),
	}, nil
}

// IsExist reports whether err means a resource already exists under the key.
func IsExist(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

// IsNotExist reports whether err means no resource exists under the key.
func IsNotExist(err error) bool {
	return errors.Is(err, unix.ENOENT)
}

// IsRemoved reports whether err means the resource was removed, either while
// the caller was blocked on it (EIDRM) or before the call (EINVAL on a stale id).
func IsRemoved(err error) bool {
	return errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL)
}
