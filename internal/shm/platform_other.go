//go:build !linux || !(amd64 || arm64)

package shm

import "context"

// MapRegion is not available on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is not available on this platform.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return ErrUnsupported
}

// RemoveRegion is not available on this platform.
func RemoveRegion(region *MappedRegion) error { return ErrUnsupported }

// RemoveRegionByKey is not available on this platform.
func RemoveRegionByKey(key int32) error { return ErrUnsupported }

// StatRegion is not available on this platform.
func StatRegion(region *MappedRegion) (RegionInfo, error) { return RegionInfo{}, ErrUnsupported }

func IsExist(err error) bool { return false }
func IsNotExist(err error) bool { return false }
func IsRemoved(err error) bool { return false }

// Semaphore is not available on this platform.
type Semaphore struct {
	id  int
	key int32
}

func OpenSemaphore(opts SemaphoreOptions) (*Semaphore, error) { return nil, ErrUnsupported }

func (s *Semaphore) ID() int { return s.id }
func (s *Semaphore) Key() int32 { return s.key }
func (s *Semaphore) Wait() error { return ErrUnsupported }
func (s *Semaphore) TryWait() (bool, error) { return false, ErrUnsupported }
func (s *Semaphore) Post() error { return ErrUnsupported }
func (s *Semaphore) Value() (int, error) { return 0, ErrUnsupported }
func (s *Semaphore) Waiters() (int, error) { return 0, ErrUnsupported }
func (s *Semaphore) LastPID() (int, error) { return 0, ErrUnsupported }
func (s *Semaphore) Remove() error { return ErrUnsupported }
