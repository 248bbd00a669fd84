package keys

import (
	"sync"

	"github.com/Workiva/go-datastructures/set"
	"github.com/google/uuid"
)

// keyMask keeps keys in the 24-bit range the legacy channels used.
const keyMask = 0xffffff

// Allocator hands out key sets for new channels. Implementations must not
// return the same key twice for live channels; callers that hit a collision
// anyway should Release the set and allocate again.
type Allocator interface {
	Allocate() (Keys, error)
	Release(k Keys)
}

// RandomAllocator derives keys from random UUIDs and remembers what it has
// issued so a single process never hands out a duplicate.
type RandomAllocator struct {
	mu     sync.Mutex
	issued *set.Set
	newID  func() uuid.UUID
}

// NewRandomAllocator returns an allocator backed by uuid.New.
func NewRandomAllocator() *RandomAllocator {
	return &RandomAllocator{issued: set.New(), newID: uuid.New}
}

// Allocate returns four keys not previously issued by a.
func (a *RandomAllocator) Allocate() (Keys, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ks [4]int32
	for i := range ks {
		ks[i] = a.next()
	}
	k := Keys{PoisonGuard: ks[0], Available: ks[1], Taken: ks[2], Segment: ks[3]}
	return k, k.Validate()
}

// Release forgets k so its keys may be issued again.
func (a *RandomAllocator) Release(k Keys) {
	a.issued.Remove(k.PoisonGuard, k.Available, k.Taken, k.Segment)
}

func (a *RandomAllocator) next() int32 {
	for {
		id := a.newID()
		key := (int32(id[13])<<16 | int32(id[14])<<8 | int32(id[15])) & keyMask
		if key == 0 || a.issued.Exists(key) {
			continue
		}
		a.issued.Add(key)
		return key
	}
}

// SequentialAllocator issues consecutive keys from a base. Useful when two
// cooperating programs agree on a key range up front.
type SequentialAllocator struct {
	mu   sync.Mutex
	next int32
}

// NewSequentialAllocator starts allocating at base, which must be non-zero.
func NewSequentialAllocator(base int32) *SequentialAllocator {
	return &SequentialAllocator{next: base}
}

// Allocate returns the next four keys.
func (a *SequentialAllocator) Allocate() (Keys, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := Keys{PoisonGuard: a.next, Available: a.next + 1, Taken: a.next + 2, Segment: a.next + 3}
	a.next += 4
	return k, k.Validate()
}

// Release is a no-op; sequential keys are never reissued.
func (a *SequentialAllocator) Release(Keys) {}
