// Package keys names the SysV IPC resources behind a rendezvous channel and
// allocates fresh, process-unique key sets for them.
//
// The kernel only fails loudly on a collision when a resource is created
// exclusively, so uniqueness is the allocator's job, not an accident of
// picking numbers.
package keys

import (
	"errors"
	"fmt"
)

// ErrInvalidKeys is returned by Validate.
var ErrInvalidKeys = errors.New("keys: invalid key set")

// Keys identifies the four IPC resources of one channel instance.
type Keys struct {
	PoisonGuard int32 `yaml:"poison_guard"`
	Available   int32 `yaml:"available"`
	Taken       int32 `yaml:"taken"`
	Segment     int32 `yaml:"segment"`
}

// Validate rejects IPC_PRIVATE (zero) keys and key sets whose semaphores
// share a key. The segment lives in a separate namespace and may reuse one.
func (k Keys) Validate() error {
	if k.PoisonGuard == 0 || k.Available == 0 || k.Taken == 0 || k.Segment == 0 {
		return fmt.Errorf("%w: zero key in %s", ErrInvalidKeys, k)
	}
	if k.PoisonGuard == k.Available || k.PoisonGuard == k.Taken || k.Available == k.Taken {
		return fmt.Errorf("%w: duplicate semaphore key in %s", ErrInvalidKeys, k)
	}
	return nil
}

func (k Keys) String() string {
	return fmt.Sprintf("poison=%#x available=%#x taken=%#x segment=%#x",
		k.PoisonGuard, k.Available, k.Taken, k.Segment)
}

// Semaphores returns the three semaphore keys in creation order.
func (k Keys) Semaphores() [3]int32 {
	return [3]int32{k.PoisonGuard, k.Available, k.Taken}
}
