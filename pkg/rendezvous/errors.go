/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rendezvous

import (
	"errors"
	"fmt"

	internalshm "github.com/srediag/shm-rendezvous/internal/shm"
	"github.com/srediag/shm-rendezvous/pkg/shm"
)

var (
	// ErrResourceCreationFailed is returned by Open and Attach when a
	// semaphore or the segment cannot be created or found.
	ErrResourceCreationFailed = errors.New("rendezvous: resource creation failed")
	// ErrUseAfterClose is returned by operations on a closed or detached
	// channel, and by calls blocked on a channel another process closed.
	ErrUseAfterClose = errors.New("rendezvous: use after close")
	// ErrChannelPoisoned is returned by calls released by Poison and by
	// gated calls on a poisoned channel.
	ErrChannelPoisoned = errors.New("rendezvous: channel poisoned")
	// ErrAlternationMisuse is returned by Select without a claimed message
	// and by Disable without a matching Enable.
	ErrAlternationMisuse = errors.New("rendezvous: alternation misuse")
	// ErrFramingViolation is returned when a payload cannot be framed or the
	// segment holds no well-formed message.
	ErrFramingViolation = shm.ErrFramingViolation
	// ErrUnsupported is returned on platforms without SysV IPC.
	ErrUnsupported = internalshm.ErrUnsupported
)

// ipcError maps an error from a semaphore or the segment to the package's
// error kinds.
func ipcError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shm.ErrClosed), internalshm.IsRemoved(err):
		return fmt.Errorf("rendezvous: %s: %w", op, ErrUseAfterClose)
	}
	return fmt.Errorf("rendezvous: %s: %w", op, err)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrChannelPoisoned):
		return "poisoned"
	case errors.Is(err, ErrUseAfterClose):
		return "closed"
	case errors.Is(err, ErrAlternationMisuse):
		return "alternation"
	case errors.Is(err, ErrFramingViolation):
		return "framing"
	case errors.Is(err, ErrResourceCreationFailed):
		return "resource"
	}
	return "other"
}
