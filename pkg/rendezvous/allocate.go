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
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/shm-rendezvous/internal/shm"
	"github.com/srediag/shm-rendezvous/pkg/keys"
)

// DefaultAllocateBackOff retries a colliding key set a handful of times.
func DefaultAllocateBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 8)
}

// OpenAllocated opens a channel on keys drawn from alloc. When a key
// collides with a live resource it draws a fresh set and tries again under
// policy; any other failure is returned at once. A nil policy means
// DefaultAllocateBackOff.
func OpenAllocated(ctx context.Context, alloc keys.Allocator, policy backoff.BackOff, opts ...Option) (*Channel, error) {
	if policy == nil {
		policy = DefaultAllocateBackOff()
	}
	attempt := 0
	open := func() (*Channel, error) {
		attempt++
		k, err := alloc.Allocate()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		c, err := Open(ctx, k, opts...)
		switch {
		case err == nil:
			return c, nil
		case internalshm.IsExist(err):
			// The colliding keys stay issued so the allocator skips them.
			internalLogger.debugf("attempt %d: keys %s collide with a live channel", attempt, k)
			return nil, err
		}
		alloc.Release(k)
		return nil, backoff.Permanent(err)
	}
	return backoff.RetryWithData(open, backoff.WithContext(policy, ctx))
}
