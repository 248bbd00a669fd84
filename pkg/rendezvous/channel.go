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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/shm-rendezvous/internal/shm"
	"github.com/srediag/shm-rendezvous/pkg/keys"
	"github.com/srediag/shm-rendezvous/pkg/shm"
)

// poisonGuardInitial makes the poison guard a binary semaphore: one holder
// at a time, free after creation.
const poisonGuardInitial = 1

// Channel is one process's descriptor for a rendezvous channel.
// A Channel is safe for concurrent use by the goroutines of one process,
// subject to the one-writer one-reader contract described in the package doc.
type Channel struct {
	keys  keys.Keys
	owner bool
	cfg   Config

	poisonGuard *internalshm.Semaphore
	available   *internalshm.Semaphore
	taken       *internalshm.Semaphore
	buf         *shm.Buffer

	// readLock and writeLock exclude goroutines of this process only.
	readLock  sync.Mutex
	writeLock sync.Mutex

	state  atomic.Int32
	length atomic.Int64
	closed atomic.Bool

	log     *logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Open exclusively creates the channel's semaphores and segment. It fails
// with ErrResourceCreationFailed if any key already names a live resource;
// whatever was created before the failure is removed again.
func Open(ctx context.Context, k keys.Keys, opts ...Option) (*Channel, error) {
	return materialize(ctx, k, true, opts)
}

// Attach opens a channel another process created with Open. Nothing is
// created or reset. The configured framing must match the creator's.
func Attach(ctx context.Context, k keys.Keys, opts ...Option) (*Channel, error) {
	return materialize(ctx, k, false, opts)
}

func materialize(ctx context.Context, k keys.Keys, create bool, opts []Option) (c *Channel, err error) {
	op := "attach"
	if create {
		op = "open"
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: %s: %w", op, err)
	}
	ctx, span := o.tracer.Start(ctx, "rendezvous."+op, trace.WithAttributes(
		attribute.String("rendezvous.keys", k.String()),
		attribute.Bool("rendezvous.create", create),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceCreationFailed, err)
	}
	c = &Channel{
		keys:    k,
		owner:   create,
		cfg:     *o.config,
		log:     newLogger("rendezvous", o.logger).with("keys", k.String()),
		metrics: o.metrics,
		tracer:  o.tracer,
	}
	if err := c.acquire(ctx, create); err != nil {
		c.log.warnf("%s failed: %v", op, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceCreationFailed, op, err)
	}
	c.log.infof("%s channel, buffer %d bytes, %s framing", op, c.buf.Cap(), c.buf.Framing())
	return c, nil
}

// acquire creates or opens all four resources and releases the ones it got
// if a later one fails.
func (c *Channel) acquire(ctx context.Context, create bool) (err error) {
	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				c.log.warnf("rollback: %v", uerr)
			}
		}
	}()

	// The poison guard is a lock: the kernel releases it for a process that
	// dies holding it. available and taken carry counts between processes
	// and are never undone.
	sems := []struct {
		dst   **internalshm.Semaphore
		key   int32
		value int
		undo  bool
	}{
		{&c.poisonGuard, c.keys.PoisonGuard, poisonGuardInitial, true},
		{&c.available, c.keys.Available, 0, false},
		{&c.taken, c.keys.Taken, 0, false},
	}
	for _, s := range sems {
		sem, err := internalshm.OpenSemaphore(internalshm.SemaphoreOptions{
			Key:    s.key,
			Create: create,
			Value:  s.value,
			Perm:   c.cfg.Perm,
			Undo:   s.undo,
		})
		if err != nil {
			return err
		}
		*s.dst = sem
		if create {
			undo = append(undo, sem.Remove)
		}
	}

	size := 0
	if create {
		size = c.cfg.BufferSize
	}
	c.buf, err = shm.Open(ctx, shm.OpenOptions{
		Key:     c.keys.Segment,
		Size:    size,
		Create:  create,
		Perm:    c.cfg.Perm,
		Framing: c.cfg.Framing,
	})
	return err
}

// Keys returns the keys the channel was materialized from.
func (c *Channel) Keys() keys.Keys { return c.keys }

// Owner reports whether this descriptor created the resources.
func (c *Channel) Owner() bool { return c.owner }

// Cap returns the largest payload the channel carries.
func (c *Channel) Cap() int { return c.buf.Cap() }

// Len returns the length of the last payload this descriptor wrote.
func (c *Channel) Len() int { return int(c.length.Load()) }

// Framing returns the framing in use.
func (c *Channel) Framing() shm.Framing { return c.buf.Framing() }

// IsClosed reports whether Close or Detach was called on this descriptor.
func (c *Channel) IsClosed() bool { return c.closed.Load() }

// Close destroys the channel: it removes the three semaphores and the
// segment for every attached process. Calls blocked on the channel here or
// elsewhere return ErrUseAfterClose. Close may be called once; later calls
// return ErrUseAfterClose.
func (c *Channel) Close() (err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrUseAfterClose
	}
	_, span := c.tracer.Start(context.Background(), "rendezvous.close",
		trace.WithAttributes(attribute.String("rendezvous.keys", c.keys.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	// Removing the semaphores first wakes every blocked caller, which lets
	// the local locks drain before the segment goes away.
	var errs []error
	for _, s := range []*internalshm.Semaphore{c.poisonGuard, c.available, c.taken} {
		if rerr := s.Remove(); rerr != nil && !internalshm.IsRemoved(rerr) {
			errs = append(errs, rerr)
		}
	}
	c.writeLock.Lock()
	c.readLock.Lock()
	if rerr := c.buf.Remove(); rerr != nil && !internalshm.IsRemoved(rerr) {
		errs = append(errs, rerr)
	}
	c.readLock.Unlock()
	c.writeLock.Unlock()

	if err = errors.Join(errs...); err != nil {
		c.log.warnf("close: %v", err)
		return fmt.Errorf("rendezvous: close: %w", err)
	}
	c.log.infof("channel removed")
	return nil
}

// Detach releases this descriptor without destroying the shared resources.
// It waits for in-flight calls on this descriptor to finish, so it must not
// be called while one of them is blocked waiting for a peer.
func (c *Channel) Detach() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrUseAfterClose
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	c.readLock.Lock()
	defer c.readLock.Unlock()
	if err := c.buf.Close(); err != nil {
		return ipcError("detach", err)
	}
	c.log.debugf("channel detached")
	return nil
}

// Stale reports whether the process that created the channel has exited.
// A stale channel still works; it only means the creator will not Close it.
// Channels made by a short-lived tool are stale from the start.
func (c *Channel) Stale(ctx context.Context) (bool, error) {
	if c.closed.Load() {
		return false, ErrUseAfterClose
	}
	alive, err := c.buf.CreatorAlive(ctx)
	if err != nil {
		return false, ipcError("stale", err)
	}
	return !alive, nil
}
