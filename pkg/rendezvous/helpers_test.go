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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-rendezvous/pkg/keys"
)

const (
	settle  = 50 * time.Millisecond
	timeout = 5 * time.Second
)

var testAllocator = keys.NewRandomAllocator()

// openTestChannel creates a channel on fresh keys, skipping where SysV IPC
// is unavailable. Close runs at cleanup.
func openTestChannel(t *testing.T, opts ...Option) *Channel {
	t.Helper()
	c, err := OpenAllocated(context.Background(), testAllocator, nil, opts...)
	if errors.Is(err, ErrUnsupported) {
		t.Skipf("platform not implemented: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// attachTestChannel attaches a second descriptor to c's resources, standing
// in for another process. It is detached at cleanup, after c is closed.
func attachTestChannel(t *testing.T, c *Channel, opts ...Option) *Channel {
	t.Helper()
	peer, err := Attach(context.Background(), c.Keys(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = peer.Detach()
	})
	return peer
}

type result struct {
	p   []byte
	err error
}

func goRun(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func goWrite(c *Channel, p string) <-chan error {
	return goRun(func() error { return c.Write([]byte(p)) })
}

func goRead(c *Channel) <-chan result {
	done := make(chan result, 1)
	go func() {
		p, err := c.Read()
		done <- result{p, err}
	}()
	return done
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a blocked call")
	}
	var zero T
	return zero
}

func requireBlocked[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("call returned while it should block: %v", v)
	case <-time.After(settle):
	}
}

// claim enables c until it holds a claim on a pending message.
func claim(t *testing.T, c *Channel) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Enable() == nil && c.IsSelectable()
	}, timeout, time.Millisecond)
}
