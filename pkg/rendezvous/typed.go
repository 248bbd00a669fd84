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
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-rendezvous/pkg/shm"
)

// Typed carries values of type T as JSON over a length-prefixed channel.
// JSON may contain the sentinel terminator, so sentinel channels are refused.
type Typed[T any] struct {
	ch *Channel
}

// NewTyped wraps ch, which must use shm.FramingLengthPrefixed.
func NewTyped[T any](ch *Channel) (*Typed[T], error) {
	if ch.Framing() != shm.FramingLengthPrefixed {
		return nil, fmt.Errorf("rendezvous: typed channel needs %s framing, have %s: %w",
			shm.FramingLengthPrefixed, ch.Framing(), ErrFramingViolation)
	}
	return &Typed[T]{ch: ch}, nil
}

// Channel returns the underlying channel, for Enable, Disable and Poison.
func (t *Typed[T]) Channel() *Channel { return t.ch }

// Write encodes v and hands it to a reader.
func (t *Typed[T]) Write(v T) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(v); err != nil {
		return fmt.Errorf("rendezvous: encode %T: %w", v, err)
	}
	return t.ch.Write(buf.B)
}

// Read receives and decodes one value.
func (t *Typed[T]) Read() (T, error) {
	p, err := t.ch.Read()
	if err != nil {
		var zero T
		return zero, err
	}
	return t.decode(p)
}

// Select commits to the value claimed by Enable on the underlying channel.
func (t *Typed[T]) Select() (T, error) {
	p, err := t.ch.Select()
	if err != nil {
		var zero T
		return zero, err
	}
	return t.decode(p)
}

func (t *Typed[T]) decode(p []byte) (T, error) {
	var v T
	if err := sonic.Unmarshal(p, &v); err != nil {
		return v, fmt.Errorf("rendezvous: decode %T: %w", v, err)
	}
	return v, nil
}
