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

import "fmt"

// altState is a channel's position in an alternation round.
type altState int32

const (
	// altIdle: not offered to any coordinator.
	altIdle altState = iota
	// altOffered: enabled, no message claimed yet.
	altOffered
	// altClaimed: enabled and holding a provisional claim on one message.
	altClaimed
	// altCommitted: selected; the round is over for this channel.
	altCommitted
)

func (s altState) String() string {
	switch s {
	case altIdle:
		return "idle"
	case altOffered:
		return "offered"
	case altClaimed:
		return "claimed"
	case altCommitted:
		return "committed"
	}
	return fmt.Sprintf("altState(%d)", int32(s))
}

func (c *Channel) altState() altState { return altState(c.state.Load()) }

func (c *Channel) casState(from, to altState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// endRound clears a finished selection so the channel can be offered again.
func (c *Channel) endRound() {
	c.casState(altCommitted, altIdle)
}

// Enable offers the channel to a coordinator and claims a pending message
// if there is one, without blocking. It does nothing when the channel
// already holds a claim or was selected in this round.
func (c *Channel) Enable() error {
	return c.metrics.failed(c.enable())
}

func (c *Channel) enable() error {
	if c.closed.Load() {
		return ErrUseAfterClose
	}
	if err := c.gate(); err != nil {
		return err
	}
	if !c.casState(altIdle, altOffered) {
		switch c.altState() {
		case altClaimed, altCommitted:
			return nil
		}
	}

	c.readLock.Lock()
	defer c.readLock.Unlock()
	if c.altState() != altOffered {
		return nil
	}
	ok, err := c.available.TryWait()
	if err != nil {
		return ipcError("enable", err)
	}
	if !ok {
		return nil
	}
	if !c.casState(altOffered, altClaimed) {
		// Disabled while probing; hand the message back.
		return ipcError("enable: return claim", c.available.Post())
	}
	c.metrics.claimed()
	c.log.tracef("enable claimed a message")
	return nil
}

// IsSelectable reports whether the last Enable claimed a message.
func (c *Channel) IsSelectable() bool {
	return c.altState() == altClaimed
}

// Disable withdraws the channel from the round. A claimed message is handed
// back so a later Read or Enable can take it. Disable on a selected channel
// ends its round. Disable without Enable is ErrAlternationMisuse.
func (c *Channel) Disable() error {
	return c.metrics.failed(c.disable())
}

func (c *Channel) disable() error {
	if c.closed.Load() {
		return ErrUseAfterClose
	}
	for {
		switch s := c.altState(); s {
		case altIdle:
			return fmt.Errorf("rendezvous: disable without enable: %w", ErrAlternationMisuse)
		case altOffered, altCommitted:
			if c.casState(s, altIdle) {
				return nil
			}
		case altClaimed:
			c.readLock.Lock()
			if !c.casState(altClaimed, altIdle) {
				c.readLock.Unlock()
				continue
			}
			err := c.available.Post()
			c.readLock.Unlock()
			return ipcError("disable: return claim", err)
		default:
			return fmt.Errorf("rendezvous: disable in state %s: %w", s, ErrAlternationMisuse)
		}
	}
}

// Select commits to the message claimed by Enable, releases its writer and
// returns the payload. Without a claim it returns ErrAlternationMisuse.
func (c *Channel) Select() ([]byte, error) {
	p, err := c.selectClaimed()
	return p, c.metrics.failed(err)
}

func (c *Channel) selectClaimed() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrUseAfterClose
	}
	c.readLock.Lock()
	defer c.readLock.Unlock()
	if !c.casState(altClaimed, altCommitted) {
		return nil, fmt.Errorf("rendezvous: select in state %s: %w", c.altState(), ErrAlternationMisuse)
	}
	return c.consume("select")
}
