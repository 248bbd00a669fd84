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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Poison marks the channel poisoned for every attached process and releases
// one blocked writer and one blocked reader, if any. Calling it again posts
// the semaphores again.
func (c *Channel) Poison() error {
	return c.metrics.failed(c.poison())
}

func (c *Channel) poison() (err error) {
	if c.closed.Load() {
		return ErrUseAfterClose
	}
	_, span := c.tracer.Start(context.Background(), "rendezvous.poison",
		trace.WithAttributes(attribute.String("rendezvous.keys", c.keys.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if err := c.poisonGuard.Wait(); err != nil {
		return ipcError("poison: acquire guard", err)
	}
	c.buf.SetPoisoned()
	postErr := c.available.Post()
	if postErr == nil {
		postErr = c.taken.Post()
	}
	if err := c.poisonGuard.Post(); err != nil {
		return ipcError("poison: release guard", err)
	}
	if postErr != nil {
		return ipcError("poison", postErr)
	}
	c.metrics.poisoned()
	c.log.infof("channel poisoned")
	return nil
}

// CheckPoison reports whether any attached process has poisoned the channel.
// It is advisory: it does not abort calls in progress.
func (c *Channel) CheckPoison() (bool, error) {
	if c.closed.Load() {
		return false, ErrUseAfterClose
	}
	return c.checkPoison()
}

func (c *Channel) checkPoison() (bool, error) {
	if err := c.poisonGuard.Wait(); err != nil {
		return false, ipcError("check poison: acquire guard", err)
	}
	poisoned := c.buf.Poisoned()
	if err := c.poisonGuard.Post(); err != nil {
		return false, ipcError("check poison: release guard", err)
	}
	return poisoned, nil
}

// gate fails fast on a poisoned channel when the poison gate is enabled.
func (c *Channel) gate() error {
	if !c.cfg.PoisonGate {
		return nil
	}
	poisoned, err := c.checkPoison()
	if err != nil {
		return err
	}
	if poisoned {
		return ErrChannelPoisoned
	}
	return nil
}
