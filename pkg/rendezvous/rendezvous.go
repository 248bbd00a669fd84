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

// Write hands p to a reader. It returns once a reader has taken the message,
// or with ErrChannelPoisoned if Poison released it. Under sentinel framing p
// must end with the terminator byte and contain it nowhere else.
func (c *Channel) Write(p []byte) error {
	return c.metrics.failed(c.write(p))
}

func (c *Channel) write(p []byte) error {
	if c.closed.Load() {
		return ErrUseAfterClose
	}
	if err := c.gate(); err != nil {
		return err
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	c.endRound()
	n, err := c.buf.Write(p)
	if err != nil {
		return ipcError("write", err)
	}
	c.length.Store(int64(n))
	if err := c.available.Post(); err != nil {
		return ipcError("write: post available", err)
	}
	c.log.tracef("posted %d bytes, waiting for taken", n)

	c.metrics.block("write", 1)
	err = c.taken.Wait()
	c.metrics.block("write", -1)
	if err != nil {
		return ipcError("write: wait taken", err)
	}
	poisoned, err := c.checkPoison()
	if err != nil {
		return err
	}
	if poisoned {
		c.log.debugf("write released by poison")
		return ErrChannelPoisoned
	}
	c.metrics.wrote()
	return nil
}

// Read blocks until a writer posts a message and returns it. A Read
// released by Poison returns ErrChannelPoisoned.
func (c *Channel) Read() ([]byte, error) {
	p, err := c.read()
	return p, c.metrics.failed(err)
}

func (c *Channel) read() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrUseAfterClose
	}
	if err := c.gate(); err != nil {
		return nil, err
	}
	c.readLock.Lock()
	defer c.readLock.Unlock()

	c.metrics.block("read", 1)
	err := c.available.Wait()
	c.metrics.block("read", -1)
	if err != nil {
		return nil, ipcError("read: wait available", err)
	}
	return c.consume("read")
}

// consume decodes the message under the read lock and acknowledges it.
// taken is posted even when decoding fails so the writer is not stranded.
func (c *Channel) consume(op string) ([]byte, error) {
	poisoned, err := c.checkPoison()
	if err != nil {
		return nil, err
	}
	var p []byte
	var decodeErr error
	if !poisoned {
		p, decodeErr = c.buf.Read()
	}
	if err := c.taken.Post(); err != nil {
		return nil, ipcError(op+": post taken", err)
	}
	switch {
	case poisoned:
		c.log.debugf("%s released by poison", op)
		return nil, ErrChannelPoisoned
	case decodeErr != nil:
		c.log.errorf("%s: corrupt segment: %v", op, decodeErr)
		return nil, ipcError(op, decodeErr)
	}
	c.metrics.received(op == "select", len(p))
	return p, nil
}

// Send implements transport.Transport.
func (c *Channel) Send(data []byte) error { return c.Write(data) }

// Receive implements transport.Transport.
func (c *Channel) Receive() ([]byte, error) { return c.Read() }
