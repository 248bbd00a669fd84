// Package transport defines the message transport interface rendezvous
// channels satisfy, and helpers that work on any implementation.
package transport

import (
	"errors"
)

// Transport moves whole messages between two parties.
type Transport interface {
	// Send delivers data, blocking until the peer has taken it for
	// synchronous transports.
	Send(data []byte) error
	// Receive returns the next message.
	Receive() ([]byte, error)
	// Close tears the transport down.
	Close() error
}

// Poisoner is implemented by transports with a cooperative shutdown signal.
type Poisoner interface {
	Poison() error
}

// Relay copies messages from src to dst until either side fails, then
// poisons the other side if it can, so the shutdown propagates down a
// pipeline. It returns the number of messages relayed and the error that
// stopped it.
func Relay(dst, src Transport) (int, error) {
	n := 0
	for {
		msg, err := src.Receive()
		if err != nil {
			return n, errors.Join(err, poison(dst))
		}
		if err := dst.Send(msg); err != nil {
			return n, errors.Join(err, poison(src))
		}
		n++
	}
}

func poison(t Transport) error {
	if p, ok := t.(Poisoner); ok {
		return p.Poison()
	}
	return nil
}
