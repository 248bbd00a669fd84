package shm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Terminator ends every message under FramingSentinel.
const Terminator byte = '.'

// ErrFramingViolation is returned when a payload cannot be encoded or the
// segment does not contain a well-formed message.
var ErrFramingViolation = errors.New("shm: framing violation")

// Framing selects how a message is delimited inside the payload area.
// Every process attached to a segment must use the same framing.
type Framing uint8

const (
	// FramingSentinel is the legacy format: raw bytes, ending with the first
	// Terminator. Messages must end with Terminator and not contain it earlier.
	FramingSentinel Framing = iota
	// FramingLengthPrefixed delimits by the header's length word and carries
	// arbitrary binary payloads.
	FramingLengthPrefixed
)

func (f Framing) String() string {
	switch f {
	case FramingSentinel:
		return "sentinel"
	case FramingLengthPrefixed:
		return "length"
	}
	return fmt.Sprintf("Framing(%d)", uint8(f))
}

// Decode implements envconfig.Decoder.
func (f *Framing) Decode(value string) error {
	parsed, err := ParseFraming(value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFraming accepts the names printed by String.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sentinel", "legacy":
		return FramingSentinel, nil
	case "length", "length-prefixed":
		return FramingLengthPrefixed, nil
	}
	return 0, fmt.Errorf("shm: unknown framing %q", s)
}

// Check validates p for encoding into a payload area of capacity bytes.
func (f Framing) Check(p []byte, capacity int) error {
	if len(p) > capacity {
		return fmt.Errorf("%w: %d byte payload exceeds %d byte buffer", ErrFramingViolation, len(p), capacity)
	}
	switch f {
	case FramingSentinel:
		if len(p) == 0 || p[len(p)-1] != Terminator {
			return fmt.Errorf("%w: payload must end with %q", ErrFramingViolation, Terminator)
		}
		if i := bytes.IndexByte(p, Terminator); i != len(p)-1 {
			return fmt.Errorf("%w: terminator %q at offset %d before end", ErrFramingViolation, Terminator, i)
		}
		return nil
	case FramingLengthPrefixed:
		return nil
	}
	return fmt.Errorf("%w: unknown framing %d", ErrFramingViolation, f)
}

// decode returns a copy of the message in area. length is the header's
// length word.
func (f Framing) decode(area []byte, length uint64) ([]byte, error) {
	switch f {
	case FramingSentinel:
		i := bytes.IndexByte(area, Terminator)
		if i < 0 {
			return nil, fmt.Errorf("%w: no terminator within %d bytes", ErrFramingViolation, len(area))
		}
		return bytes.Clone(area[:i+1]), nil
	case FramingLengthPrefixed:
		if length > uint64(len(area)) {
			return nil, fmt.Errorf("%w: recorded length %d exceeds %d byte buffer", ErrFramingViolation, length, len(area))
		}
		out := make([]byte, length)
		copy(out, area[:length])
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown framing %d", ErrFramingViolation, f)
}
