package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramingSentinelCheck(t *testing.T) {
	f := FramingSentinel
	assert.NoError(t, f.Check([]byte("ab."), 8))
	assert.NoError(t, f.Check([]byte("."), 1))
	assert.ErrorIs(t, f.Check([]byte("ab"), 8), ErrFramingViolation)
	assert.ErrorIs(t, f.Check(nil, 8), ErrFramingViolation)
	assert.ErrorIs(t, f.Check([]byte("a.b."), 8), ErrFramingViolation)
	assert.ErrorIs(t, f.Check([]byte("abcdefgh."), 8), ErrFramingViolation)
}

func TestFramingSentinelDecode(t *testing.T) {
	area := make([]byte, 16)
	copy(area, "ab.stale.")
	got, err := FramingSentinel.decode(area, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab."), got)

	area[0] = 'z'
	assert.Equal(t, []byte("ab."), got, "decoded message must not alias the segment")

	_, err = FramingSentinel.decode(make([]byte, 16), 0)
	assert.ErrorIs(t, err, ErrFramingViolation)
}

func TestFramingLengthPrefixed(t *testing.T) {
	f := FramingLengthPrefixed
	payload := []byte{0x00, '.', 0xff, '.'}
	assert.NoError(t, f.Check(payload, 4))
	assert.NoError(t, f.Check(nil, 4))
	assert.ErrorIs(t, f.Check(make([]byte, 5), 4), ErrFramingViolation)

	area := make([]byte, 8)
	copy(area, payload)
	got, err := f.decode(area, uint64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = f.decode(area, 9)
	assert.ErrorIs(t, err, ErrFramingViolation)
}

func TestParseFraming(t *testing.T) {
	for in, want := range map[string]Framing{
		"":                FramingSentinel,
		"sentinel":        FramingSentinel,
		"Legacy":          FramingSentinel,
		"length":          FramingLengthPrefixed,
		"length-prefixed": FramingLengthPrefixed,
	} {
		got, err := ParseFraming(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFraming("base64")
	assert.Error(t, err)

	var f Framing
	require.NoError(t, f.Decode("length"))
	assert.Equal(t, FramingLengthPrefixed, f)
	assert.Equal(t, "length", f.String())
	assert.Equal(t, "Framing(7)", Framing(7).String())
}
