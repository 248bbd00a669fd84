package keys

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysValidate(t *testing.T) {
	assert.NoError(t, Keys{1, 2, 3, 4}.Validate())
	assert.NoError(t, Keys{1, 2, 3, 1}.Validate(), "segment shares the key namespace with nothing")
	assert.ErrorIs(t, Keys{0, 2, 3, 4}.Validate(), ErrInvalidKeys)
	assert.ErrorIs(t, Keys{1, 2, 3, 0}.Validate(), ErrInvalidKeys)
	assert.ErrorIs(t, Keys{1, 1, 3, 4}.Validate(), ErrInvalidKeys)
	assert.ErrorIs(t, Keys{1, 2, 2, 4}.Validate(), ErrInvalidKeys)
}

func TestRandomAllocatorUnique(t *testing.T) {
	a := NewRandomAllocator()
	seen := make(map[int32]bool)
	for i := 0; i < 256; i++ {
		k, err := a.Allocate()
		require.NoError(t, err)
		for _, key := range []int32{k.PoisonGuard, k.Available, k.Taken, k.Segment} {
			assert.False(t, seen[key], "key %#x issued twice", key)
			assert.LessOrEqual(t, key, int32(keyMask))
			assert.NotZero(t, key)
			seen[key] = true
		}
	}
}

func TestRandomAllocatorSkipsDuplicates(t *testing.T) {
	same := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	ids := []uuid.UUID{same, same, same,
		uuid.MustParse("00000000-0000-4000-8000-000000000002"),
		uuid.MustParse("00000000-0000-4000-8000-000000000003"),
		uuid.MustParse("00000000-0000-4000-8000-000000000004")}
	a := NewRandomAllocator()
	a.newID = func() uuid.UUID {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	k, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, Keys{1, 2, 3, 4}, k)

	a.Release(k)
	ids = []uuid.UUID{same, uuid.MustParse("00000000-0000-4000-8000-000000000002"),
		uuid.MustParse("00000000-0000-4000-8000-000000000003"),
		uuid.MustParse("00000000-0000-4000-8000-000000000004")}
	k, err = a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, Keys{1, 2, 3, 4}, k, "released keys are reissued")
}

func TestSequentialAllocator(t *testing.T) {
	a := NewSequentialAllocator(0x5000)
	k1, err := a.Allocate()
	require.NoError(t, err)
	k2, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, Keys{0x5000, 0x5001, 0x5002, 0x5003}, k1)
	assert.Equal(t, int32(0x5004), k2.PoisonGuard)

	_, err = NewSequentialAllocator(-3).Allocate()
	assert.ErrorIs(t, err, ErrInvalidKeys)
}
