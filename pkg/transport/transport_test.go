package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-rendezvous/pkg/keys"
	"github.com/srediag/shm-rendezvous/pkg/rendezvous"
)

var (
	_ Transport = (*rendezvous.Channel)(nil)
	_ Poisoner  = (*rendezvous.Channel)(nil)
)

func openPair(t *testing.T, alloc keys.Allocator) (*rendezvous.Channel, *rendezvous.Channel) {
	t.Helper()
	ctx := context.Background()
	c, err := rendezvous.OpenAllocated(ctx, alloc, nil)
	if errors.Is(err, rendezvous.ErrUnsupported) {
		t.Skipf("platform not implemented: %v", err)
	}
	require.NoError(t, err)
	peer, err := rendezvous.Attach(ctx, c.Keys())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = peer.Detach()
	})
	return c, peer
}

func TestRelayPropagatesPoison(t *testing.T) {
	alloc := keys.NewRandomAllocator()
	in, inPeer := openPair(t, alloc)
	out, outPeer := openPair(t, alloc)

	type relayed struct {
		n   int
		err error
	}
	done := make(chan relayed, 1)
	go func() {
		n, err := Relay(out, inPeer)
		done <- relayed{n, err}
	}()

	for _, msg := range []string{"a.", "b.", "c."} {
		go func() { _ = in.Send([]byte(msg)) }()
		got, err := outPeer.Receive()
		require.NoError(t, err)
		assert.Equal(t, msg, string(got))
	}

	require.NoError(t, in.Poison())
	r := <-done
	assert.Equal(t, 3, r.n)
	assert.ErrorIs(t, r.err, rendezvous.ErrChannelPoisoned)

	poisoned, err := outPeer.CheckPoison()
	require.NoError(t, err)
	assert.True(t, poisoned, "the downstream channel is poisoned by the relay")
}

type sliceTransport struct {
	msgs [][]byte
	sent [][]byte
}

func (s *sliceTransport) Send(p []byte) error {
	s.sent = append(s.sent, p)
	return nil
}

func (s *sliceTransport) Receive() ([]byte, error) {
	if len(s.msgs) == 0 {
		return nil, errors.New("drained")
	}
	p := s.msgs[0]
	s.msgs = s.msgs[1:]
	return p, nil
}

func (s *sliceTransport) Close() error { return nil }

func TestRelayWithoutPoisoner(t *testing.T) {
	src := &sliceTransport{msgs: [][]byte{[]byte("x"), []byte("y")}}
	dst := &sliceTransport{}
	n, err := Relay(dst, src)
	assert.EqualError(t, err, "drained")
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("y")}, dst.sent)
}
