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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	internalshm "github.com/srediag/shm-rendezvous/internal/shm"
	"github.com/srediag/shm-rendezvous/pkg/keys"
	"github.com/srediag/shm-rendezvous/pkg/shm"
)

type ChannelTestSuite struct {
	suite.Suite
	owner *Channel
	peer  *Channel
}

func (s *ChannelTestSuite) SetupTest() {
	s.owner = openTestChannel(s.T())
	s.peer = attachTestChannel(s.T(), s.owner)
}

func (s *ChannelTestSuite) TestRoundTrip() {
	done := goWrite(s.owner, "ab.")
	p, err := s.peer.Read()
	s.Require().NoError(err)
	s.Equal("ab.", string(p))
	s.Require().NoError(await(s.T(), done))
	s.Equal(3, s.owner.Len())
}

func (s *ChannelTestSuite) TestReadsInOrder() {
	msgs := []string{"one.", "two.", "three."}
	go func() {
		for _, m := range msgs {
			if err := s.owner.Write([]byte(m)); err != nil {
				return
			}
		}
	}()
	for _, m := range msgs {
		p, err := s.peer.Read()
		s.Require().NoError(err)
		s.Equal(m, string(p))
	}
}

func (s *ChannelTestSuite) TestWriteWaitsForReader() {
	done := goWrite(s.owner, "hello.")
	requireBlocked(s.T(), done)

	p, err := s.peer.Read()
	s.Require().NoError(err)
	s.Equal("hello.", string(p))
	s.Require().NoError(await(s.T(), done))
}

func (s *ChannelTestSuite) TestReadWaitsForWriter() {
	got := goRead(s.peer)
	requireBlocked(s.T(), got)

	s.Require().NoError(s.owner.Write([]byte("late.")))
	r := await(s.T(), got)
	s.Require().NoError(r.err)
	s.Equal("late.", string(r.p))
}

func (s *ChannelTestSuite) TestExactlyOneReaderTakesAMessage() {
	writer := attachTestChannel(s.T(), s.owner)
	results := make(chan result, 2)
	for _, c := range []*Channel{s.owner, s.peer} {
		go func() {
			p, err := c.Read()
			results <- result{p, err}
		}()
	}

	s.Require().NoError(writer.Write([]byte("only once.")))
	first := await[result](s.T(), results)
	s.Require().NoError(first.err)
	s.Equal("only once.", string(first.p))
	requireBlocked[result](s.T(), results)

	s.Require().NoError(writer.Poison())
	second := await[result](s.T(), results)
	s.ErrorIs(second.err, ErrChannelPoisoned)
}

func (s *ChannelTestSuite) TestFramingViolation() {
	for _, p := range []string{"", "no terminator", "a.b.", string(make([]byte, DefaultConfig().BufferSize+1))} {
		s.ErrorIs(s.owner.Write([]byte(p)), ErrFramingViolation, "payload %q", p)
	}
	st, err := s.owner.Status()
	s.Require().NoError(err)
	s.Equal(0, st.Available, "rejected writes must not post")
}

func (s *ChannelTestSuite) TestOpenCollisionKeepsExistingChannel() {
	_, err := Open(context.Background(), s.owner.Keys())
	s.Require().ErrorIs(err, ErrResourceCreationFailed)
	s.True(internalshm.IsExist(err))

	done := goWrite(s.owner, "still here.")
	p, err := s.peer.Read()
	s.Require().NoError(err)
	s.Equal("still here.", string(p))
	s.Require().NoError(await(s.T(), done))
}

func (s *ChannelTestSuite) TestOpenRollsBackOnFailure() {
	fresh, err := testAllocator.Allocate()
	s.Require().NoError(err)
	clash := fresh
	clash.Segment = s.owner.Keys().Segment

	_, err = Open(context.Background(), clash)
	s.Require().ErrorIs(err, ErrResourceCreationFailed)

	// The semaphores created before the segment clash must be gone again.
	c, err := Open(context.Background(), fresh)
	s.Require().NoError(err)
	s.Require().NoError(c.Close())
}

func (s *ChannelTestSuite) TestAttachMissing() {
	k, err := testAllocator.Allocate()
	s.Require().NoError(err)
	_, err = Attach(context.Background(), k)
	s.ErrorIs(err, ErrResourceCreationFailed)

	_, err = Open(context.Background(), keys.Keys{PoisonGuard: 1, Available: 1, Taken: 2, Segment: 3})
	s.ErrorIs(err, ErrResourceCreationFailed)
}

func (s *ChannelTestSuite) TestUseAfterClose() {
	s.Require().NoError(s.owner.Close())
	s.True(s.owner.IsClosed())

	s.ErrorIs(s.owner.Close(), ErrUseAfterClose)
	s.ErrorIs(s.owner.Write([]byte("x.")), ErrUseAfterClose)
	_, err := s.owner.Read()
	s.ErrorIs(err, ErrUseAfterClose)
	s.ErrorIs(s.owner.Enable(), ErrUseAfterClose)
	s.ErrorIs(s.owner.Disable(), ErrUseAfterClose)
	_, err = s.owner.Select()
	s.ErrorIs(err, ErrUseAfterClose)
	s.ErrorIs(s.owner.Poison(), ErrUseAfterClose)
	_, err = s.owner.CheckPoison()
	s.ErrorIs(err, ErrUseAfterClose)
	_, err = s.owner.Status()
	s.ErrorIs(err, ErrUseAfterClose)

	// The peer still holds its descriptor but the resources are gone.
	s.ErrorIs(s.peer.Write([]byte("x.")), ErrUseAfterClose)
}

func (s *ChannelTestSuite) TestCloseReleasesBlockedReader() {
	reader := goRead(s.peer)
	requireBlocked(s.T(), reader)

	s.Require().NoError(s.owner.Close())
	r := await(s.T(), reader)
	s.ErrorIs(r.err, ErrUseAfterClose)
}

func (s *ChannelTestSuite) TestCloseReleasesBlockedWriter() {
	writer := goWrite(s.peer, "never read.")
	requireBlocked(s.T(), writer)

	s.Require().NoError(s.owner.Close())
	s.ErrorIs(await(s.T(), writer), ErrUseAfterClose)
}

func (s *ChannelTestSuite) TestDetachLeavesResources() {
	other := attachTestChannel(s.T(), s.owner)
	s.Require().NoError(other.Detach())
	s.ErrorIs(other.Detach(), ErrUseAfterClose)
	s.ErrorIs(other.Write([]byte("x.")), ErrUseAfterClose)

	done := goWrite(s.owner, "alive.")
	p, err := s.peer.Read()
	s.Require().NoError(err)
	s.Equal("alive.", string(p))
	s.Require().NoError(await(s.T(), done))
}

func (s *ChannelTestSuite) TestStatus() {
	st, err := s.owner.Status()
	s.Require().NoError(err)
	s.Equal(s.owner.Keys(), st.Keys)
	s.Equal(1, st.PoisonGuard)
	s.Equal(0, st.Available)
	s.Equal(0, st.Taken)
	s.Equal("idle", st.State)
	s.False(st.Poisoned)
	s.Equal("sentinel", st.Framing)
	s.Contains(st.String(), "poisoned: false")
	s.Equal(os.Getpid(), st.CreatorPID)
	s.Equal(2, st.Attached, "owner and peer")

	done := goWrite(s.owner, "pending.")
	s.Eventually(func() bool {
		st, err := s.peer.Status()
		return err == nil && st.Available == 1 && st.WritersBlocked == 1 && st.Length == 8
	}, timeout, settle/10)

	_, err = s.peer.Read()
	s.Require().NoError(err)
	s.Require().NoError(await(s.T(), done))

	st, err = s.owner.Status()
	s.Require().NoError(err)
	s.Equal(os.Getpid(), st.LastPID)
	s.Contains(st.String(), "attached: 2")
}

func (s *ChannelTestSuite) TestStale() {
	stale, err := s.peer.Stale(context.Background())
	s.Require().NoError(err)
	s.False(stale, "the creator is this test process")
	s.True(s.owner.Owner())
	s.False(s.peer.Owner())
}

func TestChannelTestSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}

func TestLengthPrefixedCarriesBinary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 64
	cfg.Framing = shm.FramingLengthPrefixed
	owner := openTestChannel(t, WithConfig(cfg))
	peer := attachTestChannel(t, owner, WithConfig(cfg))
	assert.Equal(t, 64, peer.Cap(), "attach adopts the creator's size")

	payload := []byte{0, '.', 0xff, '.', 1}
	done := goRun(func() error { return owner.Write(payload) })
	p, err := peer.Read()
	require.NoError(t, err)
	assert.Equal(t, payload, p)
	require.NoError(t, await(t, done))

	assert.ErrorIs(t, owner.Write(make([]byte, 65)), ErrFramingViolation)
}
