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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)
	defer g.Release()

	in := openTestChannel(t)
	out := openTestChannel(t)
	inPeer := attachTestChannel(t, in)
	outPeer := attachTestChannel(t, out)

	require.NoError(t, g.Add("out", out))
	require.NoError(t, g.Add("in", in))
	require.NoError(t, g.Add("in-peer", inPeer))
	assert.ErrorIs(t, g.Add("in", out), ErrDuplicateName)
	assert.Equal(t, []string{"in", "in-peer", "out"}, g.Names())
	assert.Equal(t, 3, g.Len())

	c, ok := g.Get("out")
	require.True(t, ok)
	assert.Same(t, out, c)

	// A reader blocked on a grouped channel is released by PoisonAll.
	got := goRead(outPeer)
	requireBlocked(t, got)
	require.NoError(t, g.PoisonAll())
	assert.ErrorIs(t, await(t, got).err, ErrChannelPoisoned)
	for _, peer := range []*Channel{inPeer, outPeer} {
		poisoned, err := peer.CheckPoison()
		require.NoError(t, err)
		assert.True(t, poisoned)
	}

	removed, ok := g.Remove("in-peer")
	require.True(t, ok)
	assert.Same(t, inPeer, removed)

	require.NoError(t, g.CloseAll())
	assert.Zero(t, g.Len())
	assert.True(t, in.IsClosed())
	assert.True(t, out.IsClosed())
	assert.False(t, inPeer.IsClosed(), "removed channels are left alone")
}

func TestGroupCloseAllDetachesAttached(t *testing.T) {
	g, err := NewGroup(0)
	require.NoError(t, err)
	defer g.Release()

	owner := openTestChannel(t)
	peer, err := Attach(t.Context(), owner.Keys())
	require.NoError(t, err)
	require.NoError(t, g.Add("peer", peer))

	require.NoError(t, g.CloseAll())
	assert.True(t, peer.IsClosed())
	assert.False(t, owner.IsClosed(), "detaching leaves the resources")
	_, err = owner.Status()
	require.NoError(t, err)
}
