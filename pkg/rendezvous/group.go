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
	"errors"
	"fmt"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
)

// ErrDuplicateName is returned by Group.Add for a name already in use.
var ErrDuplicateName = errors.New("rendezvous: duplicate channel name")

// Group tracks the channels a process holds by name so they can be poisoned
// or torn down together, the way a CSP process poisons every channel it
// owns on exit.
type Group struct {
	channels cmap.ConcurrentMap[string, *Channel]
	pool     *ants.Pool
}

// NewGroup returns an empty group whose bulk operations run on up to
// workers goroutines.
func NewGroup(workers int) (*Group, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: group pool: %w", err)
	}
	return &Group{channels: cmap.New[*Channel](), pool: pool}, nil
}

// Add registers c under name.
func (g *Group) Add(name string, c *Channel) error {
	if !g.channels.SetIfAbsent(name, c) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

// Get returns the channel registered under name.
func (g *Group) Get(name string) (*Channel, bool) {
	return g.channels.Get(name)
}

// Remove unregisters name and returns its channel. The channel is not closed.
func (g *Group) Remove(name string) (*Channel, bool) {
	return g.channels.Pop(name)
}

// Len returns the number of registered channels.
func (g *Group) Len() int { return g.channels.Count() }

// Names returns the registered names in sorted order.
func (g *Group) Names() []string {
	names := g.channels.Keys()
	sort.Strings(names)
	return names
}

// PoisonAll poisons every registered channel.
func (g *Group) PoisonAll() error {
	return g.each(g.channels.Items(), func(name string, c *Channel) error {
		if err := c.Poison(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// CloseAll closes the channels this process created, detaches the ones it
// attached to and empties the group.
func (g *Group) CloseAll() error {
	items := g.channels.Items()
	for name := range items {
		g.channels.Remove(name)
	}
	return g.each(items, func(name string, c *Channel) error {
		var err error
		if c.Owner() {
			err = c.Close()
		} else {
			err = c.Detach()
		}
		if err != nil && !errors.Is(err, ErrUseAfterClose) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// Release stops the group's worker pool. The channels are left as they are.
func (g *Group) Release() {
	g.pool.Release()
}

func (g *Group) each(items map[string]*Channel, fn func(string, *Channel) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for name, c := range items {
		wg.Add(1)
		if err := g.pool.Submit(func() {
			defer wg.Done()
			record(fn(name, c))
		}); err != nil {
			wg.Done()
			record(fmt.Errorf("%s: %w", name, err))
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
