// Package health exposes rendezvous channels to liveness and readiness checks.
package health

import (
	"errors"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shm-rendezvous/pkg/rendezvous"
)

// DefaultTimeout bounds a single readiness check.
const DefaultTimeout = time.Second

// ChannelLiveness fails once the channel is poisoned or closed.
func ChannelLiveness(c *rendezvous.Channel) healthcheck.Check {
	return func() error {
		poisoned, err := c.CheckPoison()
		if err != nil {
			return err
		}
		if poisoned {
			return rendezvous.ErrChannelPoisoned
		}
		return nil
	}
}

// ChannelReadiness fails when the channel's IPC resources are gone or
// unreadable. A channel whose creator exited is still ready; see
// rendezvous.Channel.Stale.
func ChannelReadiness(c *rendezvous.Channel) healthcheck.Check {
	return healthcheck.Timeout(func() error {
		_, err := c.Status()
		return err
	}, DefaultTimeout)
}

// Register adds liveness and readiness checks for c under name.
func Register(h healthcheck.Handler, name string, c *rendezvous.Channel) {
	h.AddLivenessCheck(name, ChannelLiveness(c))
	h.AddReadinessCheck(name, ChannelReadiness(c))
}

// RegisterGroup adds checks that cover whatever channels g holds when the
// check runs.
func RegisterGroup(h healthcheck.Handler, name string, g *rendezvous.Group) {
	h.AddLivenessCheck(name, groupCheck(g, ChannelLiveness))
	h.AddReadinessCheck(name, groupCheck(g, ChannelReadiness))
}

// NewHandler returns a handler covering g.
func NewHandler(g *rendezvous.Group) healthcheck.Handler {
	h := healthcheck.NewHandler()
	RegisterGroup(h, "rendezvous", g)
	return h
}

func groupCheck(g *rendezvous.Group, check func(*rendezvous.Channel) healthcheck.Check) healthcheck.Check {
	return func() error {
		var errs []error
		for _, name := range g.Names() {
			c, ok := g.Get(name)
			if !ok {
				continue
			}
			if err := check(c)(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		return errors.Join(errs...)
	}
}
