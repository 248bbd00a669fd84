// Command rendezvousctl inspects and cleans up rendezvous channels from the
// shell.
//
//	rendezvousctl -manifest channels.yaml -name events status
//	rendezvousctl -keys 100,101,102,103 poison
//	rendezvousctl -manifest channels.yaml -name jobs create
//	rendezvousctl -manifest channels.yaml -listen :8086 health
//
// Commands:
//
//	status   print semaphore values, alternation state and creator liveness
//	poison   poison the channel for every attached process
//	remove   remove whatever resources exist under the keys
//	create   create a channel on fresh keys and record it in the manifest
//	health   serve /live, /ready and /metrics for every manifest channel
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	internalshm "github.com/srediag/shm-rendezvous/internal/shm"
	"github.com/srediag/shm-rendezvous/pkg/health"
	"github.com/srediag/shm-rendezvous/pkg/keys"
	"github.com/srediag/shm-rendezvous/pkg/rendezvous"
)

type cli struct {
	manifest string
	name     string
	keys     string
	listen   string

	log *zap.SugaredLogger
}

func main() {
	os.Exit(execute())
}

// execute returns the exit code so deferred cleanup runs before os.Exit.
func execute() int {
	c := &cli{}
	flag.StringVar(&c.manifest, "manifest", "", "YAML channel manifest")
	flag.StringVar(&c.name, "name", "", "channel name in the manifest")
	flag.StringVar(&c.keys, "keys", "", "explicit keys: poison_guard,available,taken,segment")
	flag.StringVar(&c.listen, "listen", ":8086", "listen address for health")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] status|poison|remove|create|health\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	zl, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = zl.Sync() }()
	c.log = zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.run(ctx, flag.Arg(0), zl); err != nil {
		c.log.Errorf("%s: %v", flag.Arg(0), err)
		return 1
	}
	return 0
}

func (c *cli) run(ctx context.Context, cmd string, zl *zap.Logger) error {
	cfg, err := rendezvous.LoadConfig()
	if err != nil {
		return err
	}
	opts := []rendezvous.Option{rendezvous.WithConfig(cfg), rendezvous.WithLogger(zl)}

	switch cmd {
	case "status":
		return c.withChannel(ctx, opts, func(ch *rendezvous.Channel) error {
			st, err := ch.Status()
			if err != nil {
				return err
			}
			stale, err := ch.Stale(ctx)
			if err != nil {
				return err
			}
			// Channels from "create" outlive their creator; that is expected.
			fmt.Printf("%s creator_exited: %t\n", st, stale)
			return nil
		})
	case "poison":
		return c.withChannel(ctx, opts, func(ch *rendezvous.Channel) error {
			return ch.Poison()
		})
	case "remove":
		k, err := c.resolve()
		if err != nil {
			return err
		}
		return remove(ctx, k, opts)
	case "create":
		return c.create(ctx, opts)
	case "health":
		return c.serveHealth(ctx, opts)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// resolve returns the keys named by -keys, or by -name in -manifest.
func (c *cli) resolve() (keys.Keys, error) {
	if c.keys != "" {
		var k keys.Keys
		if _, err := fmt.Sscanf(c.keys, "%v,%v,%v,%v", &k.PoisonGuard, &k.Available, &k.Taken, &k.Segment); err != nil {
			return keys.Keys{}, fmt.Errorf("bad -keys %q: %w", c.keys, err)
		}
		return k, k.Validate()
	}
	if c.manifest == "" || c.name == "" {
		return keys.Keys{}, errors.New("need -keys, or -manifest and -name")
	}
	m, err := keys.LoadManifest(c.manifest)
	if err != nil {
		return keys.Keys{}, err
	}
	return m.Lookup(c.name)
}

func (c *cli) withChannel(ctx context.Context, opts []rendezvous.Option, fn func(*rendezvous.Channel) error) error {
	k, err := c.resolve()
	if err != nil {
		return err
	}
	ch, err := rendezvous.Attach(ctx, k, opts...)
	if err != nil {
		return err
	}
	return errors.Join(fn(ch), ch.Detach())
}

// remove closes the channel if it is complete, and otherwise deletes each
// resource that still exists, as left behind by a crashed creator.
func remove(ctx context.Context, k keys.Keys, opts []rendezvous.Option) error {
	if ch, err := rendezvous.Attach(ctx, k, opts...); err == nil {
		return ch.Close()
	}
	var errs []error
	for _, key := range k.Semaphores() {
		sem, err := internalshm.OpenSemaphore(internalshm.SemaphoreOptions{Key: key})
		if err == nil {
			err = sem.Remove()
		}
		if err != nil && !internalshm.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := internalshm.RemoveRegionByKey(k.Segment); err != nil && !internalshm.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *cli) create(ctx context.Context, opts []rendezvous.Option) error {
	if c.name == "" {
		return errors.New("create needs -name")
	}
	m := &keys.Manifest{}
	if c.manifest != "" {
		loaded, err := keys.LoadManifest(c.manifest)
		switch {
		case err == nil:
			m = loaded
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
	}
	if _, err := m.Lookup(c.name); err == nil {
		return fmt.Errorf("channel %q already in manifest", c.name)
	}
	ch, err := rendezvous.OpenAllocated(ctx, keys.NewRandomAllocator(), nil, opts...)
	if err != nil {
		return err
	}
	// The resources outlive this process; Detach only drops our handles.
	if err := ch.Detach(); err != nil {
		return err
	}
	if err := m.Add(c.name, ch.Keys()); err != nil {
		return err
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if c.manifest == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	c.log.Infof("created %s: %s", c.name, ch.Keys())
	return os.WriteFile(c.manifest, data, 0o644)
}

func (c *cli) serveHealth(ctx context.Context, opts []rendezvous.Option) error {
	if c.manifest == "" {
		return errors.New("health needs -manifest")
	}
	m, err := keys.LoadManifest(c.manifest)
	if err != nil {
		return err
	}
	metrics, err := rendezvous.NewMetrics("rendezvousctl", nil)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics); err != nil {
		return err
	}
	opts = append(opts, rendezvous.WithMetrics(metrics))

	g, err := rendezvous.NewGroup(0)
	if err != nil {
		return err
	}
	defer g.Release()
	for _, name := range m.Names() {
		ch, err := rendezvous.Attach(ctx, m.Channels[name], opts...)
		if err != nil {
			c.log.Warnf("skip %s: %v", name, err)
			continue
		}
		if err := g.Add(name, ch); err != nil {
			return err
		}
	}
	// Attached descriptors are detached, never closed.
	defer func() {
		if err := g.CloseAll(); err != nil {
			c.log.Warnf("detach: %v", err)
		}
	}()

	mux := http.NewServeMux()
	hc := health.NewHandler(g)
	mux.Handle("/live", hc)
	mux.Handle("/ready", hc)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: c.listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	c.log.Infof("serving health for %d channels on %s", g.Len(), c.listen)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
