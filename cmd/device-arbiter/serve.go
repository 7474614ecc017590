package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
	"github.com/linskybing/device-arbiter/internal/capability"
	"github.com/linskybing/device-arbiter/internal/scheduler"
	"github.com/linskybing/device-arbiter/internal/server"
	"github.com/linskybing/device-arbiter/internal/watch"
)

type poolSetter interface {
	SetPool([]scheduler.DeviceDescriptor)
}

func runServe(ctx context.Context, o *options) error {
	config, err := loadConfig(o)
	if err != nil {
		return err
	}
	klog.InfoS("Starting device arbiter", "socket", config.Flags.SocketPath, "fallbackPolicy", config.Flags.FallbackPolicy, "overrideRanking", config.OverrideRanking(), "devices", len(config.Devices))

	chain, err := capability.NewFromConfig(config.Capabilities)
	if err != nil {
		return fmt.Errorf("error creating capability sources: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sched := scheduler.NewFromConfig(config,
		scheduler.WithCapabilityQuerier(chain),
		scheduler.WithMetrics(scheduler.NewMetrics(reg)),
	)
	srv := server.New(sched, scheduler.DescriptorsFromConfig(config), reg)

	r := &reloader{options: o, current: config, srv: srv}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	sigs := watch.Signals(syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-sigs:
				if s == syscall.SIGHUP && o.configFile != "" {
					klog.InfoS("Received SIGHUP, reloading config")
					r.reload()
					continue
				}
				klog.InfoS("Received signal, shutting down", "signal", s)
				cancel()
				return nil
			}
		}
	})

	g.Go(func() error {
		return srv.Serve(ctx, config.Flags.SocketPath)
	})

	if o.watchConfig && o.configFile != "" {
		g.Go(func() error {
			return watchConfig(ctx, o.configFile, r)
		})
	}

	return g.Wait()
}

// reloader swaps the device pool when the config file changes.
type reloader struct {
	*options
	srv poolSetter

	mu      sync.Mutex
	current *spec.Config
}

// reload re-reads the config and swaps in the new device pool. An invalid
// file or a change of ranking mode keeps the previous pool.
func (r *reloader) reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, err := loadConfig(r.options)
	if err != nil {
		klog.ErrorS(err, "Keeping previous device pool", "path", r.configFile)
		return
	}
	if config.OverrideRanking() != r.current.OverrideRanking() {
		klog.InfoS("Ranking mode changed; restart to apply, keeping previous device pool", "overrideRanking", config.OverrideRanking())
		return
	}
	if config.Flags.FallbackPolicy != r.current.Flags.FallbackPolicy {
		klog.InfoS("Fallback policy changes take effect after restart", "fallbackPolicy", config.Flags.FallbackPolicy)
		config.Flags.FallbackPolicy = r.current.Flags.FallbackPolicy
	}
	pool := scheduler.DescriptorsFromConfig(config)
	r.srv.SetPool(pool)
	r.current = config
	klog.InfoS("Reloaded device pool", "devices", len(pool))
}

// watchConfig watches the directory holding path so that atomic replacements
// of the file are seen.
func watchConfig(ctx context.Context, path string, r *reloader) error {
	w, err := watch.Files(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("error creating config watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-w.Events:
			if filepath.Clean(event.Name) != target || !watch.IsReload(event) {
				continue
			}
			klog.InfoS("Config file changed", "path", event.Name, "op", event.Op)
			r.reload()
		case err := <-w.Errors:
			klog.ErrorS(err, "Config watcher error")
		}
	}
}
