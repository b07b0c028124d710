package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wonop-io/rushd/internal/ignore"
	"github.com/wonop-io/rushd/internal/stackspec"
)

const (
	// launchStagger gives a component's dependencies a head start before
	// the next priority tier comes up.
	launchStagger = 2 * time.Second
	// launchPollTick is the wake-up interval of waitForChangeOrExit's
	// select loop; the tick itself carries no work.
	launchPollTick = 10 * time.Millisecond
	// launchJoinTimeout bounds how long Launch waits for every supervised
	// container to exit after a rebuild or shutdown is triggered, before
	// it force-removes whatever is still running.
	launchJoinTimeout = 5 * time.Second
)

// Launch runs the full stack locally: build every image, start each
// component's container in dependency order, and rebuild the whole cycle
// whenever a watched source file changes. It blocks until ctx is
// cancelled or an interrupt signal arrives, tearing down every container
// and the bridge network before returning.
func (r *Reactor) Launch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.cleanContainers(ctx)
	if err := r.createNetwork(ctx); err != nil {
		slog.WarnContext(ctx, "reactor.Launch: create network failed, continuing", "error", err)
	}

	watcher, err := r.newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for ctx.Err() == nil {
		if err := r.Build(ctx); err != nil {
			slog.ErrorContext(ctx, "reactor.Launch: build failed, waiting for a fix", "error", err)
			if !r.waitForChangeOrExit(ctx, watcher) {
				break
			}
			continue
		}

		if !r.runCycle(ctx, watcher) {
			break
		}
	}

	r.cleanContainers(context.Background())
	if err := r.deleteNetwork(context.Background()); err != nil {
		slog.WarnContext(ctx, "reactor.Launch: delete network failed", "error", err)
	}
	return nil
}

// runCycle starts every component respecting dependency-derived launch
// priority, waits for a file change or shutdown signal, then tears the
// cycle's containers down. It returns false when the caller should stop
// looping (ctx was cancelled), true to trigger an immediate rebuild.
func (r *Reactor) runCycle(ctx context.Context, watcher *fsnotify.Watcher) bool {
	cycleCtx, cancelCycle := context.WithCancel(ctx)
	defer cancelCycle()

	var wg sync.WaitGroup
	for _, tier := range r.launchOrder() {
		for _, pair := range tier {
			wg.Add(1)
			go func(pair specImage) {
				defer wg.Done()
				slog.InfoContext(ctx, "reactor.Launch: starting", "component", pair.Spec.ComponentName)
				if err := r.builder.Run(cycleCtx, pair.Spec, pair.Image, r.config.NetworkName); err != nil {
					slog.ErrorContext(ctx, "reactor.Launch: component exited", "component", pair.Spec.ComponentName, "error", err)
				}
			}(pair)
		}
		select {
		case <-time.After(launchStagger):
		case <-cycleCtx.Done():
		}
	}

	rebuild := r.waitForChangeOrExit(ctx, watcher)
	cancelCycle()

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(launchJoinTimeout):
		slog.WarnContext(ctx, "reactor.Launch: containers didn't exit in time, forcing removal")
		r.cleanContainers(context.Background())
		<-joined
	}

	r.cleanContainers(context.Background())
	return rebuild
}

// launchOrder groups imageSpecs() into tiers by ascending dependency-chain
// length (spec.md's priority), so Launch starts dependencies before the
// components that depend on them.
func (r *Reactor) launchOrder() [][]specImage {
	priority := launchPriority(r.specs)

	pairs := r.imageSpecs()
	byPriority := map[int][]specImage{}
	var levels []int
	for _, pair := range pairs {
		p := priority[pair.Spec.ComponentName]
		if _, ok := byPriority[p]; !ok {
			levels = append(levels, p)
		}
		byPriority[p] = append(byPriority[p], pair)
	}
	sort.Ints(levels)

	tiers := make([][]specImage, 0, len(levels))
	for _, lvl := range levels {
		tiers = append(tiers, byPriority[lvl])
	}
	return tiers
}

// launchPriority computes each component's longest dependency-chain
// length via DFS over depends_on, so components with no dependencies get
// priority 1 and every dependent gets a priority strictly greater than
// every one of its dependencies.
func launchPriority(specs []*stackspec.ComponentSpec) map[string]int {
	graph := make(map[string][]string, len(specs))
	for _, s := range specs {
		graph[s.ComponentName] = s.DependsOn
	}
	priority := make(map[string]int, len(specs))
	for name := range graph {
		priority[name] = longestDependencyChain(graph, name)
	}
	return priority
}

func longestDependencyChain(graph map[string][]string, start string) int {
	type frame struct {
		name   string
		length int
	}
	stack := []frame{{start, 1}}
	max := 1
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.length > max {
			max = f.length
		}
		// A chain longer than the component count must revisit a
		// component, so the bound stops traversal around a cycle.
		if f.length >= len(graph) {
			continue
		}
		for _, dep := range graph[f.name] {
			stack = append(stack, frame{dep, f.length + 1})
		}
	}
	return max
}

// waitForChangeOrExit blocks until either a non-ignored file change is
// observed or ctx is cancelled, polling at launchPollTick. It returns true
// on a file change (caller should rebuild), false on cancellation.
func (r *Reactor) waitForChangeOrExit(ctx context.Context, watcher *fsnotify.Watcher) bool {
	ticker := time.NewTicker(launchPollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if r.ignored == nil || !r.ignored.Ignored(event.Name) {
				slog.InfoContext(ctx, "reactor.Launch: file changed, rebuilding", "path", event.Name)
				return true
			}
		case err, ok := <-watcher.Errors:
			if ok {
				slog.WarnContext(ctx, "reactor.Launch: watch error", "error", err)
			}
		case <-ticker.C:
		}
	}
}

// newWatcher recursively registers every directory under the product
// directory with fsnotify, skipping anything the ignore matcher excludes.
func (r *Reactor) newWatcher() (*fsnotify.Watcher, error) {
	matcher, err := ignore.Load(r.productDirectory)
	if err != nil {
		return nil, fmt.Errorf("reactor: load ignore patterns: %w", err)
	}
	r.ignored = matcher

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reactor: create watcher: %w", err)
	}

	err = filepath.WalkDir(r.productDirectory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if matcher.Ignored(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("reactor: watch %s: %w", r.productDirectory, err)
	}
	return watcher, nil
}

// createNetwork creates the product's bridge network. Failure is
// tolerated (the network may already exist from a prior run).
func (r *Reactor) createNetwork(ctx context.Context) error {
	return runCommand(ctx, "reactor.createNetwork", r.toolchain.Docker(), "network", "create", "-d", "bridge", r.config.NetworkName)
}

// deleteNetwork removes the product's bridge network. Failure is
// tolerated (containers from a previous cycle may still reference it).
func (r *Reactor) deleteNetwork(ctx context.Context) error {
	return runCommand(ctx, "reactor.deleteNetwork", r.toolchain.Docker(), "network", "rm", r.config.NetworkName)
}

// cleanContainers removes every component's named container, best-effort.
func (r *Reactor) cleanContainers(ctx context.Context) {
	for _, pair := range r.imageSpecs() {
		if err := r.builder.Stop(ctx, pair.Image); err != nil {
			slog.WarnContext(ctx, "reactor.Launch: clean failed, continuing", "component", pair.Spec.ComponentName, "error", err)
		}
	}
}
