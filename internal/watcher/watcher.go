// Package watcher observes the task file for changes and drives repeated
// sync runs: debounced, serialized, with coalesced follow-ups and growing
// backoff when runs keep failing.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

// RunFunc executes one sync run. A non-nil error is logged and watching
// continues; it never stops the driver.
type RunFunc func(ctx context.Context) error

// Options tunes the driver.
type Options struct {
	// Debounce is the quiet period after the last change event before a
	// run starts.
	Debounce time.Duration
	// BackoffCap bounds the delay inserted between runs that keep failing,
	// so a broken board does not cause a tight retry loop.
	BackoffCap time.Duration
}

// Driver watches one task file and triggers the run function. A burst of
// change events schedules a single run once the file has been quiet for the
// debounce window; events that arrive while a run is in flight coalesce
// into at most one queued follow-up run, so there is no unbounded backlog.
type Driver struct {
	path string
	run  RunFunc
	opts Options

	// wake carries "the file settled" signals from the watch goroutine to
	// the run loop; capacity 1 gives the coalescing behavior.
	wake chan struct{}
}

// New builds a driver for the task file at path.
func New(path string, run RunFunc, opts Options) (*Driver, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 400 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("task file %s: %w", path, err)
	}
	return &Driver{
		path: path,
		run:  run,
		opts: opts,
		wake: make(chan struct{}, 1),
	}, nil
}

// Run watches until ctx is cancelled. An in-flight sync run finishes before
// Run returns; the run function sees the same cancellation and may abort at
// its next safe checkpoint.
func (d *Driver) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the parent directory so atomic replaces (write temp + rename)
	// are still observed.
	dir := filepath.Dir(d.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go d.watchLoop(ctx, fsw)

	ui.Infof("Watching %s (debounce %s)", d.path, d.opts.Debounce)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
		}

		if failures > 0 {
			// Persistently failing runs back off up to the cap instead of
			// thrashing on a broken board.
			delay := backoffDelay(failures, d.opts.BackoffCap)
			debug.Logf("watch: backing off %s after %d failed runs", delay, failures)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}

		start := time.Now()
		if err := d.run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			ui.Errorf("sync run failed: %v", err)
			continue
		}
		failures = 0
		debug.Logf("watch: run finished in %s", time.Since(start).Round(time.Millisecond))
	}
}

// watchLoop consumes filesystem events and debounces them: every relevant
// event resets a quiet-period timer, and only the timer firing signals the
// run loop. Editors that write several times in quick succession therefore
// trigger exactly one run.
func (d *Driver) watchLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	base := filepath.Base(d.path)

	// The timer starts disarmed; the first relevant event arms it.
	quiet := time.NewTimer(d.opts.Debounce)
	if !quiet.Stop() {
		<-quiet.C
	}
	defer quiet.Stop()

	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debug.Logf("watch: %s %s", ev.Op, ev.Name)
			// Restart the quiet period. Stop+drain before Reset since this
			// goroutine is the only receiver on quiet.C.
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(d.opts.Debounce)
		case <-quiet.C:
			select {
			case d.wake <- struct{}{}:
			default: // a run is already queued; coalesce
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			ui.Warnf("watch error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// backoffDelay doubles per consecutive failure, starting at one second,
// bounded by limit.
func backoffDelay(failures int, limit time.Duration) time.Duration {
	if failures > 10 {
		return limit
	}
	d := time.Second << (failures - 1)
	if d > limit {
		return limit
	}
	return d
}
