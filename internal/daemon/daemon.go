// Package daemon runs the background reconcile loop: a periodic full
// sync against the replica, a live subscription to its change feed,
// and a watch on the exercise config so edits take effect without a
// restart.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
	"github.com/lucas-martinati/OneUp-sub000/internal/store"
	"github.com/lucas-martinati/OneUp-sub000/internal/syncengine"
)

// configDebounce coalesces the editor write bursts fsnotify reports
// into a single reload.
const configDebounce = 500 * time.Millisecond

// Config holds daemon settings.
type Config struct {
	// SyncInterval between full reconcile passes (default 5m).
	SyncInterval time.Duration

	// ExercisesPath is the YAML exercise config to watch. Empty
	// disables the watch.
	ExercisesPath string

	// Logger for daemon activity. nil gets a stderr logger.
	Logger *log.Logger
}

// Daemon owns the background loops. Start spawns them; Stop waits for
// them to drain.
type Daemon struct {
	store  *store.Store
	engine *syncengine.Engine
	config Config
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribe func()
}

// New creates a daemon around an initialized store and sync engine.
func New(st *store.Store, engine *syncengine.Engine, config Config) *Daemon {
	if config.SyncInterval <= 0 {
		config.SyncInterval = 5 * time.Minute
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:  st,
		engine: engine,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the sync loop, the change feed, and the config
// watch. It syncs once immediately so a freshly started daemon
// converges without waiting a full interval.
func (d *Daemon) Start() error {
	d.logger.Printf("Daemon starting (sync every %s)", d.config.SyncInterval)

	unsubscribe, err := d.engine.Subscribe(d.ctx,
		func() *progress.State { return d.store.State() },
		func(merged *progress.State) {
			if err := d.store.Adopt(d.ctx, merged); err != nil {
				d.logger.Printf("Failed to adopt remote change: %v", err)
			}
		})
	if err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}
	d.unsubscribe = unsubscribe

	d.wg.Add(1)
	go d.syncLoop()

	if d.config.ExercisesPath != "" {
		if err := d.watchConfig(); err != nil {
			d.logger.Printf("Config watch disabled: %v", err)
		}
	}
	return nil
}

// Stop shuts down all loops and waits for them.
func (d *Daemon) Stop() {
	d.logger.Println("Daemon stopping")
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	d.syncOnce()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.syncOnce()
		}
	}
}

func (d *Daemon) syncOnce() {
	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	merged, err := d.engine.Sync(ctx, d.store.State())
	if err != nil {
		d.logger.Printf("Sync failed: %v", err)
		return
	}
	if err := d.store.Adopt(ctx, merged); err != nil {
		d.logger.Printf("Failed to adopt sync result: %v", err)
	}
}

// watchConfig watches the directory holding the exercise config.
// Watching the directory instead of the file survives the
// rename-into-place dance most editors do on save.
func (d *Daemon) watchConfig() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(d.config.ExercisesPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(d.config.ExercisesPath)
	d.logger.Printf("Watching exercise config %s", target)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer watcher.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-d.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(configDebounce, d.reloadExercises)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Printf("Watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (d *Daemon) reloadExercises() {
	defs, err := exercise.Load(d.config.ExercisesPath)
	if err != nil {
		d.logger.Printf("Ignoring bad exercise config: %v", err)
		return
	}
	d.store.SetExercises(defs)
	d.logger.Printf("Reloaded %d exercise definitions", len(defs))
}
