package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
	"github.com/lucas-martinati/OneUp-sub000/internal/remote"
	"github.com/lucas-martinati/OneUp-sub000/internal/store"
	"github.com/lucas-martinati/OneUp-sub000/internal/syncengine"
)

var testIdentity = &remote.StaticIdentity{UserID: "user-1", Name: "Lucas"}

func setupDaemon(t *testing.T, mem *remote.Memory, configPath string) (*Daemon, *store.Store) {
	t.Helper()
	silent := log.New(io.Discard, "", 0)

	db, err := store.Open(filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db, exercise.Default(), silent)
	st.SetClock(func() time.Time {
		return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	})
	if err := st.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	engine := syncengine.New(mem, testIdentity, silent)
	d := New(st, engine, Config{
		SyncInterval:  time.Hour,
		ExercisesPath: configPath,
		Logger:        silent,
	})
	return d, st
}

func TestStartSyncsImmediately(t *testing.T) {
	mem := remote.NewMemory()

	ts := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	seeded := progress.NewState(2025)
	seeded.IsSetup = true
	seeded.UserStartDate = "2025-01-01"
	seeded.Completions["2025-03-09"] = progress.DayRecord{
		"pushups": {IsCompleted: true, Timestamp: &ts, TimeOfDay: progress.Morning},
	}
	if _, err := mem.SaveProgress(context.Background(), "user-1", &remote.Envelope{State: seeded, WriteToken: "other"}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	d, st := setupDaemon(t, mem, "")
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	deadline := time.After(5 * time.Second)
	for !progress.IsDayDone(st.State().Completions, "2025-03-09") {
		select {
		case <-deadline:
			t.Fatal("initial sync never adopted remote state")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestForeignWriteIsAdopted(t *testing.T) {
	mem := remote.NewMemory()
	d, st := setupDaemon(t, mem, "")
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	// Wait for the startup sync to push something so later writes are
	// clearly foreign.
	deadline := time.After(5 * time.Second)
	for {
		env, err := mem.LoadProgress(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("LoadProgress: %v", err)
		}
		if env != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("startup sync never uploaded")
		case <-time.After(20 * time.Millisecond):
		}
	}

	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	foreign := progress.NewState(2025)
	foreign.IsSetup = true
	foreign.Completions["2025-03-10"] = progress.DayRecord{
		"squats": {IsCompleted: true, Timestamp: &ts, TimeOfDay: progress.Morning},
	}
	if _, err := mem.SaveProgress(context.Background(), "user-1", &remote.Envelope{State: foreign, WriteToken: "other"}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	deadline = time.After(5 * time.Second)
	for !progress.IsDayDone(st.State().Completions, "2025-03-10") {
		select {
		case <-deadline:
			t.Fatal("foreign write never adopted")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestConfigReload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "exercises.yaml")
	initial := []byte("exercises:\n  - id: pushups\n    multiplier: 1.0\n")
	if err := os.WriteFile(configPath, initial, 0o644); err != nil {
		t.Fatal(err)
	}

	d, st := setupDaemon(t, remote.NewMemory(), configPath)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	updated := []byte("exercises:\n  - id: pushups\n    multiplier: 1.0\n  - id: burpees\n    multiplier: 0.5\n")
	if err := os.WriteFile(configPath, updated, 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(10 * time.Second)
	for {
		if _, ok := exercise.Find(st.Exercises(), "burpees"); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("config change never picked up")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestBadConfigIgnored(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "exercises.yaml")
	if err := os.WriteFile(configPath, []byte("exercises:\n  - id: pushups\n    multiplier: 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, st := setupDaemon(t, remote.NewMemory(), configPath)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	before := len(st.Exercises())
	if err := os.WriteFile(configPath, []byte("exercises: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Give the watcher time to (not) act, then confirm nothing changed.
	time.Sleep(2 * configDebounce)
	if got := len(st.Exercises()); got != before {
		t.Errorf("bad config replaced catalogue, %d definitions now %d", before, got)
	}
}
