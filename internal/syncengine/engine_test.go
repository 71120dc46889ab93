package syncengine

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
	"github.com/lucas-martinati/OneUp-sub000/internal/remote"
)

var testIdentity = &remote.StaticIdentity{
	UserID: "user-1",
	Name:   "Lucas",
	Mail:   "lucas@example.com",
	Photo:  "https://example.com/p.png",
}

func newEngine(t *testing.T) (*Engine, *remote.Memory) {
	t.Helper()
	mem := remote.NewMemory()
	eng := New(mem, testIdentity, log.New(io.Discard, "", 0))
	return eng, mem
}

func localState(t *testing.T, ts time.Time) *progress.State {
	t.Helper()
	state := progress.NewState(2025)
	state.IsSetup = true
	state.UserStartDate = "2025-01-01"
	state.Completions["2025-03-10"] = progress.DayRecord{
		"pushups": {IsCompleted: true, Timestamp: &ts, TimeOfDay: progress.Morning, Count: 42},
	}
	return state
}

func TestSaveSanitizesCounts(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if err := eng.Save(ctx, localState(t, ts)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	env, err := mem.LoadProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if env == nil || env.WriteToken == "" {
		t.Fatalf("expected envelope with write token, got %+v", env)
	}
	c := env.State.Completions["2025-03-10"]["pushups"]
	if c.Count != 0 {
		t.Errorf("remote copy count = %d, want 0 (device-local field)", c.Count)
	}
	if !c.IsCompleted {
		t.Error("remote copy lost completion flag")
	}
}

// gatedStore blocks SaveProgress until release is closed so tests can
// hold a save in flight.
type gatedStore struct {
	*remote.Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) SaveProgress(ctx context.Context, uid string, env *remote.Envelope) (time.Time, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Memory.SaveProgress(ctx, uid, env)
}

func TestSaveSingleFlight(t *testing.T) {
	gate := &gatedStore{
		Memory:  remote.NewMemory(),
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	eng := New(gate, testIdentity, log.New(io.Discard, "", 0))
	ctx := context.Background()
	state := progress.NewState(2025)

	first := make(chan error, 1)
	go func() { first <- eng.Save(ctx, state) }()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first save never reached the store")
	}

	// The first save is parked inside the store; a second one must be
	// dropped, not queued behind it.
	if err := eng.Save(ctx, state); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("concurrent save = %v, want ErrSaveInFlight", err)
	}

	close(gate.release)
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("first save: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first save never finished")
	}

	if err := eng.Save(ctx, state); err != nil {
		t.Fatalf("save after completion: %v", err)
	}
}

func TestSaveRequiresSignIn(t *testing.T) {
	mem := remote.NewMemory()
	eng := New(mem, &remote.StaticIdentity{}, log.New(io.Discard, "", 0))

	err := eng.Save(context.Background(), progress.NewState(2025))
	if !errors.Is(err, remote.ErrNotSignedIn) {
		t.Errorf("Save while signed out = %v, want ErrNotSignedIn", err)
	}
}

func TestSyncMergesRemoteWins(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()

	older := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	remoteState := progress.NewState(2025)
	remoteState.IsSetup = true
	remoteState.Completions["2025-03-10"] = progress.DayRecord{
		"pushups": {IsCompleted: false, Timestamp: &newer},
	}
	if _, err := mem.SaveProgress(ctx, "user-1", &remote.Envelope{State: remoteState, WriteToken: "other-device"}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	merged, err := eng.Sync(ctx, localState(t, older))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got := merged.Completions["2025-03-10"]["pushups"]
	if got.IsCompleted {
		t.Error("newer remote un-completion should win the merge")
	}
	if got.Count != 42 {
		t.Errorf("merge dropped local count, got %d", got.Count)
	}

	env, _ := mem.LoadProgress(ctx, "user-1")
	if env.WriteToken == "other-device" {
		t.Error("sync did not push the merged state")
	}
}

func TestSyncWithEmptyRemoteUploadsLocal(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	local := localState(t, ts)
	merged, err := eng.Sync(ctx, local)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if diff := cmp.Diff(local.Completions, merged.Completions); diff != "" {
		t.Errorf("merge with empty remote changed completions (-want +got):\n%s", diff)
	}
	if env, _ := mem.LoadProgress(ctx, "user-1"); env == nil {
		t.Error("sync did not upload local state")
	}
}

func TestSubscribeSkipsOwnEchoes(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	local := localState(t, ts)

	applied := 0
	unsubscribe, err := eng.Subscribe(ctx,
		func() *progress.State { return local },
		func(merged *progress.State) {
			applied++
			local = merged
		})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	// Memory notifies synchronously, so our own save echoes back
	// before Save returns. The token must suppress it.
	if err := eng.Save(ctx, local); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if applied != 0 {
		t.Fatalf("own write was applied %d times, want 0", applied)
	}

	// A foreign write with a newer timestamp must come through.
	newer := ts.Add(time.Hour)
	foreign := progress.NewState(2025)
	foreign.IsSetup = true
	foreign.Completions["2025-03-11"] = progress.DayRecord{
		"squats": {IsCompleted: true, Timestamp: &newer, TimeOfDay: progress.Evening},
	}
	if _, err := mem.SaveProgress(ctx, "user-1", &remote.Envelope{State: foreign, WriteToken: "other-device"}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	if applied != 1 {
		t.Fatalf("foreign write applied %d times, want 1", applied)
	}
	if !progress.IsDayDone(local.Completions, "2025-03-11") {
		t.Error("foreign completion missing after adoption")
	}

	// Re-sending a state that merges to no change is dropped.
	if _, err := mem.SaveProgress(ctx, "user-1", &remote.Envelope{State: foreign, WriteToken: "other-device-2"}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	if applied != 1 {
		t.Errorf("no-op envelope applied, total applications = %d", applied)
	}
}

func TestOwnTokensExpire(t *testing.T) {
	eng, _ := newEngine(t)

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return now })

	eng.rememberToken("tok-old")
	if !eng.isOwnToken("tok-old") {
		t.Fatal("fresh token not recognized")
	}

	now = now.Add(tokenRetention + time.Minute)
	if eng.isOwnToken("tok-old") {
		t.Error("stale token still suppresses echoes")
	}
}

func TestPublishLeaderboard(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()

	state := progress.NewState(2025)
	state.IsSetup = true
	ts := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)
	// Days 1 and 5 of the pushups goal line: 1 + 5 reps.
	for _, day := range []string{"2025-01-01", "2025-01-05"} {
		state.Completions[day] = progress.DayRecord{
			"pushups": {IsCompleted: true, Timestamp: &ts},
		}
	}

	if err := eng.PublishLeaderboard(ctx, state, exercise.Default()); err != nil {
		t.Fatalf("PublishLeaderboard: %v", err)
	}

	board := mem.Leaderboard()
	entry, ok := board["user-1"]
	if !ok {
		t.Fatal("no leaderboard entry for user-1")
	}
	if entry.Pseudo != "Lucas" {
		t.Errorf("pseudo = %q, want Lucas", entry.Pseudo)
	}
	if entry.PerExercise["pushups"] != 6 {
		t.Errorf("pushups total = %d, want 6", entry.PerExercise["pushups"])
	}
	if entry.TotalReps != 6 {
		t.Errorf("total reps = %d, want 6", entry.TotalReps)
	}
}

func TestSettingsPassThrough(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	blob, err := eng.LoadSettings(ctx)
	if err != nil || blob != nil {
		t.Fatalf("LoadSettings fresh = (%s, %v), want (nil, nil)", blob, err)
	}

	want := []byte(`{"theme":"dark","reminders":["08:00"]}`)
	if err := eng.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := eng.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("settings = %s, want %s", got, want)
	}
}
