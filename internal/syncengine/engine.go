// Package syncengine reconciles local progress with the remote
// replica. Every upload carries a fresh write token; the engine
// remembers its own recent tokens so the change feed can tell echoes
// of its own writes apart from writes made on other devices.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
	"github.com/lucas-martinati/OneUp-sub000/internal/remote"
)

// ErrSaveInFlight is returned when a save is requested while a
// previous one has not finished. Callers retry on the next mutation.
var ErrSaveInFlight = errors.New("a remote save is already in flight")

// tokenRetention bounds how long an issued write token is remembered
// for echo suppression.
const tokenRetention = 5 * time.Minute

// Engine pushes local state to a remote.Store and folds remote
// changes back in. All methods are safe for concurrent use.
type Engine struct {
	store    remote.Store
	identity remote.Identity
	logger   *log.Logger

	mu           sync.Mutex
	saveInFlight bool
	recentTokens map[string]time.Time

	now func() time.Time
}

// New creates a sync engine. logger may be nil.
func New(store remote.Store, identity remote.Identity, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:        store,
		identity:     identity,
		logger:       logger,
		recentTokens: make(map[string]time.Time),
		now:          time.Now,
	}
}

// SetClock overrides the engine's clock for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Save uploads a sanitized copy of state under a fresh write token.
// Only one save runs at a time; concurrent calls get ErrSaveInFlight.
func (e *Engine) Save(ctx context.Context, state *progress.State) error {
	if !e.identity.SignedIn() {
		return remote.ErrNotSignedIn
	}

	e.mu.Lock()
	if e.saveInFlight {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	e.saveInFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.saveInFlight = false
		e.mu.Unlock()
	}()

	token := uuid.NewString()
	env := &remote.Envelope{
		State:      state.Sanitized(),
		WriteToken: token,
	}

	e.rememberToken(token)
	writtenAt, err := e.store.SaveProgress(ctx, e.identity.UID(), env)
	if err != nil {
		return fmt.Errorf("failed to save progress to remote: %w", err)
	}
	e.logger.Printf("Saved progress (token %s, server time %s)", token, writtenAt.Format(time.RFC3339))
	return nil
}

// Load fetches the remote state, nil if the user has none yet.
func (e *Engine) Load(ctx context.Context) (*progress.State, error) {
	if !e.identity.SignedIn() {
		return nil, remote.ErrNotSignedIn
	}
	env, err := e.store.LoadProgress(ctx, e.identity.UID())
	if err != nil {
		return nil, fmt.Errorf("failed to load progress from remote: %w", err)
	}
	if env == nil {
		return nil, nil
	}
	return env.State, nil
}

// Sync merges local with the remote state, pushes the result, and
// returns it. With no remote state it just uploads local.
func (e *Engine) Sync(ctx context.Context, local *progress.State) (*progress.State, error) {
	remoteState, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}

	merged := progress.Merge(local, remoteState)
	if err := e.Save(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Subscribe watches the remote change feed and invokes apply with the
// merge of the current local state and each foreign write. Echoes of
// this engine's own writes and envelopes that change nothing are
// dropped. current supplies the local state at notification time;
// both callbacks run on the feed's goroutine.
func (e *Engine) Subscribe(ctx context.Context, current func() *progress.State, apply func(*progress.State)) (func(), error) {
	if !e.identity.SignedIn() {
		return nil, remote.ErrNotSignedIn
	}

	return e.store.Subscribe(ctx, e.identity.UID(), func(env *remote.Envelope) {
		if env == nil || env.State == nil {
			return
		}
		if e.isOwnToken(env.WriteToken) {
			return
		}

		local := current()
		merged := progress.Merge(local, env.State)
		if local != nil && reflect.DeepEqual(merged.Completions, local.Completions) &&
			merged.IsSetup == local.IsSetup &&
			merged.StartDate == local.StartDate &&
			merged.UserStartDate == local.UserStartDate {
			return
		}
		e.logger.Printf("Adopting remote change (token %s)", env.WriteToken)
		apply(merged)
	})
}

// PublishLeaderboard computes per-exercise and overall totals from
// state and uploads them with the user's public profile.
func (e *Engine) PublishLeaderboard(ctx context.Context, state *progress.State, exercises []exercise.Definition) error {
	if !e.identity.SignedIn() {
		return remote.ErrNotSignedIn
	}

	perExercise := make(map[string]int, len(exercises))
	total := 0
	for _, ex := range exercises {
		reps := progress.TotalReps(state.Completions, state.StartDate, ex.ID, ex.Multiplier)
		perExercise[ex.ID] = reps
		total += reps
	}

	entry := &remote.LeaderboardEntry{
		Pseudo:      e.identity.DisplayName(),
		PhotoURL:    e.identity.PhotoURL(),
		TotalReps:   total,
		PerExercise: perExercise,
	}
	if err := e.store.SaveLeaderboard(ctx, e.identity.UID(), entry); err != nil {
		return fmt.Errorf("failed to publish leaderboard entry: %w", err)
	}
	return nil
}

// LoadSettings fetches the user's raw settings blob, nil if absent.
func (e *Engine) LoadSettings(ctx context.Context) (json.RawMessage, error) {
	if !e.identity.SignedIn() {
		return nil, remote.ErrNotSignedIn
	}
	blob, err := e.store.LoadSettings(ctx, e.identity.UID())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings from remote: %w", err)
	}
	return blob, nil
}

// SaveSettings uploads the raw settings blob unchanged.
func (e *Engine) SaveSettings(ctx context.Context, blob json.RawMessage) error {
	if !e.identity.SignedIn() {
		return remote.ErrNotSignedIn
	}
	if err := e.store.SaveSettings(ctx, e.identity.UID(), blob); err != nil {
		return fmt.Errorf("failed to save settings to remote: %w", err)
	}
	return nil
}

func (e *Engine) rememberToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.recentTokens[token] = now
	for tok, issued := range e.recentTokens {
		if now.Sub(issued) > tokenRetention {
			delete(e.recentTokens, tok)
		}
	}
}

func (e *Engine) isOwnToken(token string) bool {
	if token == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	issued, ok := e.recentTokens[token]
	if !ok {
		return false
	}
	return e.now().Sub(issued) <= tokenRetention
}
