package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/migrate"
	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
)

// Store is the canonical owner of the in-memory progress snapshot.
//
// Every mutation computes a brand-new snapshot from the previous one and
// writes it to the local database synchronously before swapping it in, so
// no reader ever observes a partially updated state.
type Store struct {
	db     *DB
	logger *log.Logger

	mu        sync.Mutex
	state     *progress.State
	exercises []exercise.Definition

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// New creates a Store over an opened database.
//
// If logger is nil, a default logger writing to stderr is used.
// Initialize must be called before any mutation.
func New(db *DB, exercises []exercise.Definition, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		db:        db,
		logger:    logger,
		exercises: exercises,
		now:       time.Now,
	}
}

// SetClock overrides the store's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Initialize loads and migrates the locally persisted snapshot.
//
// Corrupt, missing, or unparseable data is treated as no prior state and
// replaced with a fresh empty snapshot, never an error. A stored
// startDate from a different year also forces a fresh state: the
// challenge restarts every January 1.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := s.now().Year()

	raw, err := s.db.LoadRaw(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local progress: %w", err)
	}

	state, res := migrate.Normalize(raw, exercise.IDs(s.exercises))
	if state == nil {
		if len(raw) > 0 {
			s.logger.Printf("Local progress unusable, starting fresh")
		}
		s.state = progress.NewState(year)
		return nil
	}
	if res.FlatMigrated > 0 || res.Dropped > 0 {
		s.logger.Printf("Migrated local progress: v%d, %d entries, %d legacy, %d dropped",
			res.FromVersion, res.Entries, res.FlatMigrated, res.Dropped)
	}

	state.SetDefaults(year)
	if err := state.Validate(); err != nil {
		s.logger.Printf("Local progress failed validation (%v), starting fresh", err)
		s.state = progress.NewState(year)
		return nil
	}

	// Year rollover: a snapshot anchored to a previous year is stale by
	// definition and is replaced, not carried over.
	if start, err := progress.ParseDay(state.StartDate); err != nil || start.Year() != year {
		s.logger.Printf("Stored startDate %s is not in %d, starting fresh", state.StartDate, year)
		s.state = progress.NewState(year)
		return nil
	}

	s.state = state
	return nil
}

// State returns a deep copy of the current snapshot.
func (s *Store) State() *progress.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Exercises returns the active exercise catalogue.
func (s *Store) Exercises() []exercise.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]exercise.Definition, len(s.exercises))
	copy(out, s.exercises)
	return out
}

// SetExercises swaps the active catalogue. Used by the daemon when the
// exercise config file changes on disk.
func (s *Store) SetExercises(defs []exercise.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises = defs
}

// StartChallenge completes onboarding.
//
// It pins startDate to January 1 of the current year (idempotent), sets
// userStartDate from the supplied date, flips isSetup, and backfills
// every day in [userStartDate, today), today exclusive, as fully done for
// all configured exercises, stamped with the current instant. Backfill is
// a bulk action; no timeOfDay is inferred.
func (s *Store) StartChallenge(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userStart, err := progress.ParseDay(date)
	if err != nil {
		return err
	}

	now := s.now()
	next := s.state.Clone()
	next.StartDate = fmt.Sprintf("%04d-01-01", now.Year())
	next.UserStartDate = date
	next.IsSetup = true

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, day := range progress.DaysBetween(userStart, today) {
		rec := next.Completions[day]
		if rec == nil {
			rec = make(progress.DayRecord, len(s.exercises))
		}
		for _, def := range s.exercises {
			ts := now
			c := rec[def.ID]
			c.IsCompleted = true
			c.Timestamp = &ts
			c.TimeOfDay = ""
			rec[def.ID] = c
		}
		next.Completions[day] = rec
	}

	return s.commit(ctx, next)
}

// ToggleDay flips a whole day at once.
//
// If any exercise is done that day, every exercise present in the record
// is marked not-done (timeOfDay cleared, timestamp restamped so remote
// merges see the un-completion as the newer event). Otherwise every
// configured exercise is marked fully done. The toggle bypasses counts
// and never infers timeOfDay: it is a bulk action, not a real-time
// completion.
func (s *Store) ToggleDay(ctx context.Context, dateStr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := progress.ParseDay(dateStr); err != nil {
		return err
	}

	ts := s.now()
	next := s.state.Clone()
	rec := next.Completions[dateStr]

	if progress.IsDayDone(next.Completions, dateStr) {
		for id, c := range rec {
			c.IsCompleted = false
			c.TimeOfDay = ""
			stamp := ts
			c.Timestamp = &stamp
			rec[id] = c
		}
	} else {
		if rec == nil {
			rec = make(progress.DayRecord, len(s.exercises))
		}
		for _, def := range s.exercises {
			c := rec[def.ID]
			c.IsCompleted = true
			stamp := ts
			c.Timestamp = &stamp
			c.TimeOfDay = ""
			rec[def.ID] = c
		}
		next.Completions[dateStr] = rec
	}

	return s.commit(ctx, next)
}

// SetExerciseCount updates the in-progress counter for one exercise.
//
// newCount is clamped to [0, goal] and completion follows from
// clamped >= goal. A not-done-to-done transition stamps the current
// instant and buckets timeOfDay from the local hour. A done-to-not-done
// transition restamps the timestamp and clears timeOfDay; the fresh
// timestamp acts as a tombstone so remote merges detect the un-completion
// as the newer event.
func (s *Store) SetExerciseCount(ctx context.Context, dateStr, exerciseID string, newCount, goal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := progress.ParseDay(dateStr); err != nil {
		return err
	}
	if _, ok := exercise.Find(s.exercises, exerciseID); !ok {
		return fmt.Errorf("unknown exercise %q", exerciseID)
	}
	if goal < 1 {
		return fmt.Errorf("goal must be at least 1, got %d", goal)
	}

	clamped := newCount
	if clamped < 0 {
		clamped = 0
	}
	if clamped > goal {
		clamped = goal
	}

	next := s.state.Clone()
	rec := next.Completions[dateStr]
	if rec == nil {
		rec = make(progress.DayRecord, 1)
		next.Completions[dateStr] = rec
	}

	c := rec[exerciseID]
	wasDone := c.IsCompleted
	c.Count = clamped
	c.IsCompleted = clamped >= goal

	now := s.now()
	switch {
	case !wasDone && c.IsCompleted:
		ts := now
		c.Timestamp = &ts
		c.TimeOfDay = progress.BucketTimeOfDay(now)
	case wasDone && !c.IsCompleted:
		ts := now
		c.Timestamp = &ts
		c.TimeOfDay = ""
	}
	rec[exerciseID] = c

	return s.commit(ctx, next)
}

// Adopt replaces the snapshot with a merged one (from a cloud sync or a
// subscription callback) and persists it.
func (s *Store) Adopt(ctx context.Context, state *progress.State) error {
	if state == nil {
		return fmt.Errorf("cannot adopt nil state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, state.Clone())
}

// commit persists the candidate snapshot and swaps it in. The previous
// snapshot stays current if the write fails. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, next *progress.State) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := s.db.SaveRaw(ctx, payload); err != nil {
		return err
	}
	s.state = next
	return nil
}

// DayNumber returns the 1-based day number of dateStr relative to the
// snapshot's math anchor.
func (s *Store) DayNumber(dateStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.DayNumber(s.state.StartDate, dateStr)
}

// GoalFor returns today's target for an exercise, or 0 for unknown ids.
func (s *Store) GoalFor(dateStr, exerciseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := exercise.Find(s.exercises, exerciseID)
	if !ok {
		return 0
	}
	return progress.GoalFor(progress.DayNumber(s.state.StartDate, dateStr), def.Multiplier)
}

// IsDayDone reports whether any exercise is completed on the given day.
func (s *Store) IsDayDone(dateStr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.IsDayDone(s.state.Completions, dateStr)
}

// TotalReps returns the recomputed total reps for one exercise.
func (s *Store) TotalReps(exerciseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := exercise.Find(s.exercises, exerciseID)
	if !ok {
		return 0
	}
	return progress.TotalReps(s.state.Completions, s.state.StartDate, exerciseID, def.Multiplier)
}

// Streak returns the all-exercise streak ending today.
func (s *Store) Streak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.Streak(s.state.Completions, progress.DayKey(s.now()))
}

// ExerciseStreak returns one exercise's streak ending today.
func (s *Store) ExerciseStreak(exerciseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.ExerciseStreak(s.state.Completions, progress.DayKey(s.now()), exerciseID)
}
