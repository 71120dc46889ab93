// Package progress defines the canonical progress snapshot for a OneUp
// challenge year and the pure functions derived from it.
//
// The snapshot is LWW-friendly: completions are keyed per calendar day and
// per exercise, each completion carries its own timestamp, and timestamps
// resolve conflicts when two devices race on the same entry.
package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the current on-disk and on-wire schema version.
// Older payloads are upgraded by the migrate package before they reach
// this type.
const SchemaVersion = 2

// DateLayout is the calendar-day key format used throughout the snapshot.
const DateLayout = "2006-01-02"

// TimeOfDay buckets a completion by the local hour it happened.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
)

// BucketTimeOfDay maps a local instant to its time-of-day bucket.
// Hours before 12 are morning, before 18 afternoon, the rest evening.
func BucketTimeOfDay(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h < 12:
		return Morning
	case h < 18:
		return Afternoon
	default:
		return Evening
	}
}

// Completion records the state of one exercise on one calendar day.
//
// Count is device-local UI state for the in-progress counter. It is never
// part of the cross-device contract and is stripped before anything is
// sent to the remote replica.
type Completion struct {
	IsCompleted bool       `json:"isCompleted"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	TimeOfDay   TimeOfDay  `json:"timeOfDay,omitempty"`
	Count       int        `json:"count,omitempty"`
}

// DayRecord maps exercise ids to their completion state for a single day.
type DayRecord map[string]Completion

// State is the canonical progress snapshot.
//
// StartDate is the math anchor: fixed to January 1 of the challenge year
// and used for day numbering and goal arithmetic. UserStartDate is the
// interaction anchor: the day the user actually began, used for backfill
// and future-date gating.
type State struct {
	SchemaVersion int                  `json:"schemaVersion"`
	StartDate     string               `json:"startDate"`
	UserStartDate string               `json:"userStartDate"`
	IsSetup       bool                 `json:"isSetup"`
	Completions   map[string]DayRecord `json:"completions"`
}

// NewState returns an empty snapshot anchored to January 1 of the given year.
func NewState(year int) *State {
	jan1 := fmt.Sprintf("%04d-01-01", year)
	return &State{
		SchemaVersion: SchemaVersion,
		StartDate:     jan1,
		UserStartDate: jan1,
		IsSetup:       false,
		Completions:   make(map[string]DayRecord),
	}
}

// Clone returns a deep copy. Mutating the copy never affects the receiver.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		SchemaVersion: s.SchemaVersion,
		StartDate:     s.StartDate,
		UserStartDate: s.UserStartDate,
		IsSetup:       s.IsSetup,
		Completions:   make(map[string]DayRecord, len(s.Completions)),
	}
	for date, rec := range s.Completions {
		out.Completions[date] = rec.clone()
	}
	return out
}

func (r DayRecord) clone() DayRecord {
	out := make(DayRecord, len(r))
	for id, c := range r {
		if c.Timestamp != nil {
			ts := *c.Timestamp
			c.Timestamp = &ts
		}
		out[id] = c
	}
	return out
}

// Sanitized returns a deep copy with every device-local count removed.
// This is the projection sent to the remote replica.
func (s *State) Sanitized() *State {
	out := s.Clone()
	if out == nil {
		return nil
	}
	for _, rec := range out.Completions {
		for id, c := range rec {
			c.Count = 0
			rec[id] = c
		}
	}
	return out
}

// Pristine reports whether the snapshot still looks factory-fresh:
// onboarding not completed and no recorded completions. A pristine local
// side defers its top-level scalars to the remote during a merge.
func (s *State) Pristine() bool {
	return s != nil && !s.IsSetup && len(s.Completions) == 0
}

// Validate checks top-level shape. It does not inspect individual
// completions; unknown exercise ids are tolerated so a device running an
// older catalogue can still adopt remote data.
func (s *State) Validate() error {
	if s.StartDate == "" {
		return fmt.Errorf("startDate is required")
	}
	if _, err := ParseDay(s.StartDate); err != nil {
		return fmt.Errorf("invalid startDate: %w", err)
	}
	if s.UserStartDate != "" {
		if _, err := ParseDay(s.UserStartDate); err != nil {
			return fmt.Errorf("invalid userStartDate: %w", err)
		}
	}
	return nil
}

// SetDefaults fills absent fields so older payloads behave consistently.
func (s *State) SetDefaults(year int) {
	jan1 := fmt.Sprintf("%04d-01-01", year)
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersion
	}
	if s.StartDate == "" {
		s.StartDate = jan1
	}
	if s.UserStartDate == "" {
		s.UserStartDate = s.StartDate
	}
	if s.Completions == nil {
		s.Completions = make(map[string]DayRecord)
	}
}

// ParseDay parses a YYYY-MM-DD key at UTC midnight. Parsing at UTC keeps
// day arithmetic immune to daylight-saving skew regardless of the local
// zone the key was formed in.
func ParseDay(dateStr string) (time.Time, error) {
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	return t, nil
}

// DayKey formats an instant as the calendar-day key for its local zone.
func DayKey(t time.Time) string {
	return t.Format(DateLayout)
}

// MarshalJSON pins the schema version so a snapshot can never be written
// without one.
func (s *State) MarshalJSON() ([]byte, error) {
	type alias State
	a := alias(*s)
	if a.SchemaVersion == 0 {
		a.SchemaVersion = SchemaVersion
	}
	return json.Marshal(a)
}
