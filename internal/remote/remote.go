// Package remote defines the remote replica contract and its
// implementations: the wire types, a network client, an in-memory
// backend, and the replica server.
//
// The replica is a hierarchical key-value store addressed by user
// identity, with three logical records per user: the sanitized progress
// snapshot, an opaque settings blob, and a leaderboard entry. Write
// times are server-assigned.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
)

// ErrNotSignedIn is returned when a remote operation runs without an
// authenticated identity.
var ErrNotSignedIn = errors.New("not signed in")

// Envelope wraps a progress snapshot on the wire.
//
// WriteToken identifies the writing device's individual save so the
// writer can recognize its own echo on the live feed. WrittenAt is
// assigned by the server, never by the client.
type Envelope struct {
	State      *progress.State `json:"state"`
	WriteToken string          `json:"writeToken,omitempty"`
	WrittenAt  time.Time       `json:"writtenAt"`
}

// LeaderboardEntry is the public projection of a user's progress.
type LeaderboardEntry struct {
	Pseudo      string         `json:"pseudo"`
	PhotoURL    string         `json:"photoURL,omitempty"`
	TotalReps   int            `json:"totalReps"`
	PerExercise map[string]int `json:"perExercise,omitempty"`
	WrittenAt   time.Time      `json:"writtenAt"`
}

// Store is the remote replica client contract.
//
// Load operations return (nil, nil) when no record exists for the user.
// Subscribe registers a live listener for progress changes and returns
// an unsubscribe handle; implementations deliver every accepted write,
// including the caller's own (echo filtering is the subscriber's job).
type Store interface {
	LoadProgress(ctx context.Context, uid string) (*Envelope, error)
	SaveProgress(ctx context.Context, uid string, env *Envelope) (time.Time, error)

	LoadSettings(ctx context.Context, uid string) (json.RawMessage, error)
	SaveSettings(ctx context.Context, uid string, settings json.RawMessage) error

	SaveLeaderboard(ctx context.Context, uid string, entry *LeaderboardEntry) error

	Subscribe(ctx context.Context, uid string, fn func(*Envelope)) (func(), error)
}

// Identity supplies the authenticated user, if any. The sync engine
// consumes only UID and SignedIn to gate remote operations; the profile
// fields feed the leaderboard entry.
type Identity interface {
	UID() string
	DisplayName() string
	Email() string
	PhotoURL() string
	SignedIn() bool
}

// StaticIdentity is a config-backed Identity for CLI use, where the
// OAuth dance happened elsewhere and left us a uid.
type StaticIdentity struct {
	UserID string
	Name   string
	Mail   string
	Photo  string
}

func (s StaticIdentity) UID() string         { return s.UserID }
func (s StaticIdentity) DisplayName() string { return s.Name }
func (s StaticIdentity) Email() string       { return s.Mail }
func (s StaticIdentity) PhotoURL() string    { return s.Photo }
func (s StaticIdentity) SignedIn() bool      { return s.UserID != "" }
