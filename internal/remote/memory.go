package remote

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs the replica server and stands
// in for the network in tests.
//
// Subscribers are notified synchronously from the writer's goroutine.
// That mirrors the tightest possible echo: a device's own save can reach
// its subscription before SaveProgress returns.
type Memory struct {
	mu          sync.Mutex
	progress    map[string]*Envelope
	settings    map[string]json.RawMessage
	leaderboard map[string]*LeaderboardEntry

	subscribers map[string]map[int]func(*Envelope)
	nextSubID   int

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewMemory creates an empty in-memory replica.
func NewMemory() *Memory {
	return &Memory{
		progress:    make(map[string]*Envelope),
		settings:    make(map[string]json.RawMessage),
		leaderboard: make(map[string]*LeaderboardEntry),
		subscribers: make(map[string]map[int]func(*Envelope)),
		now:         time.Now,
	}
}

// SetClock overrides the server-assigned write time source. Tests only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// LoadProgress implements Store.
func (m *Memory) LoadProgress(ctx context.Context, uid string) (*Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	env, ok := m.progress[uid]
	if !ok {
		return nil, nil
	}
	return cloneEnvelope(env), nil
}

// SaveProgress implements Store. The stored envelope gets a fresh
// server-assigned write time; the client-sent one is ignored.
func (m *Memory) SaveProgress(ctx context.Context, uid string, env *Envelope) (time.Time, error) {
	m.mu.Lock()
	stored := cloneEnvelope(env)
	stored.WrittenAt = m.now()
	m.progress[uid] = stored

	var fns []func(*Envelope)
	for _, fn := range m.subscribers[uid] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(cloneEnvelope(stored))
	}
	return stored.WrittenAt, nil
}

// LoadSettings implements Store.
func (m *Memory) LoadSettings(ctx context.Context, uid string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.settings[uid]
	if !ok {
		return nil, nil
	}
	out := make(json.RawMessage, len(blob))
	copy(out, blob)
	return out, nil
}

// SaveSettings implements Store. The blob passes through opaque.
func (m *Memory) SaveSettings(ctx context.Context, uid string, settings json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob := make(json.RawMessage, len(settings))
	copy(blob, settings)
	m.settings[uid] = blob
	return nil
}

// SaveLeaderboard implements Store.
func (m *Memory) SaveLeaderboard(ctx context.Context, uid string, entry *LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *entry
	stored.WrittenAt = m.now()
	if entry.PerExercise != nil {
		stored.PerExercise = make(map[string]int, len(entry.PerExercise))
		for k, v := range entry.PerExercise {
			stored.PerExercise[k] = v
		}
	}
	m.leaderboard[uid] = &stored
	return nil
}

// Leaderboard returns all leaderboard entries keyed by uid.
func (m *Memory) Leaderboard() map[string]*LeaderboardEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*LeaderboardEntry, len(m.leaderboard))
	for uid, entry := range m.leaderboard {
		e := *entry
		out[uid] = &e
	}
	return out
}

// Subscribe implements Store.
func (m *Memory) Subscribe(ctx context.Context, uid string, fn func(*Envelope)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	if m.subscribers[uid] == nil {
		m.subscribers[uid] = make(map[int]func(*Envelope))
	}
	m.subscribers[uid][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers[uid], id)
	}, nil
}

func cloneEnvelope(env *Envelope) *Envelope {
	if env == nil {
		return nil
	}
	return &Envelope{
		State:      env.State.Clone(),
		WriteToken: env.WriteToken,
		WrittenAt:  env.WrittenAt,
	}
}
