package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/recordnode/internal/events"
	"github.com/smazurov/recordnode/internal/media"
)

// Manager tracks active recording sessions. Sessions that terminate on
// their own (encoder death, drop-rate abort) stay listed as failed
// until reaped, so callers can observe the outcome.
type Manager struct {
	bus    *events.Bus
	logger *slog.Logger
	camera CameraSlot

	mu       sync.Mutex
	sessions map[string]*Pipeline
}

func NewManager(bus *events.Bus, camera CameraSlot, logger *slog.Logger) *Manager {
	return &Manager{
		bus:      bus,
		camera:   camera,
		logger:   logger,
		sessions: make(map[string]*Pipeline),
	}
}

// StartSession launches a new recording. Camera sessions go through the
// node's shared camera slot so the device is never opened twice.
func (m *Manager) StartSession(cfg Config) (*Pipeline, error) {
	cfg.Camera = m.camera
	p, err := Start(cfg, m.bus, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[p.ID] = p
	m.mu.Unlock()

	return p, nil
}

// StopSession stops a session and removes it from the active set.
func (m *Manager) StopSession(id string) error {
	m.mu.Lock()
	p, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: session %s", media.ErrDeviceNotFound, id)
	}

	stopErr := p.Stop()
	if failure := p.Err(); failure != nil {
		return failure
	}
	return stopErr
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Pipeline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[id]
	return p, ok
}

// List returns all tracked sessions, ordered by ID for stable output.
func (m *Manager) List() []*Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Pipeline, 0, len(m.sessions))
	for _, p := range m.sessions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StopAll stops every session, for process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Pipeline, 0, len(m.sessions))
	for _, p := range m.sessions {
		sessions = append(sessions, p)
	}
	m.sessions = make(map[string]*Pipeline)
	m.mu.Unlock()

	for _, p := range sessions {
		if err := p.Stop(); err != nil {
			m.logger.Warn("Session stop during shutdown failed",
				"session_id", shortID(p.ID), "error", err)
		}
	}
}
