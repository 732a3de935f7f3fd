package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/pipeline"
)

// DefaultIdleTimeout is how long a session may go unused before it expires
const DefaultIdleTimeout = 30 * time.Minute

// Factory builds the pipeline of a new session
type Factory func() *pipeline.Pipeline

type entry struct {
	pipeline *pipeline.Pipeline
	lastSeen atomic.Int64 // unix nanoseconds
}

func (e *entry) touch(now time.Time) {
	e.lastSeen.Store(now.UnixNano())
}

func (e *entry) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastSeen.Load()))
}

// Manager keeps one pipeline per open transfer form, keyed by session ID
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry

	factory Factory
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager creates a new Manager instance
func NewManager(factory Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		sessions: make(map[uuid.UUID]*entry),
		factory:  factory,
		logger:   logger,
		now:      time.Now,
	}
}

// Open creates a session with a pipeline at INPUT
func (m *Manager) Open() (uuid.UUID, *pipeline.Pipeline) {
	id := uuid.New()
	e := &entry{pipeline: m.factory()}
	e.touch(m.now())

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	m.logger.Info("session opened", zap.String("session_id", id.String()))
	return id, e.pipeline
}

// Get returns the pipeline of a session and marks the session as used
func (m *Manager) Get(id uuid.UUID) (*pipeline.Pipeline, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	e.touch(m.now())
	return e.pipeline, nil
}

// Close discards a session. A session whose transfer is executing cannot be closed.
// Logic:
//  1. Look up the session
//  2. Discard the pipeline, refused while it is EXECUTING
//  3. Forget the session
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}

	if err := e.pipeline.Discard(); err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	delete(m.sessions, id)

	m.logger.Info("session closed", zap.String("session_id", id.String()))
	return nil
}

// Expire closes every session unused for longer than idle and returns how many were closed.
// Sessions with an executing transfer are kept until a later sweep.
func (m *Manager) Expire(idle time.Duration) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, e := range m.sessions {
		if e.idleSince(now) <= idle {
			continue
		}
		if err := e.pipeline.Discard(); err != nil {
			if !errors.Is(err, domain.ErrNotCancellable) {
				m.logger.Error("failed to expire session", zap.String("session_id", id.String()), zap.Error(err))
			}
			continue
		}
		delete(m.sessions, id)
		expired++

		m.logger.Info("session expired",
			zap.String("session_id", id.String()),
			zap.Duration("idle", e.idleSince(now)),
		)
	}

	return expired
}

// RunExpiry calls Expire every interval until ctx is done
func (m *Manager) RunExpiry(ctx context.Context, interval, idle time.Duration) {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if interval <= 0 {
		interval = idle / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire(idle)
		}
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
