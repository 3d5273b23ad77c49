package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dispatch-bot/internal/domain"
)

// ErrNotFound is returned by Update when no live session exists for the id.
var ErrNotFound = errors.New("session: not found")

// DuplicateSessionError reports an attempt to start a workflow while a session of a
// different kind is active for the same id.
type DuplicateSessionError struct {
	ID     string
	Active domain.WorkflowKind
	Wanted domain.WorkflowKind
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session: %s already has an active %s workflow (wanted %s)", e.ID, e.Active, e.Wanted)
}

// Store is the per-session scratch state contract consumed by the conversation engine.
type Store interface {
	Create(ctx context.Context, id string, kind domain.WorkflowKind, initial domain.State) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, id string, mutate func(*domain.Session)) error
	Destroy(ctx context.Context, id string) error
}

// Backend persists whole session records. Load returns nil, nil when absent.
type Backend interface {
	LoadSession(ctx context.Context, id string) (*domain.Session, error)
	SaveSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// AttachmentDeleter removes temporary blobs referenced by Session.Attachments.
type AttachmentDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Manager implements Store over a Backend and cleans up attachments on destroy.
type Manager struct {
	backend Backend
	blobs   AttachmentDeleter
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Manager)

// WithTTL sets the idle timeout. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager. blobs may be nil when attachments are never stored.
func NewManager(backend Backend, blobs AttachmentDeleter, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("session: backend must not be nil")
	}
	m := &Manager{
		backend: backend,
		blobs:   blobs,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create starts a session at initial. Re-entering the same workflow replaces the
// previous session after its attachments are cleaned up.
func (m *Manager) Create(ctx context.Context, id string, kind domain.WorkflowKind, initial domain.State) (*domain.Session, error) {
	if id == "" {
		return nil, errors.New("session: Create: id is required")
	}
	existing, err := m.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: Create: %w", err)
	}
	if existing != nil {
		if existing.Kind != kind {
			return nil, &DuplicateSessionError{ID: id, Active: existing.Kind, Wanted: kind}
		}
		if err := m.Destroy(ctx, id); err != nil {
			return nil, fmt.Errorf("session: Create: %w", err)
		}
	}

	s := domain.NewSession(id, kind, initial, m.now())
	s.TTL = m.expiry(s.LastActivityAt)
	if err := m.backend.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("session: Create: %w", err)
	}
	return s.Clone(), nil
}

// Get returns the live session or nil. An expired session is destroyed on read.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	s, err := m.backend.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: Get: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	if m.expired(s) {
		m.logger.InfoContext(ctx, "session expired", "session", id, "workflow", s.Kind, "last_activity", s.LastActivityAt)
		m.release(ctx, s)
		return nil, nil
	}
	return s, nil
}

// Update applies mutate to the stored session and persists it. Last write wins.
func (m *Manager) Update(ctx context.Context, id string, mutate func(*domain.Session)) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("session: Update: %w", err)
	}
	if s == nil {
		return ErrNotFound
	}
	mutate(s)
	s.ID = id
	if s.Fields == nil {
		s.Fields = map[string]string{}
	}
	s.LastActivityAt = m.now().UTC()
	s.TTL = m.expiry(s.LastActivityAt)
	if err := m.backend.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("session: Update: %w", err)
	}
	return nil
}

// Destroy drops the session and deletes its attachments. Attachment failures are
// logged, not returned.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	s, err := m.backend.LoadSession(ctx, id)
	if err != nil {
		return fmt.Errorf("session: Destroy: %w", err)
	}
	if s == nil {
		return nil
	}
	if err := m.backend.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("session: Destroy: %w", err)
	}
	m.cleanup(ctx, s)
	return nil
}

func (m *Manager) release(ctx context.Context, s *domain.Session) {
	if err := m.backend.DeleteSession(ctx, s.ID); err != nil {
		m.logger.WarnContext(ctx, "expired session delete failed", "session", s.ID, "err", err)
	}
	m.cleanup(ctx, s)
}

func (m *Manager) cleanup(ctx context.Context, s *domain.Session) {
	if m.blobs == nil {
		return
	}
	for _, key := range s.AttachmentKeys() {
		if err := m.blobs.Delete(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "attachment cleanup failed", "session", s.ID, "key", key, "err", err)
		}
	}
}

func (m *Manager) expired(s *domain.Session) bool {
	if m.ttl <= 0 {
		return false
	}
	return m.now().After(s.LastActivityAt.Add(m.ttl))
}

func (m *Manager) expiry(last time.Time) int64 {
	if m.ttl <= 0 {
		return 0
	}
	return last.Add(m.ttl).Unix()
}
