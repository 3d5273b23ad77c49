package session

import (
	"context"
	"sync"

	"dispatch-bot/internal/domain"
)

// Memory is an in-process Backend for poll mode and tests.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: map[string]*domain.Session{}}
}

func (m *Memory) LoadSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Clone(), nil
}

func (m *Memory) SaveSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len reports how many sessions are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
