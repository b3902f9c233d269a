package memory

import (
	"context"
	"sync"
)

// SessionPointers keeps each user's current session id in process.
type SessionPointers struct {
	mu      sync.RWMutex
	current map[int64]int64
}

func NewSessionPointers() *SessionPointers {
	return &SessionPointers{current: make(map[int64]int64)}
}

func (p *SessionPointers) Set(_ context.Context, userID, sessionID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current[userID] = sessionID
	return nil
}

func (p *SessionPointers) Get(_ context.Context, userID int64) (int64, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.current[userID]
	return id, ok, nil
}

func (p *SessionPointers) Clear(_ context.Context, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.current, userID)
	return nil
}
