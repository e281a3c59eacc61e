package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether another attempt identified by key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Memory is a sliding-window limiter kept in process memory.
type Memory struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	window   time.Duration
	maxReqs  int
	now      func() time.Time
}

func NewMemory(window time.Duration, maxReqs int) *Memory {
	return &Memory{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
		now:      time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	// Drop attempts outside the window
	valid := m.requests[key][:0]
	for _, t := range m.requests[key] {
		if now.Sub(t) < m.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= m.maxReqs {
		m.requests[key] = valid
		return false, nil
	}

	m.requests[key] = append(valid, now)
	return true, nil
}

// Reset forgets every attempt for key, e.g. after a successful login.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, key)
	return nil
}
