package testutil

import (
	"sync"

	"github.com/roach88/escrow/internal/engine"
)

// ManualHeight is a block height source that moves only when a test says so.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualHeight struct {
	mu sync.Mutex
	h  engine.Height
}

// NewManualHeight creates a height source reading start.
func NewManualHeight(start engine.Height) *ManualHeight {
	return &ManualHeight{h: start}
}

// Height implements engine.HeightSource.
func (m *ManualHeight) Height() engine.Height {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h
}

// Set jumps to h. Moving backwards is allowed; scenarios use it to replay
// a window from the start.
func (m *ManualHeight) Set(h engine.Height) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.h = h
}

// Advance moves forward by n blocks and returns the new height.
func (m *ManualHeight) Advance(n engine.Height) engine.Height {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.h += n
	return m.h
}
