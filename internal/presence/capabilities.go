package presence

import "sync"

// Capabilities remembers what the backing store turned out to support.
// It lives for the process and is injected into the Client rather than
// hiding as package state, so tests can reset it.
type Capabilities struct {
	mu          sync.RWMutex
	disabled    bool
	unsupported map[string]struct{}
}

func NewCapabilities() *Capabilities {
	return &Capabilities{unsupported: make(map[string]struct{})}
}

// Disable marks the whole store unavailable. One-way for the process.
func (c *Capabilities) Disable() {
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
}

func (c *Capabilities) Disabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disabled
}

// MarkUnsupported records an attribute the store rejected.
func (c *Capabilities) MarkUnsupported(attr string) {
	c.mu.Lock()
	c.unsupported[attr] = struct{}{}
	c.mu.Unlock()
}

func (c *Capabilities) Supports(attr string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, bad := c.unsupported[attr]
	return !bad
}
