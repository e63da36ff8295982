package bridge

import "sync"

// PendingNavigation is a single-slot handoff from a tool handler to the
// bridge's completion step. A later Set overwrites an earlier one; Take
// empties the slot.
type PendingNavigation struct {
	mu     sync.Mutex
	target string
	set    bool
}

// Set stores target, replacing any earlier value.
func (p *PendingNavigation) Set(target string) {
	p.mu.Lock()
	p.target, p.set = target, true
	p.mu.Unlock()
}

// Take returns the stored target and clears the slot.
func (p *PendingNavigation) Take() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target, ok := p.target, p.set
	p.target, p.set = "", false
	return target, ok
}

// Peek returns the stored target without clearing it.
func (p *PendingNavigation) Peek() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target, p.set
}

// Clear empties the slot.
func (p *PendingNavigation) Clear() {
	p.mu.Lock()
	p.target, p.set = "", false
	p.mu.Unlock()
}
