package bridge

import (
	"sync"

	"github.com/HugeFrog24/nini-artgallery/internal/chat"
)

// joinBarrier tracks the tool calls emitted in one model turn and reports
// completion only once every call has a result. Results are keyed by call id,
// so completion order does not matter.
type joinBarrier struct {
	mu      sync.Mutex
	order   []string
	results map[string]*chat.ToolResult
	done    chan struct{}
	closed  bool
	sealed  bool
}

func newJoinBarrier() *joinBarrier {
	return &joinBarrier{
		results: make(map[string]*chat.ToolResult),
		done:    make(chan struct{}),
	}
}

// Expect registers a call id. Ids are ignored after Seal.
func (b *joinBarrier) Expect(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	if _, ok := b.results[id]; ok {
		return
	}
	b.order = append(b.order, id)
	b.results[id] = nil
}

// Seal fixes the expected set. The barrier can complete only after Seal.
func (b *joinBarrier) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	b.checkLocked()
}

// Record stores a result. Results for unknown ids and repeated results for
// the same id are dropped. It reports whether the result was accepted.
func (b *joinBarrier) Record(r chat.ToolResult) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.results[r.CallID]
	if !ok || slot != nil {
		return false
	}
	b.results[r.CallID] = &r
	b.checkLocked()
	return true
}

// Pending is the number of expected calls without a result.
func (b *joinBarrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.results {
		if r == nil {
			n++
		}
	}
	return n
}

// Done is closed once the barrier is sealed and every call has a result.
func (b *joinBarrier) Done() <-chan struct{} {
	return b.done
}

// Results returns the results in emission order.
func (b *joinBarrier) Results() []chat.ToolResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]chat.ToolResult, 0, len(b.order))
	for _, id := range b.order {
		if r := b.results[id]; r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (b *joinBarrier) checkLocked() {
	if b.closed || !b.sealed {
		return
	}
	for _, r := range b.results {
		if r == nil {
			return
		}
	}
	b.closed = true
	close(b.done)
}
