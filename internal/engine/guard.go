package engine

import "sync"

// guardSet is a per-token exclusion set. TryAcquire is add-if-absent: a
// second in-flight trigger for a held token is a no-op, not a queued retry —
// the next price update re-evaluates the by-then-updated state.
type guardSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newGuardSet() *guardSet {
	return &guardSet{held: make(map[string]struct{})}
}

// TryAcquire claims the token's guard. Returns false if already held.
func (g *guardSet) TryAcquire(tokenID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[tokenID]; busy {
		return false
	}
	g.held[tokenID] = struct{}{}
	return true
}

// Release frees the token's guard. Must run on every exit path.
func (g *guardSet) Release(tokenID string) {
	g.mu.Lock()
	delete(g.held, tokenID)
	g.mu.Unlock()
}
