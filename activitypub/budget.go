package activitypub

import "sync"

// Budget limits the remote fetches made while processing one inbound
// activity. It is created per activity and handed down every resolution
// call; it also remembers which ids are being resolved on the current path
// so that reference cycles fail fast instead of waiting on themselves.
type Budget struct {
	mu        sync.Mutex
	remaining int
	path      map[string]int
}

func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{remaining: limit, path: make(map[string]int)}
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Spend takes one fetch from the budget.
func (b *Budget) Spend() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return ErrRecursionLimitExceeded
	}
	b.remaining--
	return nil
}

// enter marks apID as being resolved. The returned func must be called once
// the resolution finished.
func (b *Budget) enter(apID string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.path[apID] > 0 {
		return nil, fail(ErrRecursionLimitExceeded, "reference cycle through %s", apID)
	}
	b.path[apID]++
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.path[apID]--; b.path[apID] <= 0 {
			delete(b.path, apID)
		}
	}, nil
}

// pathIDs returns the ids currently being resolved, except skip.
func (b *Budget) pathIDs(skip string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.path))
	for id := range b.path {
		if id != skip {
			ids = append(ids, id)
		}
	}
	return ids
}

// onPath reports whether any of ids is being resolved.
func (b *Budget) onPath(ids []string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if b.path[id] > 0 {
			return true
		}
	}
	return false
}
