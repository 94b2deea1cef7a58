package collector

import (
	"sync"
	"time"

	"github.com/seshuthota/gamearena-store/internal/domain"
)

// orphanKey identifies the parent move a buffered rethink attempt is
// waiting for.
type orphanKey struct {
	gameID string
	number int
	player int
}

type orphanEntry struct {
	attempt   *domain.RethinkAttempt
	expiresAt time.Time
}

// orphanBuffer holds rethink attempts whose parent move has not been
// stored yet. The collector's background sweep drops entries past their
// TTL and reports the count.
type orphanBuffer struct {
	mu      sync.Mutex
	entries map[orphanKey][]orphanEntry
	ttl     time.Duration
}

func newOrphanBuffer(ttl time.Duration) *orphanBuffer {
	return &orphanBuffer{
		entries: make(map[orphanKey][]orphanEntry),
		ttl:     ttl,
	}
}

func (b *orphanBuffer) add(gameID string, number, player int, a *domain.RethinkAttempt) {
	k := orphanKey{gameID, number, player}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[k] = append(b.entries[k], orphanEntry{attempt: a, expiresAt: time.Now().Add(b.ttl)})
}

// take removes and returns every buffered attempt for (game, number, player),
// in arrival order, so the caller can replay them once the parent move
// exists.
func (b *orphanBuffer) take(gameID string, number, player int) []*domain.RethinkAttempt {
	k := orphanKey{gameID, number, player}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, ok := b.entries[k]
	if !ok {
		return nil
	}
	delete(b.entries, k)
	out := make([]*domain.RethinkAttempt, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.attempt)
	}
	return out
}

// sweep drops every entry past its TTL, returning how many were dropped.
func (b *orphanBuffer) sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for k, entries := range b.entries {
		kept := entries[:0]
		for _, e := range entries {
			if now.After(e.expiresAt) {
				dropped++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(b.entries, k)
		} else {
			b.entries[k] = kept
		}
	}
	return dropped
}
