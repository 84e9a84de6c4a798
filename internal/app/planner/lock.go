package planner

import (
	"context"
	"sync"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// conversationLocks serializes turns per conversation. Entries are
// reference counted and removed once nobody holds or waits for them.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[domain.ConversationID]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[domain.ConversationID]*lockEntry)}
}

func (l *conversationLocks) acquire(id domain.ConversationID) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (l *conversationLocks) release(id domain.ConversationID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, id)
	}
}

// Lock waits for the conversation to be free. With wait=false it fails
// immediately with domain.ErrConversationBusy instead.
func (l *conversationLocks) Lock(ctx context.Context, id domain.ConversationID, wait bool) (func(), error) {
	entry := l.acquire(id)
	unlock := func() {
		<-entry.sem
		l.release(id)
	}

	if !wait {
		select {
		case entry.sem <- struct{}{}:
			return unlock, nil
		default:
			l.release(id)
			return nil, domain.ErrConversationBusy
		}
	}

	select {
	case entry.sem <- struct{}{}:
		return unlock, nil
	case <-ctx.Done():
		l.release(id)
		return nil, ctx.Err()
	}
}

// held returns how many entries are live. Used by tests.
func (l *conversationLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
