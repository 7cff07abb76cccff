package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	sem     chan struct{}
	holders int
}

// MemoryLocker is an in-process Locker. Each key maps to a single-slot
// semaphore that is dropped once nobody holds or waits for it.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	wait    time.Duration
}

// NewMemoryLocker builds an in-process locker. See Locker for how wait is
// interpreted.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry), wait: wait}
}

// Lock acquires the key or fails with ErrNotObtained.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	entry := l.ref(key)

	if l.wait <= 0 {
		select {
		case entry.sem <- struct{}{}:
			return l.unlocker(key, entry), nil
		default:
			l.unref(key)
			return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
		}
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	case <-timer.C:
		l.unref(key)
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	return l.unlocker(key, entry), nil
}

func (l *MemoryLocker) unlocker(key string, entry *memoryEntry) Unlock {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.sem
			l.unref(key)
		})
		return nil
	}
}

func (l *MemoryLocker) ref(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.holders++
	return entry
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.holders--
	if entry.holders == 0 {
		delete(l.entries, key)
	}
}
