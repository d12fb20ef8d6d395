package pipeline

import (
	"errors"
	"sync"
	"testing"

	"gaitserver/internal/domain"
)

func TestLockRegistryFailFast(t *testing.T) {
	r := newLockRegistry()
	id := domain.NewVideoID()

	if err := r.acquire(id); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	if err := r.acquire(id); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("acquire(held) error = %v, want ErrBusy", err)
	}

	r.release(id)
	if err := r.acquire(id); err != nil {
		t.Fatalf("acquire(released) error = %v", err)
	}
}

func TestLockRegistryDistinctVideos(t *testing.T) {
	r := newLockRegistry()
	a, b := domain.NewVideoID(), domain.NewVideoID()

	if err := r.acquire(a); err != nil {
		t.Fatalf("acquire(a) error = %v", err)
	}
	if err := r.acquire(b); err != nil {
		t.Fatalf("acquire(b) error = %v, distinct videos must not contend", err)
	}
}

func TestLockRegistryUnderContention(t *testing.T) {
	r := newLockRegistry()
	id := domain.NewVideoID()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.acquire(id); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Exactly one winner still holds; everyone else was rejected.
	if won != 1 {
		t.Fatalf("winners = %d, want 1", won)
	}
	if err := r.acquire(id); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("acquire(after race) error = %v, want ErrBusy", err)
	}
}
