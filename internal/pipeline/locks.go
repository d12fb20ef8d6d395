package pipeline

import (
	"fmt"
	"sync"

	"gaitserver/internal/domain"
)

// lockRegistry provides advisory per-video mutual exclusion for mutating
// stages. The policy is fail fast: a second concurrent stage for the same
// video is rejected with domain.ErrBusy instead of queueing. Entries
// exist only while a stage holds them, so the registry cannot grow
// unboundedly.
type lockRegistry struct {
	mu   sync.Mutex
	held map[domain.VideoID]struct{}
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{held: map[domain.VideoID]struct{}{}}
}

// acquire claims the video for the calling stage. Distinct videos never
// contend.
func (r *lockRegistry) acquire(id domain.VideoID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.held[id]; ok {
		return fmt.Errorf("pipeline: a stage is already running for video %s: %w", id, domain.ErrBusy)
	}
	r.held[id] = struct{}{}
	return nil
}

// release frees the video. Must be called exactly once per successful
// acquire.
func (r *lockRegistry) release(id domain.VideoID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, id)
}
