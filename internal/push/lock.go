package push

import "sync"

// LockManager serializes push executions per (branch, remote) pair.
//
// The manager tracks which pairs are held under a single mutex. Pushes to
// different branch/remote pairs proceed concurrently, but two pushes to
// the same pair would interleave fetch/rebase/push sequences and corrupt
// local history, so the second one is rejected immediately.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		held: make(map[string]bool),
	}
}

func lockKey(branch, remote string) string {
	return branch + "@" + remote
}

// TryLock attempts to acquire the push lock for the given pair without
// blocking. Returns false if a push for the same pair is already running.
func (lm *LockManager) TryLock(branch, remote string) bool {
	key := lockKey(branch, remote)

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.held[key] {
		return false
	}
	lm.held[key] = true
	return true
}

// Unlock releases the push lock for the given pair. Releasing a pair that
// is not held is a no-op.
func (lm *LockManager) Unlock(branch, remote string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	delete(lm.held, lockKey(branch, remote))
}
