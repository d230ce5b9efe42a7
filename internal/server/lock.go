package server

import "sync"

// LockManager holds per-target deployment locks. Different targets may
// deploy concurrently; a second webhook for the same target while a run is
// in flight is rejected, never queued.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock attempts to acquire the deployment lock for a target. Returns
// false without blocking when a deployment is already in progress.
func (lm *LockManager) TryLock(name string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[name]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[name] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases a target's deployment lock. Safe to call for a name that
// was never locked.
func (lm *LockManager) Unlock(name string) {
	lm.mu.Lock()
	lock := lm.locks[name]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
