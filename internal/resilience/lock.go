package resilience

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// RefreshLock serializes token refreshes across processes. Unlike the
// state-store lock it blocks: a process that finds the lock held waits for
// the sibling's refresh to finish, then re-reads the store to pick up the
// rotated token instead of issuing a second refresh call.
type RefreshLock struct {
	path string
}

// NewRefreshLock creates a lock file inside dir.
func NewRefreshLock(dir string) *RefreshLock {
	return &RefreshLock{path: filepath.Join(dir, "refresh.lock")}
}

// Acquire blocks until the lock is held or ctx expires. It returns a
// release func. On ctx expiry it fails open: the release func is a no-op
// and the caller proceeds unlocked. A duplicate refresh beats a refresh
// that never happens because a crashed process left the lock behind.
func (l *RefreshLock) Acquire(ctx context.Context) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return func() {}, err
	}

	fl := flock.New(l.path)
	locked, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return func() {}, nil
		}
		return func() {}, err
	}
	if !locked {
		return func() {}, nil
	}
	return func() { _ = fl.Unlock() }, nil
}
