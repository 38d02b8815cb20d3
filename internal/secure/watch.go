package secure

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reports credential changes made by sibling processes. For the
// file backend it watches the store file and emits on every external
// write; keyring and memory backends have nothing observable to watch
// and return a nil channel. The watcher stops when ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	if s.backend != backendFile {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: atomic renames replace the file inode, so a
	// watch on the file itself would go stale after the first save.
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	changes := make(chan struct{}, 1)
	target := filepath.Base(s.storePath())

	go func() {
		defer watcher.Close()
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changes <- struct{}{}:
				default: // coalesce bursts
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return changes, nil
}
