package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals whenever pueue.ini changes on disk, so a human editing
// the file directly is picked up. Save's own temp-file-then-rename writes
// (from Update) signal too; reloading then reads back the values the
// daemon has just written.
//
// Grounded on davidolrik-overseer's and kdlbs-kandev's fsnotify-backed
// config/workspace reload loops (SPEC_FULL.md §4.7, §7).
type Watcher struct {
	fsw     *fsnotify.Watcher
	path    string
	Changed chan struct{}
}

// WatchFile starts watching path for writes. Callers should range over
// Changed and reload the Config themselves; Watcher does not hold a
// reference to a *Config so it can't race with the daemon loop's own
// mutations.
func WatchFile(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, path: path, Changed: make(chan struct{}, 1)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// Save's temp-file-then-rename replace (and any editor that
				// saves the same way) points the path at a new inode, which
				// silently drops the old inotify watch. Re-arm it on the
				// path so a second external edit still fires.
				if err := w.fsw.Add(w.path); err != nil {
					slog.Warn("config watcher re-add failed", "path", w.path, "error", err)
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				select {
				case w.Changed <- struct{}{}:
				default:
					// A reload is already pending; coalesce.
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
