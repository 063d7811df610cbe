package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Queue is the daemon's shared, crash-persisted task table. It is never
// accessed from more than one goroutine: the Daemon event loop is the sole
// owner and caller, so no internal locking is needed (mirrors the
// single-threaded cooperative model the ProcessHandler also assumes).
type Queue struct {
	path    string
	entries map[int]*Entry
	nextKey int
}

// Load reads the queue file at path, or starts an empty queue if it is
// missing or unparseable (a corrupt file is removed, per spec §4.2).
func Load(path string) (*Queue, error) {
	q := &Queue{path: path, entries: make(map[int]*Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, fmt.Errorf("read queue file: %w", err)
	}

	var stored map[int]*Entry
	if err := json.Unmarshal(data, &stored); err != nil {
		slog.Warn("queue file is corrupt, starting with an empty queue", "path", path, "error", err)
		os.Remove(path)
		return q, nil
	}
	q.entries = stored

	for k := range q.entries {
		if k >= q.nextKey {
			q.nextKey = k + 1
		}
	}
	return q, nil
}

// Save persists the queue atomically: write to a temp file in the same
// directory, then rename over the target (spec §4.2).
func (q *Queue) Save() error {
	data, err := json.Marshal(q.entries)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}

	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp queue file: %w", err)
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		return fmt.Errorf("rename temp queue file: %w", err)
	}
	return nil
}

// Len returns the number of entries currently in the queue.
func (q *Queue) Len() int { return len(q.entries) }

// Get returns the entry for key, or nil if it does not exist. The caller
// gets the live pointer, not a copy: the Daemon/ProcessHandler are the
// only callers and are trusted to mutate through it and call Save.
func (q *Queue) Get(key int) *Entry {
	return q.entries[key]
}

// Keys returns all keys in ascending order, which (because the key
// allocator only ever increases) is also insertion order.
func (q *Queue) Keys() []int {
	keys := make([]int, 0, len(q.entries))
	for k := range q.entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Snapshot returns a deep copy of every entry with Stdout/Stderr removed,
// suitable for a `status` response (spec §4.6).
func (q *Queue) Snapshot() map[int]*Entry {
	out := make(map[int]*Entry, len(q.entries))
	for k, e := range q.entries {
		out[k] = e.Stripped()
	}
	return out
}

// AddNew allocates the next key and inserts a fresh queued entry.
func (q *Queue) AddNew(command, path string) (int, error) {
	key := q.nextKey
	q.entries[key] = &Entry{
		Key:     key,
		Command: command,
		Path:    path,
		Status:  StatusQueued,
	}
	q.nextKey++
	if err := q.Save(); err != nil {
		return key, err
	}
	return key, nil
}

// Remove deletes key if it exists and is not currently owning a child
// process. Returns an error describing why it could not be removed.
func (q *Queue) Remove(key int) error {
	e, ok := q.entries[key]
	if !ok {
		return fmt.Errorf("no command with key #%d", key)
	}
	if e.Status.Active() {
		return fmt.Errorf("command #%d is running, stop it before removing it", key)
	}
	delete(q.entries, key)
	return q.Save()
}

// ForceRemove deletes key regardless of status. Only the daemon's reap
// path should call this: it is the one place a stop/kill's `remove` flag
// is honored after the owning child has actually exited, so the usual
// Active() guard in Remove no longer applies.
func (q *Queue) ForceRemove(key int) error {
	delete(q.entries, key)
	return q.Save()
}

// Switch swaps the command/path of two entries, keeping their keys (and
// all other attributes) in place. Refused if either side is missing or
// currently owns a child process.
func (q *Queue) Switch(first, second int) error {
	a, ok := q.entries[first]
	if !ok {
		return fmt.Errorf("no command with key #%d", first)
	}
	b, ok := q.entries[second]
	if !ok {
		return fmt.Errorf("no command with key #%d", second)
	}
	if a.Status.Active() || b.Status.Active() {
		return fmt.Errorf("can't switch a running process, stop it first")
	}
	a.Command, b.Command = b.Command, a.Command
	a.Path, b.Path = b.Path, a.Path
	return q.Save()
}

// Restart clones a done/failed entry into a fresh queued entry under a new
// key, leaving the original in place (spec §9: clone-and-append).
func (q *Queue) Restart(key int) (int, error) {
	e, ok := q.entries[key]
	if !ok {
		return 0, fmt.Errorf("no command with key #%d", key)
	}
	if !e.Status.Terminal() {
		return 0, fmt.Errorf("command #%d has not finished yet", key)
	}
	newKey := q.nextKey
	q.entries[newKey] = &Entry{
		Key:     newKey,
		Command: e.Command,
		Path:    e.Path,
		Status:  StatusQueued,
	}
	q.nextKey++
	if err := q.Save(); err != nil {
		return newKey, err
	}
	return newKey, nil
}

// Stash moves a queued entry out of scheduling contention.
func (q *Queue) Stash(key int) error {
	e, ok := q.entries[key]
	if !ok {
		return fmt.Errorf("no command with key #%d", key)
	}
	if e.Status != StatusQueued {
		return fmt.Errorf("command #%d is not queued", key)
	}
	e.Status = StatusStashed
	return q.Save()
}

// Enqueue moves a stashed entry back into scheduling contention.
func (q *Queue) Enqueue(key int) error {
	e, ok := q.entries[key]
	if !ok {
		return fmt.Errorf("no command with key #%d", key)
	}
	if e.Status != StatusStashed {
		return fmt.Errorf("command #%d is not stashed", key)
	}
	e.Status = StatusQueued
	return q.Save()
}

// Clear removes all done/failed entries.
func (q *Queue) Clear() error {
	for k, e := range q.entries {
		if e.Status.Terminal() {
			delete(q.entries, k)
		}
	}
	return q.Save()
}

// Reset drops every entry and resets key allocation to 0.
func (q *Queue) Reset() error {
	q.entries = make(map[int]*Entry)
	q.nextKey = 0
	return q.Save()
}

// Next returns the smallest key whose status is queued, or (0, false).
func (q *Queue) Next() (int, bool) {
	smallest := 0
	found := false
	for k, e := range q.entries {
		if e.Status == StatusQueued && (!found || k < smallest) {
			smallest = k
			found = true
		}
	}
	return smallest, found
}

// Clean resets any entry left in a live-child status from a previous,
// crashed session back to queued with timestamps cleared (spec §4.3).
// Returns true if anything changed.
func (q *Queue) Clean() bool {
	changed := false
	for _, e := range q.entries {
		if e.Status.Active() {
			e.Status = StatusQueued
			e.Start = ""
			e.End = ""
			changed = true
		}
	}
	return changed
}

// AllTerminal reports whether every entry is done or failed (used to
// decide whether a daemon restart should rotate the log).
func (q *Queue) AllTerminal() bool {
	for _, e := range q.entries {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}
