package queue

import (
	"path/filepath"
	"testing"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Load(filepath.Join(t.TempDir(), "queue.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return q
}

func TestAddNewAllocatesMonotonicKeys(t *testing.T) {
	q := newTestQueue(t)

	a, err := q.AddNew("ls /tmp", "/tmp")
	if err != nil {
		t.Fatalf("AddNew: %v", err)
	}
	b, err := q.AddNew("ls /", "/")
	if err != nil {
		t.Fatalf("AddNew: %v", err)
	}
	if a != 0 || b != 1 {
		t.Fatalf("expected keys 0,1 got %d,%d", a, b)
	}

	entry := q.Get(0)
	if entry == nil || entry.Status != StatusQueued || entry.Command != "ls /tmp" || entry.Path != "/tmp" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestRemoveRefusesActiveEntry(t *testing.T) {
	q := newTestQueue(t)
	key, _ := q.AddNew("sleep 60", "/")
	q.Get(key).Status = StatusRunning

	if err := q.Remove(key); err == nil {
		t.Fatalf("expected error removing a running entry")
	}

	q.Get(key).Status = StatusDone
	if err := q.Remove(key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if q.Get(key) != nil {
		t.Fatalf("entry still present after remove")
	}
}

func TestSwitchForbiddenWhileRunning(t *testing.T) {
	q := newTestQueue(t)
	first, _ := q.AddNew("sleep 60", "/")
	second, _ := q.AddNew("ls -l", "/")
	q.Get(first).Status = StatusRunning

	if err := q.Switch(first, second); err == nil {
		t.Fatalf("expected switch to be refused while running")
	}
	if q.Get(first).Command != "sleep 60" || q.Get(second).Command != "ls -l" {
		t.Fatalf("queue mutated despite refused switch")
	}
}

func TestSwitchSwapsContentsNotKeys(t *testing.T) {
	q := newTestQueue(t)
	first, _ := q.AddNew("a", "/a")
	second, _ := q.AddNew("b", "/b")

	if err := q.Switch(first, second); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if q.Get(first).Command != "b" || q.Get(first).Path != "/b" {
		t.Fatalf("first not swapped: %+v", q.Get(first))
	}
	if q.Get(second).Command != "a" || q.Get(second).Path != "/a" {
		t.Fatalf("second not swapped: %+v", q.Get(second))
	}
}

func TestRestartClonesAndAppends(t *testing.T) {
	q := newTestQueue(t)
	key, _ := q.AddNew("ls", "/")
	q.Get(key).Status = StatusDone

	newKey, err := q.Restart(key)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if newKey == key {
		t.Fatalf("restart did not allocate a new key")
	}
	if q.Get(key).Status != StatusDone {
		t.Fatalf("original entry was mutated by restart")
	}
	if q.Get(newKey).Status != StatusQueued || q.Get(newKey).Command != "ls" {
		t.Fatalf("clone not queued correctly: %+v", q.Get(newKey))
	}
}

func TestRestartRefusesNonTerminal(t *testing.T) {
	q := newTestQueue(t)
	key, _ := q.AddNew("ls", "/")
	if _, err := q.Restart(key); err == nil {
		t.Fatalf("expected restart of a queued entry to be refused")
	}
}

func TestClearRemovesOnlyTerminalEntries(t *testing.T) {
	q := newTestQueue(t)
	done, _ := q.AddNew("a", "/")
	failed, _ := q.AddNew("b", "/")
	running, _ := q.AddNew("c", "/")
	q.Get(done).Status = StatusDone
	q.Get(failed).Status = StatusFailed
	q.Get(running).Status = StatusRunning

	if err := q.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if q.Get(done) != nil || q.Get(failed) != nil {
		t.Fatalf("terminal entries survived clear")
	}
	if q.Get(running) == nil {
		t.Fatalf("non-terminal entry removed by clear")
	}
}

func TestResetThenInsertStartsAtZero(t *testing.T) {
	q := newTestQueue(t)
	q.AddNew("a", "/")
	q.AddNew("b", "/")

	if err := q.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after reset")
	}

	key, _ := q.AddNew("c", "/")
	if key != 0 {
		t.Fatalf("expected first key after reset to be 0, got %d", key)
	}
}

func TestNextReturnsSmallestQueuedKey(t *testing.T) {
	q := newTestQueue(t)
	a, _ := q.AddNew("a", "/")
	b, _ := q.AddNew("b", "/")
	q.Get(a).Status = StatusRunning

	key, ok := q.Next()
	if !ok || key != b {
		t.Fatalf("expected next=%d, got %d (ok=%v)", b, key, ok)
	}
}

func TestCleanResetsStaleActiveEntries(t *testing.T) {
	q := newTestQueue(t)
	key, _ := q.AddNew("a", "/")
	q.Get(key).Status = StatusRunning
	q.Get(key).Start = "12:00"

	if changed := q.Clean(); !changed {
		t.Fatalf("expected Clean to report a change")
	}
	e := q.Get(key)
	if e.Status != StatusQueued || e.Start != "" || e.End != "" {
		t.Fatalf("entry not cleaned: %+v", e)
	}
}

func TestLoadRestoresPersistedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	q.AddNew("a", "/")

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("expected persisted entry to survive reload")
	}
}

func TestSnapshotStripsOutput(t *testing.T) {
	q := newTestQueue(t)
	key, _ := q.AddNew("a", "/")
	q.Get(key).Stdout = "hello"
	q.Get(key).Stderr = "oops"

	snap := q.Snapshot()
	if snap[key].Stdout != "" || snap[key].Stderr != "" {
		t.Fatalf("snapshot did not strip output: %+v", snap[key])
	}
	if q.Get(key).Stdout != "hello" {
		t.Fatalf("snapshot mutated the live entry")
	}
}
