// Package logger implements the two logging responsibilities described in
// spec §4.4: a rotating human-readable record of every finished task, and
// the daemon's own structured operational log.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ianremillard/pueue/internal/queue"
)

// timestampLayout is embedded in rotated log filenames and is what purge
// parses back out — spec §4.4 purges by embedded timestamp, not mtime.
const timestampLayout = "20060102-1504"

// HumanLog writes queue.log, the plain-text summary of every finished
// entry, and rotates/purges it. Grounded on
// original_source/pueue/daemon/logger.py's write/rotate/remove_old.
type HumanLog struct {
	dir string // ~/.local/share/pueue
}

// NewHumanLog ensures dir exists and returns a HumanLog rooted there.
func NewHumanLog(dir string) (*HumanLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &HumanLog{dir: dir}, nil
}

func (l *HumanLog) currentPath() string {
	return filepath.Join(l.dir, "queue.log")
}

// Write rewrites queue.log from scratch with every done/failed entry in
// the queue, in key order. Called after every reap that produces a
// terminal transition (spec §4.4: "Produced atomically... after each
// completion").
func (l *HumanLog) Write(entries map[int]*queue.Entry) error {
	keys := make([]int, 0, len(entries))
	for k, e := range entries {
		if e.Status.Terminal() {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	var sb strings.Builder
	sb.WriteString("Pueue log for executed commands:\n\n")
	for _, k := range keys {
		e := entries[k]
		rc := ""
		if e.ReturnCode != nil {
			rc = fmt.Sprintf("%d", *e.ReturnCode)
		}
		fmt.Fprintf(&sb, "Command #%d exited with returncode %s: %q\n", k, rc, e.Command)
		fmt.Fprintf(&sb, "Path: %s\n", e.Path)
		fmt.Fprintf(&sb, "Start: %s, End: %s\n", e.Start, e.End)
		if e.Stderr != "" {
			sb.WriteString("Stderr output:\n")
			sb.WriteString(e.Stderr)
			sb.WriteString("\n")
		}
		if e.Stdout != "" {
			sb.WriteString("Stdout output:\n")
			sb.WriteString(e.Stdout)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return writeAtomic(l.currentPath(), sb.String())
}

// Rotate renames the current queue.log to queue-<timestamp>.log and
// starts a fresh, empty queue.log. Triggered on daemon start (when all
// prior entries are terminal), `reset`, and `clear` (spec §4.4).
func (l *HumanLog) Rotate() error {
	current := l.currentPath()
	if _, err := os.Stat(current); err == nil {
		rotated := filepath.Join(l.dir, fmt.Sprintf("queue-%s.log", time.Now().Format(timestampLayout)))
		if err := os.Rename(current, rotated); err != nil {
			return fmt.Errorf("rotate queue.log: %w", err)
		}
	}
	return writeAtomic(current, "Pueue log for executed commands:\n\n")
}

// Purge deletes rotated logs whose embedded timestamp is older than
// maxAgeSeconds. The current queue.log is never purged.
func (l *HumanLog) Purge(maxAgeSeconds int) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read log dir: %w", err)
	}

	now := time.Now()
	for _, de := range entries {
		name := de.Name()
		if name == "queue.log" || !strings.HasPrefix(name, "queue-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, "queue-"), ".log")
		t, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
		if err != nil {
			continue // not one of ours; leave it alone
		}
		if now.Sub(t).Seconds() > float64(maxAgeSeconds) {
			os.Remove(filepath.Join(l.dir, name))
		}
	}
	return nil
}

func writeAtomic(path, contents string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".log-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
