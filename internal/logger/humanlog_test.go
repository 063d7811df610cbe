package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ianremillard/pueue/internal/queue"
)

func rc(n int) *int { return &n }

func TestWriteSkipsNonTerminalEntries(t *testing.T) {
	dir := t.TempDir()
	hl, err := NewHumanLog(dir)
	if err != nil {
		t.Fatalf("NewHumanLog: %v", err)
	}

	entries := map[int]*queue.Entry{
		0: {Key: 0, Command: "ls", Path: "/tmp", Status: queue.StatusDone, ReturnCode: rc(0), Start: "10:00", End: "10:01"},
		1: {Key: 1, Command: "sleep 60", Path: "/", Status: queue.StatusRunning},
	}
	if err := hl.Write(entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "queue.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Command #0") {
		t.Fatalf("expected finished entry in log, got: %s", content)
	}
	if strings.Contains(content, "sleep 60") {
		t.Fatalf("running entry should not appear in log: %s", content)
	}
}

func TestRotateStartsFreshFile(t *testing.T) {
	dir := t.TempDir()
	hl, err := NewHumanLog(dir)
	if err != nil {
		t.Fatalf("NewHumanLog: %v", err)
	}

	entries := map[int]*queue.Entry{
		0: {Key: 0, Command: "ls", Path: "/", Status: queue.StatusDone, ReturnCode: rc(0)},
	}
	if err := hl.Write(entries); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := hl.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var rotated, current bool
	for _, de := range des {
		if de.Name() == "queue.log" {
			current = true
		}
		if strings.HasPrefix(de.Name(), "queue-") {
			rotated = true
		}
	}
	if !current || !rotated {
		t.Fatalf("expected both a fresh queue.log and a rotated file, got %v", des)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "queue.log"))
	if strings.Contains(string(data), "Command #0") {
		t.Fatalf("fresh queue.log should be empty of prior entries")
	}
}

func TestPurgeDeletesOnlyOldRotatedLogs(t *testing.T) {
	dir := t.TempDir()

	old := time.Now().Add(-2 * time.Hour).Format(timestampLayout)
	recent := time.Now().Add(-1 * time.Second).Format(timestampLayout)

	oldPath := filepath.Join(dir, "queue-"+old+".log")
	recentPath := filepath.Join(dir, "queue-"+recent+".log")
	currentPath := filepath.Join(dir, "queue.log")

	for _, p := range []string{oldPath, recentPath, currentPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", p, err)
		}
	}

	hl := &HumanLog{dir: dir}
	if err := hl.Purge(3600); err != nil { // 1 hour max age
		t.Fatalf("Purge: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old rotated log to be purged")
	}
	if _, err := os.Stat(recentPath); err != nil {
		t.Fatalf("recent rotated log should survive: %v", err)
	}
	if _, err := os.Stat(currentPath); err != nil {
		t.Fatalf("current queue.log must never be purged: %v", err)
	}
}
