// Package process implements the ProcessHandler: spawning, supervising,
// signaling, and reaping the daemon's child processes. Grounded on
// original_source/pueue/daemon/process_handler.py, reworked around Go's
// goroutine-per-child + channel-reap idiom the way
// GandalftheGUI-grove/internal/daemon/instance.go drains its PTY-reader
// goroutine and reports completion on a channel rather than being polled.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/ianremillard/pueue/internal/queue"
)

// Completion is posted to the Handler's Reaped channel by the goroutine
// that waited on a child. The event loop (internal/daemon) is the sole
// consumer and the sole place queue state is mutated for this key.
type Completion struct {
	Key        int
	ReturnCode int
	Stopping   bool // true if stop/kill was requested for this key
	Remove     bool // true if the stop/kill request also wants the entry deleted
	Killed     bool // true if Kill (not just Stop) was the request that reaped this key
	Stdout     string
	Stderr     string
	Err        error // never set: a child that fails to start is reported by Spawn's error and posts no Completion
}

// running tracks one live child process.
type running struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdoutPath  string
	stderrPath  string
	paused      bool
	stopRequest bool // stop_process/kill_process was called for this key
	remove      bool // the stop/kill request also wants the entry deleted on reap
	kill        bool // true if kill_process (not stop_process) was called for this key
}

// Handler supervises spawned children and reports their completions on
// Reaped. It holds no reference to the Queue; callers (the daemon event
// loop) pass in the queue.Entry they want spawned and apply state
// transitions to their own Queue after reading a Completion.
type Handler struct {
	spoolDir string

	mu      sync.Mutex
	procs   map[int]*running
	Reaped  chan Completion
}

// New returns a Handler rooted at spoolDir, the directory spool files
// (pueue_process_<key>.stdout/.stderr) are created in — spec.md §4.5,
// grounded on get_descriptor/clean_descriptor in process_handler.py.
func New(spoolDir string) (*Handler, error) {
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Handler{
		spoolDir: spoolDir,
		procs:    make(map[int]*running),
		Reaped:   make(chan Completion, 8),
	}, nil
}

// Running reports whether key currently owns a live child.
func (h *Handler) Running(key int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.procs[key]
	return ok
}

// Count returns the number of currently live children.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.procs)
}

func (h *Handler) spoolPaths(key int) (stdout, stderr string) {
	return filepath.Join(h.spoolDir, fmt.Sprintf("pueue_process_%d.stdout", key)),
		filepath.Join(h.spoolDir, fmt.Sprintf("pueue_process_%d.stderr", key))
}

// Spawn starts e.Command under a shell in e.Path, truncating (creating)
// its spool files first (process_handler.py's get_descriptor always
// removes-then-recreates). The shell and its descendants are placed in a
// dedicated process group so Stop/Kill can signal the whole tree.
//
// A goroutine is started to wait on the child and post the Completion to
// Reaped once it exits; Spawn itself never blocks.
func (h *Handler) Spawn(e *queue.Entry) error {
	if _, err := os.Stat(e.Path); err != nil {
		return fmt.Errorf("directory for this command no longer exists: %s", e.Path)
	}

	stdoutPath, stderrPath := h.spoolPaths(e.Key)
	outFile, err := os.Create(stdoutPath)
	if err != nil {
		return fmt.Errorf("create stdout spool: %w", err)
	}
	errFile, err := os.Create(stderrPath)
	if err != nil {
		outFile.Close()
		return fmt.Errorf("create stderr spool: %w", err)
	}

	cmd := exec.Command("sh", "-c", e.Command)
	cmd.Dir = e.Path
	cmd.Stdout = outFile
	cmd.Stderr = errFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		outFile.Close()
		errFile.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		outFile.Close()
		errFile.Close()
		return fmt.Errorf("start: %w", err)
	}
	outFile.Close() // child holds its own fd; our copy is no longer needed
	errFile.Close()

	r := &running{cmd: cmd, stdin: stdin, stdoutPath: stdoutPath, stderrPath: stderrPath}
	h.mu.Lock()
	h.procs[e.Key] = r
	h.mu.Unlock()

	key := e.Key
	go func() {
		waitErr := cmd.Wait()

		h.mu.Lock()
		rp := h.procs[key]
		delete(h.procs, key)
		h.mu.Unlock()

		stopping := false
		remove := false
		killed := false
		if rp != nil {
			stopping = rp.stopRequest
			remove = rp.remove
			killed = rp.kill
		}

		rc := 0
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			rc = exitErr.ExitCode()
		} else if waitErr != nil {
			rc = -1
		}

		stdoutData, _ := os.ReadFile(stdoutPath)
		stderrData, _ := os.ReadFile(stderrPath)
		os.Remove(stdoutPath)
		os.Remove(stderrPath)

		h.Reaped <- Completion{
			Key:        key,
			ReturnCode: rc,
			Stopping:   stopping,
			Remove:     remove,
			Killed:     killed,
			Stdout:     string(stdoutData),
			Stderr:     string(stderrData),
		}
	}()

	return nil
}

// SendInput writes message to key's stdin, as `send` does against a live
// process (process_handler.py's send_to_process).
func (h *Handler) SendInput(key int, message string) error {
	h.mu.Lock()
	r, ok := h.procs[key]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running process for key %d", key)
	}
	w := bufio.NewWriter(r.stdin)
	if _, err := w.WriteString(message); err != nil {
		return err
	}
	return w.Flush()
}

// pgid returns the process group id for a running child, falling back to
// its raw pid if the lookup fails (spec.md §9's documented ambiguity
// between signaling the shell and signaling its descendants; the default
// here is the group).
func pgid(cmd *exec.Cmd) (int, bool) {
	if cmd.Process == nil {
		return 0, false
	}
	pg, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Pid, false
	}
	return pg, true
}

func (h *Handler) signalKey(key int, sig syscall.Signal, wholeGroup bool) error {
	h.mu.Lock()
	r, ok := h.procs[key]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running process for key %d", key)
	}

	pid := r.cmd.Process.Pid
	if wholeGroup {
		if pg, isGroup := pgid(r.cmd); isGroup {
			return syscall.Kill(-pg, sig)
		}
	}
	return syscall.Kill(pid, sig)
}

// Pause sends SIGSTOP to key's process group (pause_process).
func (h *Handler) Pause(key int) error {
	h.mu.Lock()
	r, ok := h.procs[key]
	if ok {
		r.paused = true
	}
	h.mu.Unlock()
	return h.signalKey(key, syscall.SIGSTOP, true)
}

// Resume sends SIGCONT to key's process group (start_process's paused
// branch).
func (h *Handler) Resume(key int) error {
	h.mu.Lock()
	r, ok := h.procs[key]
	if ok {
		r.paused = false
	}
	h.mu.Unlock()
	return h.signalKey(key, syscall.SIGCONT, true)
}

// Stop sends a terminate signal (SIGTERM) to key, marking it a cooperative
// stop: when it reaps, the daemon should return it to `queued` unless
// remove was also requested (stop_process, kill=false).
func (h *Handler) Stop(key int, remove bool) error {
	return h.terminate(key, remove, syscall.SIGTERM)
}

// Kill sends sig to key, marking it a kill. sig lets
// callers honor the `kill{signal}` verb's fixed signal-name set (spec.md
// §6); wholeGroup false means only the shell itself is targeted, per the
// "expose an option to signal the shell's descendants" note in spec.md §9.
func (h *Handler) Kill(key int, remove bool, sig syscall.Signal, wholeGroup bool) error {
	h.mu.Lock()
	r, ok := h.procs[key]
	if ok {
		r.stopRequest = true
		r.remove = remove
		r.kill = true
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running process for key %d", key)
	}
	return h.signalKey(key, sig, wholeGroup)
}

func (h *Handler) terminate(key int, remove bool, sig syscall.Signal) error {
	h.mu.Lock()
	r, ok := h.procs[key]
	if ok {
		r.stopRequest = true
		r.remove = remove
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running process for key %d", key)
	}
	return h.signalKey(key, sig, true)
}

// StopRequested reports whether a stop/kill was already recorded for a
// still-live key (used by the daemon to refuse `send` to a stopping
// child). Once a child is reaped its key is gone and this reports false.
func (h *Handler) StopRequested(key int) (stopping, remove bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.procs[key]
	if !ok {
		return false, false
	}
	return r.stopRequest, r.remove
}

// WaitForFinish blocks until every live child has reaped, draining
// Reaped and invoking onReap for each Completion so callers still observe
// and persist them. Used during STOPDAEMON shutdown (wait_for_finish).
func (h *Handler) WaitForFinish(ctx context.Context, onReap func(Completion)) error {
	for h.Count() > 0 {
		select {
		case c := <-h.Reaped:
			onReap(c)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil
}

// Stats returns a best-effort RSS/CPU snapshot for key's child via
// gopsutil, plus whether the handler believes the child is SIGSTOPped
// (ground truth for the `paused` flag queue.Entry.Status is expected to
// track); ok is false, with zero RSS/CPU, if unavailable — this is a pure
// enrichment (SPEC_FULL.md §4.6/§7), never required for correctness.
func (h *Handler) Stats(key int) (rssBytes uint64, cpuPercent float64, paused bool, ok bool) {
	h.mu.Lock()
	r, present := h.procs[key]
	h.mu.Unlock()
	if !present || r.cmd.Process == nil {
		return 0, 0, false, false
	}
	paused = r.paused

	p, err := gopsprocess.NewProcess(int32(r.cmd.Process.Pid))
	if err != nil {
		return 0, 0, paused, false
	}
	mem, err := p.MemoryInfo()
	if err != nil || mem == nil {
		return 0, 0, paused, false
	}
	cpu, _ := p.CPUPercent()
	return mem.RSS, cpu, paused, true
}
