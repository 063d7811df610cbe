// Package daemon implements pueued: the event loop, socket lifecycle, and
// dispatch table that ties Queue, ProcessHandler, Logger, and Config
// together (spec.md §4.6). Grounded on
// GandalftheGUI-grove/internal/daemon/daemon.go's accept-loop/dispatch
// shape, reworked from one-goroutine-per-blocking-request into a single
// event-loop goroutine per spec.md §5's single-threaded cooperative model.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ianremillard/pueue/internal/config"
	"github.com/ianremillard/pueue/internal/logger"
	"github.com/ianremillard/pueue/internal/process"
	"github.com/ianremillard/pueue/internal/proto"
	"github.com/ianremillard/pueue/internal/queue"
)

// job is one decoded request awaiting dispatch, produced by a
// per-connection goroutine that does nothing but I/O, and consumed only
// by the event loop (spec.md §5: all state mutation happens from one
// goroutine).
type job struct {
	req     proto.Request
	respCh  chan proto.Response
	traceID string
}

// Daemon owns the socket and every other component, and runs the single
// event-loop goroutine that is the only place Queue/ProcessHandler/Config
// state is mutated.
type Daemon struct {
	configDir string // <root>/.config/pueue
	dataDir   string // <root>/.local/share/pueue

	cfg        *config.Config
	cfgWatcher *config.Watcher
	q          *queue.Queue
	procs      *process.Handler
	humanLog   *logger.HumanLog
	opLog      *slog.Logger
	codec      proto.Codec

	paused       bool
	resetPending bool

	socketPath string
	listener   net.Listener
	reqCh      chan job
}

// New wires up every component rooted at root (the parent of
// .config/pueue and .local/share/pueue, spec.md §3), loading persisted
// state and running crash-recovery fixups.
func New(root string) (*Daemon, error) {
	configDir := filepath.Join(root, ".config", "pueue")
	dataDir := filepath.Join(root, ".local", "share", "pueue")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opLog, err := logger.NewOperationalLog(configDir)
	if err != nil {
		return nil, fmt.Errorf("operational log: %w", err)
	}

	cfg, err := config.Load(filepath.Join(configDir, "pueue.ini"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	q, err := queue.Load(filepath.Join(configDir, "queue"))
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if q.Clean() {
		opLog.Warn("recovered entries left running by a previous session")
		if err := q.Save(); err != nil {
			return nil, fmt.Errorf("persist cleaned queue: %w", err)
		}
	}

	procs, err := process.New(configDir)
	if err != nil {
		return nil, fmt.Errorf("process handler: %w", err)
	}

	humanLog, err := logger.NewHumanLog(dataDir)
	if err != nil {
		return nil, fmt.Errorf("human log: %w", err)
	}
	if err := humanLog.Purge(cfg.LogTime); err != nil {
		opLog.Warn("log purge failed", "error", err)
	}
	// spec.md §4.4: rotate on start when every restored entry is terminal.
	if q.Len() > 0 && q.AllTerminal() {
		if err := humanLog.Rotate(); err != nil {
			opLog.Warn("log rotate on start failed", "error", err)
		}
	}

	watcher, err := config.WatchFile(filepath.Join(configDir, "pueue.ini"))
	if err != nil {
		opLog.Warn("config watch disabled", "error", err)
	}

	d := &Daemon{
		configDir:  configDir,
		dataDir:    dataDir,
		cfg:        cfg,
		cfgWatcher: watcher,
		q:          q,
		procs:      procs,
		humanLog:   humanLog,
		opLog:      opLog,
		codec:      proto.JSONCodec{},
		paused:     !cfg.ResumeAfterStart && q.Len() > 0,
		reqCh:      make(chan job),
	}
	return d, nil
}

// Run binds socketPath and blocks running the event loop until a
// STOPDAEMON request or ctx is cancelled. It refuses to start if a live
// daemon already answers on socketPath (spec.md §5: "advisory-lock or
// refuse to start if an active socket exists and responds").
func (d *Daemon) Run(ctx context.Context, socketPath string) error {
	if probeLiveDaemon(socketPath) {
		return fmt.Errorf("a pueued instance is already listening on %s", socketPath)
	}
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o700); err != nil {
		l.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	d.listener = l
	d.socketPath = socketPath

	d.opLog.Info("pueued listening", "socket", socketPath)

	go d.acceptLoop()

	err = d.loop(ctx)

	d.shutdown()
	return err
}

// acceptLoop accepts connections and hands each to a goroutine that does
// only I/O: decode one request, post a job, wait for the response, encode
// it, close. It never touches Queue/ProcessHandler/Config state directly.
func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return // listener closed during shutdown
		}
		go d.handleConn(conn)
	}
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	var req proto.Request
	if err := d.codec.Decode(conn, &req); err != nil {
		d.codec.Encode(conn, proto.Response{Status: proto.Error, Message: "bad request: " + err.Error()})
		return
	}

	respCh := make(chan proto.Response, 1)
	d.reqCh <- job{req: req, respCh: respCh, traceID: uuid.NewString()}

	resp := <-respCh
	if err := d.codec.Encode(conn, resp); err != nil {
		d.opLog.Warn("encode response failed", "error", err)
	}
}

// loop is the single event-loop goroutine: the only place that reads or
// mutates d.q, d.procs' bookkeeping, or d.cfg. One iteration follows
// spec.md §4.6 verbatim: reap, pending-reset-and-rotate, spawn-new, wait
// for the next thing to do.
func (d *Daemon) loop(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-d.procs.Reaped:
			d.applyCompletion(c)
			d.maybeRotateAfterReset()
			d.spawnReady()

		case j := <-d.reqCh:
			resp := d.dispatch(j)
			j.respCh <- resp
			if j.req.Mode == proto.ModeStopDaemon {
				return nil
			}

		case <-watcherChanged(d.cfgWatcher):
			d.reloadConfig()

		case <-ticker.C:
			d.maybeRotateAfterReset()
			d.spawnReady()
		}
	}
}

// watcherChanged returns w.Changed, or a nil channel (which blocks
// forever in a select) if watching is disabled.
func watcherChanged(w *config.Watcher) <-chan struct{} {
	if w == nil {
		return nil
	}
	return w.Changed
}

func (d *Daemon) reloadConfig() {
	cfg, err := config.Load(filepath.Join(d.configDir, "pueue.ini"))
	if err != nil {
		d.opLog.Warn("config reload failed", "error", err)
		return
	}
	d.cfg = cfg
}

// spawnReady implements check_for_new: while there is a free slot and the
// daemon is not paused, spawn the smallest queued entry.
func (d *Daemon) spawnReady() {
	if d.paused {
		return
	}
	for d.procs.Count() < d.cfg.MaxProcesses {
		key, ok := d.q.Next()
		if !ok {
			return
		}
		e := d.q.Get(key)
		if err := d.procs.Spawn(e); err != nil {
			e.Status = queue.StatusFailed
			e.Stderr = err.Error()
			d.q.Save()
			d.humanLog.Write(d.allEntries())
			continue
		}
		e.Start = time.Now().Format("15:04")
		e.Status = queue.StatusRunning
		d.q.Save()
	}
}

// maybeRotateAfterReset implements step 2 of spec.md §4.6: if a reset is
// pending and no children remain, rotate the log and reset the queue.
func (d *Daemon) maybeRotateAfterReset() {
	if !d.resetPending || d.procs.Count() > 0 {
		return
	}
	d.resetPending = false
	if err := d.humanLog.Rotate(); err != nil {
		d.opLog.Warn("rotate on reset failed", "error", err)
	}
	if err := d.q.Reset(); err != nil {
		d.opLog.Warn("queue reset failed", "error", err)
	}
}

func (d *Daemon) allEntries() map[int]*queue.Entry {
	out := make(map[int]*queue.Entry, d.q.Len())
	for _, k := range d.q.Keys() {
		out[k] = d.q.Get(k)
	}
	return out
}

// shutdown runs STOPDAEMON's exit path: kill every child, drain
// completions, close the listener, and remove the socket node.
func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, k := range d.q.Keys() {
		if d.q.Get(k).Status.Active() {
			d.procs.Kill(k, false, syscall.SIGKILL, true)
		}
	}
	d.procs.WaitForFinish(ctx, func(c process.Completion) {
		d.applyCompletion(c)
	})

	if d.cfgWatcher != nil {
		d.cfgWatcher.Close()
	}
	if d.listener != nil {
		d.listener.Close()
	}
	if d.socketPath != "" {
		os.Remove(d.socketPath)
	}

	matches, _ := filepath.Glob(filepath.Join(d.configDir, "pueue_process_*"))
	for _, m := range matches {
		os.Remove(m)
	}
}
