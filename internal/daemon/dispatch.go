package daemon

import (
	"fmt"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/ianremillard/pueue/internal/process"
	"github.com/ianremillard/pueue/internal/proto"
	"github.com/ianremillard/pueue/internal/queue"
)

// dispatch runs on the event-loop goroutine only. It is the single
// switch statement spec.md §4.6 calls the "dispatch table":
// add/remove/switch/send/status/start/pause/stash/enqueue/restart/
// stop/kill/reset/clear/config/STOPDAEMON.
func (d *Daemon) dispatch(j job) (resp proto.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.opLog.Error("dispatch panic", "mode", j.req.Mode, "trace", j.traceID, "recovered", r, "stack", string(debug.Stack()))
			resp = proto.Response{Status: proto.Error, Message: "internal error"}
		}
	}()

	req := j.req
	switch req.Mode {
	case proto.ModeAdd:
		return d.handleAdd(req)
	case proto.ModeRemove:
		return d.handleKeyedBulk(req.Keys, d.q.Remove)
	case proto.ModeSwitch:
		return d.handleSwitch(req)
	case proto.ModeSend:
		return d.handleSend(req)
	case proto.ModeStatus:
		return d.handleStatus()
	case proto.ModeStart:
		return d.handleStart(req)
	case proto.ModePause:
		return d.handlePause(req)
	case proto.ModeStash:
		return d.handleKeyedBulk(req.Keys, d.q.Stash)
	case proto.ModeEnqueue:
		return d.handleKeyedBulk(req.Keys, d.q.Enqueue)
	case proto.ModeRestart:
		return d.handleRestart(req)
	case proto.ModeStop:
		return d.handleStop(req)
	case proto.ModeKill:
		return d.handleKill(req)
	case proto.ModeReset:
		return d.handleReset()
	case proto.ModeClear:
		return d.handleClear()
	case proto.ModeConfig:
		return d.handleConfig(req)
	case proto.ModeStopDaemon:
		return d.handleStopDaemon()
	default:
		return proto.Response{Status: proto.Error, Message: "unknown mode: " + string(req.Mode)}
	}
}

func (d *Daemon) handleAdd(req proto.Request) proto.Response {
	key, err := d.q.AddNew(req.Command, req.Path)
	if err != nil {
		return proto.Response{Status: proto.Error, Message: err.Error()}
	}
	return proto.Response{Status: proto.Success, Message: fmt.Sprintf("enqueued as #%d", key)}
}

// handleKeyedBulk runs op against every key, aggregating per spec.md §7:
// the overall response is `error` iff at least one key failed.
func (d *Daemon) handleKeyedBulk(keys []int, op func(int) error) proto.Response {
	var failed []string
	var ok []string
	for _, k := range keys {
		if err := op(k); err != nil {
			failed = append(failed, fmt.Sprintf("#%d: %s", k, err.Error()))
		} else {
			ok = append(ok, fmt.Sprintf("#%d", k))
		}
	}
	if len(failed) > 0 {
		msg := strings.Join(failed, "; ")
		if len(ok) > 0 {
			msg = "succeeded: " + strings.Join(ok, ", ") + "; failed: " + msg
		}
		return proto.Response{Status: proto.Error, Message: msg}
	}
	return proto.Response{Status: proto.Success, Message: "ok: " + strings.Join(ok, ", ")}
}

func (d *Daemon) handleSwitch(req proto.Request) proto.Response {
	if err := d.q.Switch(req.First, req.Second); err != nil {
		return proto.Response{Status: proto.Error, Message: err.Error()}
	}
	return proto.Response{Status: proto.Success, Message: "switched"}
}

func (d *Daemon) handleSend(req proto.Request) proto.Response {
	if stopping, _ := d.procs.StopRequested(req.Key); stopping {
		return proto.Response{Status: proto.Error, Message: fmt.Sprintf("command #%d is already stopping, refusing to send input", req.Key)}
	}
	if err := d.procs.SendInput(req.Key, req.Input); err != nil {
		return proto.Response{Status: proto.Error, Message: err.Error()}
	}
	return proto.Response{Status: proto.Success, Message: "message sent"}
}

func (d *Daemon) handleStatus() proto.Response {
	state := proto.DaemonRunning
	if d.paused {
		state = proto.DaemonPaused
	}

	data := d.q.Snapshot()
	if len(data) == 0 {
		return proto.Response{Status: proto.Success, DaemonState: state, DataEmpty: "Queue is empty"}
	}

	stats := make(map[int]*proto.ProcessStats)
	for k, e := range data {
		if !e.Status.Active() {
			continue
		}
		if rss, cpu, paused, ok := d.procs.Stats(k); ok {
			stats[k] = &proto.ProcessStats{RSSBytes: rss, CPUPercent: cpu, Paused: paused}
		}
	}

	return proto.Response{Status: proto.Success, DaemonState: state, Data: data, Stats: stats}
}

func (d *Daemon) handleStart(req proto.Request) proto.Response {
	if len(req.Keys) == 0 {
		d.paused = false
		return proto.Response{Status: proto.Success, Message: "daemon resumed"}
	}
	return d.handleKeyedBulk(req.Keys, func(key int) error {
		e := d.q.Get(key)
		if e == nil {
			return fmt.Errorf("no command with key #%d", key)
		}
		switch e.Status {
		case queue.StatusPaused:
			if err := d.procs.Resume(key); err != nil {
				return err
			}
			e.Status = queue.StatusRunning
			return d.q.Save()
		case queue.StatusQueued:
			if err := d.procs.Spawn(e); err != nil {
				e.Status = queue.StatusFailed
				e.Stderr = err.Error()
				return d.q.Save()
			}
			e.Start = time.Now().Format("15:04")
			e.Status = queue.StatusRunning
			return d.q.Save()
		default:
			return fmt.Errorf("command #%d is not paused or queued", key)
		}
	})
}

func (d *Daemon) handlePause(req proto.Request) proto.Response {
	if len(req.Keys) == 0 {
		d.paused = true
		if req.Wait {
			return proto.Response{Status: proto.Success, Message: "daemon paused (running tasks left to finish)"}
		}
		return proto.Response{Status: proto.Success, Message: "daemon paused"}
	}
	return d.handleKeyedBulk(req.Keys, func(key int) error {
		e := d.q.Get(key)
		if e == nil {
			return fmt.Errorf("no command with key #%d", key)
		}
		if e.Status != queue.StatusRunning {
			return fmt.Errorf("command #%d is not running", key)
		}
		if req.Wait {
			// Let the running child finish on its own; no signal sent.
			return nil
		}
		if err := d.procs.Pause(key); err != nil {
			return err
		}
		e.Status = queue.StatusPaused
		return d.q.Save()
	})
}

func (d *Daemon) handleRestart(req proto.Request) proto.Response {
	var failed, ok []string
	for _, k := range req.Keys {
		newKey, err := d.q.Restart(k)
		if err != nil {
			failed = append(failed, fmt.Sprintf("#%d: %s", k, err.Error()))
			continue
		}
		ok = append(ok, fmt.Sprintf("#%d -> #%d", k, newKey))
	}
	if len(failed) > 0 {
		return proto.Response{Status: proto.Error, Message: strings.Join(failed, "; ")}
	}
	return proto.Response{Status: proto.Success, Message: "restarted: " + strings.Join(ok, ", ")}
}

func (d *Daemon) handleStop(req proto.Request) proto.Response {
	keys := req.Keys
	if len(keys) == 0 {
		keys = d.runningKeys()
	}
	return d.handleKeyedBulk(keys, func(key int) error {
		e := d.q.Get(key)
		if e == nil || e.Status != queue.StatusRunning {
			return fmt.Errorf("command #%d is not running", key)
		}
		if err := d.procs.Stop(key, req.Remove); err != nil {
			return err
		}
		e.Status = queue.StatusStopping
		return d.q.Save()
	})
}

func (d *Daemon) handleKill(req proto.Request) proto.Response {
	sig, err := process.ParseSignal(req.Signal)
	if err != nil {
		return proto.Response{Status: proto.Error, Message: err.Error()}
	}
	keys := req.Keys
	if len(keys) == 0 {
		keys = d.runningKeys()
	}
	return d.handleKeyedBulk(keys, func(key int) error {
		e := d.q.Get(key)
		if e == nil || e.Status != queue.StatusRunning {
			return fmt.Errorf("command #%d is not running", key)
		}
		if err := d.procs.Kill(key, req.Remove, sig, true); err != nil {
			return err
		}
		e.Status = queue.StatusKilling
		return d.q.Save()
	})
}

func (d *Daemon) runningKeys() []int {
	var keys []int
	for _, k := range d.q.Keys() {
		if d.q.Get(k).Status.Active() {
			keys = append(keys, k)
		}
	}
	return keys
}

func (d *Daemon) handleReset() proto.Response {
	for _, k := range d.runningKeys() {
		d.procs.Kill(k, false, syscall.SIGKILL, true)
	}
	d.resetPending = true
	return proto.Response{Status: proto.Success, Message: "queue will reset once running commands finish"}
}

func (d *Daemon) handleClear() proto.Response {
	if err := d.q.Clear(); err != nil {
		return proto.Response{Status: proto.Error, Message: err.Error()}
	}
	if err := d.humanLog.Rotate(); err != nil {
		d.opLog.Warn("rotate on clear failed", "error", err)
	}
	return proto.Response{Status: proto.Success, Message: "cleared"}
}

func (d *Daemon) handleConfig(req proto.Request) proto.Response {
	if err := d.cfg.Update(req.Option, req.Value); err != nil {
		return proto.Response{Status: proto.Error, Message: err.Error()}
	}
	return proto.Response{Status: proto.Success, Message: fmt.Sprintf("%s = %s", req.Option, req.Value)}
}

func (d *Daemon) handleStopDaemon() proto.Response {
	return proto.Response{Status: proto.Success, Message: "daemon shutting down"}
}

// applyCompletion is the only place a ProcessHandler Completion is turned
// into a Queue state transition (spec.md §4.5 check_finished's branching).
func (d *Daemon) applyCompletion(c process.Completion) {
	e := d.q.Get(c.Key)
	if e == nil {
		return
	}

	wasStopping := e.Status == queue.StatusStopping
	wasKilling := e.Status == queue.StatusKilling
	e.End = time.Now().Format("15:04")
	e.Stdout = c.Stdout
	e.Stderr = c.Stderr

	if c.Killed {
		d.opLog.Warn("process force-killed", "key", c.Key)
	}

	switch {
	case c.Remove && (wasStopping || wasKilling):
		d.q.ForceRemove(c.Key)
	case wasStopping:
		e.Status = queue.StatusQueued
		e.Start = ""
		e.End = ""
	case wasKilling:
		e.Status = queue.StatusFailed
		rc := c.ReturnCode
		e.ReturnCode = &rc
	default:
		rc := c.ReturnCode
		e.ReturnCode = &rc
		if c.ReturnCode == 0 {
			e.Status = queue.StatusDone
		} else {
			e.Status = queue.StatusFailed
			if d.cfg.StopAtError {
				d.paused = true
			}
		}
	}

	d.q.Save()
	if err := d.humanLog.Write(d.allEntries()); err != nil {
		d.opLog.Warn("human log write failed", "error", err)
	}
}
