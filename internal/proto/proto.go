// Package proto defines the wire records exchanged between the pueue CLI
// and pueued over the local Unix socket, and the framing used to carry
// them. One request per connection; one response; then close (spec §4.1).
package proto

import "github.com/ianremillard/pueue/internal/queue"

// Mode identifies a request's dispatch target. Unknown modes are rejected
// by the daemon with an error response (spec §4.6).
type Mode string

const (
	ModeAdd        Mode = "add"
	ModeRemove     Mode = "remove"
	ModeSwitch     Mode = "switch"
	ModeSend       Mode = "send"
	ModeStatus     Mode = "status"
	ModeStart      Mode = "start"
	ModePause      Mode = "pause"
	ModeStash      Mode = "stash"
	ModeEnqueue    Mode = "enqueue"
	ModeRestart    Mode = "restart"
	ModeStop       Mode = "stop"
	ModeKill       Mode = "kill"
	ModeReset      Mode = "reset"
	ModeClear      Mode = "clear"
	ModeConfig     Mode = "config"
	ModeStopDaemon Mode = "STOPDAEMON"
)

// Request is the single record type sent by a client, one per connection.
// Only the fields relevant to Mode are populated; the rest are zero.
type Request struct {
	Mode Mode `json:"mode"`

	Command string `json:"command,omitempty"`
	Path    string `json:"path,omitempty"`

	Keys []int `json:"keys,omitempty"`

	First  int `json:"first,omitempty"`
	Second int `json:"second,omitempty"`

	Input string `json:"input,omitempty"`
	Key   int    `json:"key,omitempty"`

	Wait   bool   `json:"wait,omitempty"`
	Remove bool   `json:"remove,omitempty"`
	Signal string `json:"signal,omitempty"`

	Option string `json:"option,omitempty"`
	Value  string `json:"value,omitempty"`
}

// ResponseStatus is the coarse outcome of a request.
type ResponseStatus string

const (
	Success ResponseStatus = "success"
	Error   ResponseStatus = "error"
)

// DaemonState is reported in `status` responses alongside the queue view.
type DaemonState string

const (
	DaemonRunning DaemonState = "running"
	DaemonPaused  DaemonState = "paused"
)

// Response is the single record type returned by the daemon.
type Response struct {
	Status  ResponseStatus `json:"status"`
	Message string         `json:"message"`

	// DaemonState and Data are populated only by `status` requests.
	DaemonState DaemonState           `json:"daemon_state,omitempty"`
	Data        map[int]*queue.Entry  `json:"data,omitempty"`
	DataEmpty   string                `json:"data_empty,omitempty"`
	Stats       map[int]*ProcessStats `json:"stats,omitempty"`
}

// ProcessStats is an optional, best-effort resource snapshot for a running
// entry's child process (spec §4.6 enrichment; never required for
// correctness — see SPEC_FULL.md §4.6).
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Paused     bool    `json:"paused"`
}
