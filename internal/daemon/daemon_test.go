package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ianremillard/pueue/internal/proto"
)

func sendRequest(t *testing.T, socketPath string, req proto.Request) proto.Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	codec := proto.JSONCodec{}
	if err := codec.Encode(conn, req); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var resp proto.Response
	if err := codec.Decode(conn, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func startTestDaemon(t *testing.T) (socketPath string, stop func()) {
	t.Helper()
	root := t.TempDir()
	d, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	socketPath = filepath.Join(root, "pueue.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, socketPath)
		close(done)
	}()
	waitForSocket(t, socketPath)

	return socketPath, func() {
		cancel()
		<-done
	}
}

func TestAddAndRunToCompletion(t *testing.T) {
	socketPath, stop := startTestDaemon(t)
	defer stop()

	resp := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeAdd, Command: "exit 0", Path: os.TempDir()})
	if resp.Status != proto.Success {
		t.Fatalf("add failed: %s", resp.Message)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeStatus})
		if status.Status != proto.Success {
			t.Fatalf("status failed: %s", status.Message)
		}
		if e, ok := status.Data[0]; ok && e.Status == "done" {
			if e.ReturnCode == nil || *e.ReturnCode != 0 {
				t.Fatalf("expected returncode 0, got %+v", e.ReturnCode)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("entry never reached done within timeout")
}

func TestStopDaemonShutsDownCleanly(t *testing.T) {
	socketPath, stop := startTestDaemon(t)
	defer stop()

	resp := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeStopDaemon})
	if resp.Status != proto.Success {
		t.Fatalf("STOPDAEMON failed: %s", resp.Message)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); os.IsNotExist(err) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("socket node was not removed after STOPDAEMON")
}

func TestUnknownModeIsRejected(t *testing.T) {
	socketPath, stop := startTestDaemon(t)
	defer stop()

	resp := sendRequest(t, socketPath, proto.Request{Mode: "bogus"})
	if resp.Status != proto.Error {
		t.Fatalf("expected error status for unknown mode, got %+v", resp)
	}
}

func TestMaxProcessesBoundsConcurrency(t *testing.T) {
	socketPath, stop := startTestDaemon(t)
	defer stop()

	if resp := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeConfig, Option: "maxProcesses", Value: "2"}); resp.Status != proto.Success {
		t.Fatalf("config failed: %s", resp.Message)
	}

	for i := 0; i < 3; i++ {
		resp := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeAdd, Command: "sleep 5", Path: os.TempDir()})
		if resp.Status != proto.Success {
			t.Fatalf("add failed: %s", resp.Message)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	var running, queued int
	for time.Now().Before(deadline) {
		status := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeStatus})
		if status.Status != proto.Success {
			t.Fatalf("status failed: %s", status.Message)
		}
		running, queued = 0, 0
		for _, e := range status.Data {
			switch e.Status {
			case "running":
				running++
			case "queued":
				queued++
			}
		}
		if running == 2 && queued == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected 2 running + 1 queued within maxProcesses=2, got running=%d queued=%d", running, queued)
}

func TestPauseBlocksSpawning(t *testing.T) {
	socketPath, stop := startTestDaemon(t)
	defer stop()

	if resp := sendRequest(t, socketPath, proto.Request{Mode: proto.ModePause}); resp.Status != proto.Success {
		t.Fatalf("pause failed: %s", resp.Message)
	}
	if resp := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeAdd, Command: "exit 0", Path: os.TempDir()}); resp.Status != proto.Success {
		t.Fatalf("add failed: %s", resp.Message)
	}

	time.Sleep(200 * time.Millisecond)
	status := sendRequest(t, socketPath, proto.Request{Mode: proto.ModeStatus})
	e, ok := status.Data[0]
	if !ok {
		t.Fatal("expected entry 0 to exist")
	}
	if e.Status != "queued" {
		t.Fatalf("expected entry to remain queued while paused, got %s", e.Status)
	}
}
