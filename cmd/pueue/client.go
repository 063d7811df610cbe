package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ianremillard/pueue/internal/proto"
)

// rootDir resolves the data root the same way pueued does: PUEUE_ROOT env
// var, falling back to the user's home directory.
func rootDir() string {
	if env := os.Getenv("PUEUE_ROOT"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}
	home, _ := os.UserHomeDir()
	return home
}

func socketPath() string {
	return filepath.Join(rootDir(), ".config", "pueue", "pueue.sock")
}

// pingDaemon reports whether a pueued instance is alive and answering on
// sock.
func pingDaemon(sock string) bool {
	conn, err := net.DialTimeout("unix", sock, 500*time.Millisecond)
	if err != nil {
		return false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(500 * time.Millisecond))

	codec := proto.JSONCodec{}
	if err := codec.Encode(conn, proto.Request{Mode: proto.ModeStatus}); err != nil {
		return false
	}
	var resp proto.Response
	return codec.Decode(conn, &resp) == nil
}

// ensureDaemon starts pueued in the background (via PATH lookup next to
// this binary) if it is not already answering on sock. Mirrors
// GandalftheGUI-grove/cmd/catherd/main.go's ensureDaemon.
func ensureDaemon(sock string) error {
	if pingDaemon(sock) {
		return nil
	}

	exe, _ := os.Executable()
	daemonBin := filepath.Join(filepath.Dir(exe), "pueued")
	if _, err := os.Stat(daemonBin); err != nil {
		daemonBin = "pueued"
	}

	cmd := exec.Command(daemonBin, "--root", rootDir())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start pueued: %w", err)
	}

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if pingDaemon(sock) {
			return nil
		}
	}
	return fmt.Errorf("pueued did not start in time")
}

// request connects to pueued (starting it if necessary), sends req, and
// returns the decoded response.
func request(req proto.Request) (proto.Response, error) {
	sock := socketPath()
	if err := ensureDaemon(sock); err != nil {
		return proto.Response{}, err
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return proto.Response{}, fmt.Errorf("cannot connect to pueued: %w", err)
	}
	defer conn.Close()

	codec := proto.JSONCodec{}
	if err := codec.Encode(conn, req); err != nil {
		return proto.Response{}, err
	}
	var resp proto.Response
	if err := codec.Decode(conn, &resp); err != nil {
		return proto.Response{}, err
	}
	return resp, nil
}

// mustRequest sends req and prints+exits on any transport or logical
// error, matching spec.md §6's "exit code 0 on success, 1 when the
// response status is error or the daemon is unreachable".
func mustRequest(req proto.Request) proto.Response {
	resp, err := request(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pueue: %v\n", err)
		os.Exit(1)
	}
	if resp.Status == proto.Error {
		fmt.Fprintln(os.Stderr, resp.Message)
		os.Exit(1)
	}
	return resp
}
