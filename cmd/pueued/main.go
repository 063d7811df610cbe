// pueued is the background daemon: it owns the queue, spawns and
// supervises child processes, and answers requests from the pueue CLI
// over a local Unix socket.
//
// Usage:
//
//	pueued [--root <dir>]
//
// Grounded on GandalftheGUI-grove/cmd/catherdd/main.go's entrypoint shape:
// a --root flag with an env var override, and graceful shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ianremillard/pueue/internal/daemon"
)

func main() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pueued: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}
	defaultRoot := homeDir
	if env := os.Getenv("PUEUE_ROOT"); env != "" {
		defaultRoot = env
	}

	rootDir := flag.String("root", defaultRoot, "parent of .config/pueue and .local/share/pueue (env: PUEUE_ROOT)")
	flag.Parse()

	d, err := daemon.New(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pueued: %v\n", err)
		os.Exit(1)
	}

	socketPath := filepath.Join(*rootDir, ".config", "pueue", "pueue.sock")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := d.Run(ctx, socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "pueued: %v\n", err)
		os.Exit(1)
	}
}
