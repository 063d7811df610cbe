// pueue is the thin CLI client: it sends one request to pueued over a
// local Unix socket, prints the plain-text response, and exits 0 on
// success or 1 on error or an unreachable daemon (spec.md §6). It holds
// no state of its own.
//
// Grounded on davidolrik-overseer/cmd/root.go's cobra root-command shape
// and per-subcommand factory functions.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ianremillard/pueue/internal/proto"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pueue",
		Short:         "control a pueued task queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAddCommand(),
		newRemoveCommand(),
		newSwitchCommand(),
		newSendCommand(),
		newStatusCommand(),
		newStartCommand(),
		newPauseCommand(),
		newStashCommand(),
		newEnqueueCommand(),
		newRestartCommand(),
		newStopCommand(),
		newKillCommand(),
		newResetCommand(),
		newClearCommand(),
		newConfigCommand(),
		newShutdownCommand(),
	)
	return root
}

func parseKeys(args []string) ([]int, error) {
	keys := make([]int, 0, len(args))
	for _, a := range args {
		k, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", a, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
