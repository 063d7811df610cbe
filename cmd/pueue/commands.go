package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ianremillard/pueue/internal/proto"
)

func newAddCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "add -- <command...>",
		Short: "enqueue a shell command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := path
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("cannot determine working directory: %w", err)
				}
				dir = wd
			}
			resp := mustRequest(proto.Request{
				Mode:    proto.ModeAdd,
				Command: strings.Join(args, " "),
				Path:    dir,
			})
			fmt.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "working directory to run the command in (default: current directory)")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <keys...>",
		Short: "remove queued or finished commands",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeRemove, Keys: keys})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newSwitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <first> <second>",
		Short: "swap the queue position of two commands",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeSwitch, First: keys[0], Second: keys[1]})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <key> <message>",
		Short: "write a message to a running command's stdin (no newline is appended)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args[:1])
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeSend, Key: keys[0], Input: args[1]})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the daemon state and queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := mustRequest(proto.Request{Mode: proto.ModeStatus})
			fmt.Println(formatStatus(resp))
			return nil
		},
	}
}

func formatStatus(resp proto.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "daemon: %s\n", resp.DaemonState)

	if resp.DataEmpty != "" {
		b.WriteString(resp.DataEmpty)
		return b.String()
	}

	keys := make([]int, 0, len(resp.Data))
	for k := range resp.Data {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	for _, k := range keys {
		e := resp.Data[k]
		rc := "-"
		if e.ReturnCode != nil {
			rc = fmt.Sprintf("%d", *e.ReturnCode)
		}
		fmt.Fprintf(&b, "%-4d %-10s %-6s %s\n", k, e.Status, rc, e.Command)
		if stats, ok := resp.Stats[k]; ok {
			fmt.Fprintf(&b, "     rss=%d bytes cpu=%.1f%% paused=%t\n", stats.RSSBytes, stats.CPUPercent, stats.Paused)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start [keys...]",
		Short: "resume the daemon, or start/resume specific commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeStart, Keys: keys})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newPauseCommand() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "pause [keys...]",
		Short: "pause the daemon, or pause specific running commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModePause, Keys: keys, Wait: wait})
			fmt.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "let running commands finish on their own instead of signaling them")
	return cmd
}

func newStashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stash <keys...>",
		Short: "move queued commands to the stashed state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeStash, Keys: keys})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newEnqueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <keys...>",
		Short: "move stashed commands back to the queued state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeEnqueue, Keys: keys})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <keys...>",
		Short: "re-enqueue finished commands as new entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeRestart, Keys: keys})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newStopCommand() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "stop [keys...]",
		Short: "send SIGTERM to running commands (default: all running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeStop, Keys: keys, Remove: remove})
			fmt.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "delete the entry once it has stopped")
	return cmd
}

func newKillCommand() *cobra.Command {
	var remove bool
	var signal string
	cmd := &cobra.Command{
		Use:   "kill [keys...]",
		Short: "signal running commands (default: all running, default signal: term)",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			resp := mustRequest(proto.Request{Mode: proto.ModeKill, Keys: keys, Remove: remove, Signal: signal})
			fmt.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "delete the entry once it has stopped")
	cmd.Flags().StringVar(&signal, "signal", "", "signal name or number to send (default: term)")
	return cmd
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "kill everything running and clear the queue once it drains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := mustRequest(proto.Request{Mode: proto.ModeReset})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "remove finished commands from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := mustRequest(proto.Request{Mode: proto.ModeClear})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config <option> <value>",
		Short: "update a daemon config option and persist it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := mustRequest(proto.Request{Mode: proto.ModeConfig, Option: args[0], Value: args[1]})
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func newShutdownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "tell the daemon to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := mustRequest(proto.Request{Mode: proto.ModeStopDaemon})
			fmt.Println(resp.Message)
			return nil
		},
	}
}
