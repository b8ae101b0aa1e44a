package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/RiskSense-Ops/tmux/internal/client"
	"github.com/RiskSense-Ops/tmux/internal/core"
)

func NewRootCommand() *cobra.Command {
	var (
		socketName  string
		socketPath  string
		shellCmd    string
		loginShell  bool
		controlMode int
		verbose     int
	)

	rootCmd := &cobra.Command{
		Use:   "tmux [flags] [command ...]",
		Short: "tmux - terminal multiplexer",
		Long: `tmux - terminal multiplexer

With no command, attaches to the most recently used session, creating one if
none exists. Any arguments are forwarded to the server as a command.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			switch {
			case verbose >= 2:
				level = slog.LevelDebug
			case verbose == 1:
				level = slog.LevelInfo
			}
			slog.SetDefault(slog.New(
				tint.NewHandler(os.Stderr, &tint.Options{
					Level:      level,
					TimeFormat: time.DateTime,
				}),
			))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if shellCmd != "" && len(args) != 0 {
				return errors.New("shell command and command arguments are mutually exclusive")
			}

			path := socketPath
			if path == "" {
				name := socketName
				if name == "" {
					name = core.DefaultSocketName
				}
				var err error
				path, err = core.SocketPath(name)
				if err != nil {
					return err
				}
			}

			var flags client.Flags
			if loginShell {
				flags |= client.FlagLogin
			}
			if controlMode >= 1 {
				flags |= client.FlagControl
			}
			if controlMode >= 2 {
				flags |= client.FlagControlControl
			}

			status := client.Run(client.Config{
				Flags:        flags,
				SocketPath:   path,
				ShellCommand: shellCmd,
				Args:         args,
				StartServer:  client.SpawnServer(path),
			})
			os.Exit(status)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&socketName, "socket-name", "L", "",
		"socket name in the default socket directory")
	rootCmd.Flags().StringVarP(&socketPath, "socket-path", "S", "",
		"full path to the server socket")
	rootCmd.Flags().StringVarP(&shellCmd, "command", "c", "",
		"execute a shell command through the server")
	rootCmd.Flags().BoolVarP(&loginShell, "login", "l", false,
		"behave as a login shell")
	rootCmd.Flags().CountVarP(&controlMode, "control", "C",
		"control mode, repeat to take over the terminal")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v",
		"more output, repeat for even more")

	rootCmd.AddCommand(
		NewVersionCommand(),
	)

	return rootCmd
}

// Execute runs the root command, printing errors the cobra way.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
