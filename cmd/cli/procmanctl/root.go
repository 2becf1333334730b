package main

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/control"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/logging/zaplogging"
	"github.com/spf13/cobra"
)

var (
	serverAddress string
	sender        string
	timeout       time.Duration
	verbose       bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "procmanctl",
	Short: "Control a running process master",
	Long: `procmanctl talks to the control server of a running process master.

It can register, start, stop and remove managed processes, send text or byte
messages to one process or broadcast them to all, and list process states.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddress, "server", "127.0.0.1:50055", "control server address")
	rootCmd.PersistentFlags().StringVar(&sender, "sender", "procmanctl", "sender name attached to messages")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client activity")
}

// withGateway connects to the master, runs fn and closes the connection
func withGateway(cmd *cobra.Command, fn func(ctx context.Context, gateway control.Contract) error) error {
	logger := logging.NewNullLogger()
	if verbose {
		zapLogger, err := zaplogging.NewZapLogger("debug")
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer zapLogger.Sync()
		logger = logging.NewLogger("module: procmanctl , ", zapLogger.LogFuncs())
	}

	connection, err := control.NewConnection(control.ConnectionOptions{Address: serverAddress}, logger)
	if err != nil {
		return err
	}
	defer connection.Shutdown()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	return fn(ctx, control.NewGRPCClientGateway(connection.GRPC(), logger))
}
