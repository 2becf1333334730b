package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/control"
	"github.com/spf13/cobra"
)

var (
	addWorkingDir string
	addEnv        []string
	addInheritEnv bool
	addStart      bool
)

var addCmd = &cobra.Command{
	Use:   "add NAME -- COMMAND [ARGS...]",
	Short: "Register a managed process",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := parseEnv(addEnv)
		if err != nil {
			return err
		}

		name := args[0]
		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			err := gateway.AddProcess(ctx, control.AddProcessRequest{
				Name:               name,
				Command:            args[1:],
				Environment:        env,
				InheritEnvironment: addInheritEnv,
				WorkingDirectory:   addWorkingDir,
			})
			if err != nil {
				return fmt.Errorf("failed to add process: %w", err)
			}
			if addStart {
				if err := gateway.StartProcess(ctx, name); err != nil {
					return fmt.Errorf("failed to start process: %w", err)
				}
			}
			fmt.Printf("Process %s submitted\n", name)
			return nil
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a managed process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			return gateway.StartProcess(ctx, args[0])
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a managed process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			return gateway.StopProcess(ctx, args[0])
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a process that is not running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			return gateway.RemoveProcess(ctx, args[0])
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			processes, err := gateway.ListProcesses(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tPID\tSTARTED\tCOMMAND\tLAST ERROR")
			for _, p := range processes {
				pid, started := "-", "-"
				if p.PID > 0 {
					pid = fmt.Sprintf("%d", p.PID)
				}
				if p.StartTime != nil {
					started = p.StartTime.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Name, p.State, pid, started, strings.Join(p.Command, " "), p.LastError)
			}
			return w.Flush()
		})
	},
}

// parseEnv turns KEY=VALUE flags into a map
func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		i := strings.IndexByte(pair, '=')
		if i <= 0 {
			return nil, fmt.Errorf("invalid environment entry %q, expected KEY=VALUE", pair)
		}
		env[pair[:i]] = pair[i+1:]
	}
	return env, nil
}

func init() {
	rootCmd.AddCommand(addCmd, startCmd, stopCmd, removeCmd, listCmd)
	addCmd.Flags().StringVarP(&addWorkingDir, "working-dir", "w", "", "working directory")
	addCmd.Flags().StringArrayVarP(&addEnv, "env", "e", nil, "environment entry KEY=VALUE (repeatable)")
	addCmd.Flags().BoolVar(&addInheritEnv, "inherit-env", false, "inherit the master's environment")
	addCmd.Flags().BoolVar(&addStart, "start", false, "start the process after adding it")
}
