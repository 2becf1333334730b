package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement"
	"github.com/core-tools/hsu-procmaster/pkg/processmanager"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config          string `long:"config" short:"c" description:"Configuration file path (YAML)"`
	WorkingDir      string `long:"working-dir" short:"w" description:"Working directory of the managed process given after --"`
	Name            string `long:"name" default:"ServerManager" description:"Name of the managed process given after --"`
	Port            int    `long:"port" default:"50055" description:"Control server port, negative disables it (without --config)"`
	ControlEndpoint string `long:"control-endpoint" description:"Control server endpoint, e.g. unix:///run/procman.sock (without --config)"`
	LogLevel        string `long:"log-level" default:"info" description:"Log level: debug, info, warn, error"`
	BroadcastPolicy string `long:"broadcast-policy" default:"stop_on_not_running" description:"stop_on_not_running or skip_not_running (without --config)"`
	RunDuration     int    `long:"run-duration" description:"Duration in seconds to run (debug feature)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	parser.Usage = "[OPTIONS] (--config FILE | --working-dir DIR -- COMMAND [ARGS...])"
	command, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config, err := buildConfig(opts, command)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	logLevel := opts.LogLevel
	if config != nil && config.ProcessManager.LogLevel != "" {
		logLevel = config.ProcessManager.LogLevel
	}

	zapLogger, err := zaplogging.NewZapLogger(logLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(logPrefix("procman"), zapLogger.LogFuncs())

	err = processmanager.Run(context.Background(), processmanager.RunOptions{
		ConfigFile:  opts.Config,
		Config:      config,
		RunDuration: time.Duration(opts.RunDuration) * time.Second,
	}, logger)
	if err != nil {
		logger.Errorf("Failed to run: %v", err)
		zapLogger.Sync()
		os.Exit(1)
	}
}

// buildConfig returns nil when the configuration comes from --config. Otherwise the process
// to supervise is given on the command line and inherits this process's environment.
func buildConfig(opts flagOptions, command []string) (*processmanager.ProcessManagerConfig, error) {
	if opts.Config != "" {
		if len(command) > 0 {
			return nil, fmt.Errorf("a command cannot be combined with --config")
		}
		config, err := processmanager.LoadConfigFromFile(opts.Config)
		if err != nil {
			return nil, err
		}
		return config, nil
	}

	if len(command) == 0 {
		return nil, fmt.Errorf("either --config or a command to supervise is required")
	}

	return &processmanager.ProcessManagerConfig{
		ProcessManager: processmanager.ProcessManagerConfigOptions{
			Port:            opts.Port,
			ControlEndpoint: opts.ControlEndpoint,
			LogLevel:        opts.LogLevel,
			BroadcastPolicy: processmanagement.BroadcastPolicy(opts.BroadcastPolicy),
		},
		ManagedProcesses: []processmanager.ProcessConfig{
			{
				Name:               opts.Name,
				Command:            command,
				WorkingDirectory:   opts.WorkingDir,
				InheritEnvironment: true,
			},
		},
	}, nil
}
