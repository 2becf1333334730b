package processmanager

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/control"
	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess/processcontrolimpl"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement"
)

type RunOptions struct {
	// ConfigFile is read when Config is nil
	ConfigFile string
	Config     *ProcessManagerConfig

	// RunDuration stops the runner after the given time; zero runs until signalled
	RunDuration time.Duration

	// Transport overrides the OS transport
	Transport managedprocess.Transport

	// OnReady is called once processes are added and the control server is serving
	OnReady func(supervisor processmanagement.ProcessSupervisor, server control.Server)
}

func Run(ctx context.Context, options RunOptions, logger logging.Logger) error {
	logger.Infof("Process manager runner starting...")

	logger.Infof("Platform: OS=%s, Arch=%s, CPUs=%d, Go=%s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())

	config := options.Config
	if config == nil {
		logger.Infof("Using CONFIGURATION FILE: %s", options.ConfigFile)

		var err error
		config, err = LoadConfigFromFile(options.ConfigFile)
		if err != nil {
			return err
		}
	} else {
		setConfigDefaults(config)
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", options.ConfigFile)
	}

	logger.Infof("Process manager port: %d, managed processes: %d, broadcast policy: %s",
		config.ProcessManager.Port, len(config.ManagedProcesses), config.ProcessManager.BroadcastPolicy)

	operationCtx := ctx
	if options.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", options.RunDuration)

		var cancel context.CancelFunc
		operationCtx, cancel = context.WithTimeout(ctx, options.RunDuration)
		defer cancel()
	}

	transport := options.Transport
	if transport == nil {
		transport = processcontrolimpl.NewOSTransport(processcontrolimpl.TransportOptions{
			GracefulTimeout: config.ProcessManager.GracefulTimeout,
		}, logger)
	}

	supervisor := processmanagement.NewProcessSupervisor(processmanagement.ProcessSupervisorOptions{
		BroadcastPolicy: config.ProcessManager.BroadcastPolicy,
	}, transport, logger)

	processes, err := CreateProcessesFromConfig(config, os.Environ(), logger)
	if err != nil {
		return err
	}

	autostart := make(map[string]bool, len(config.ManagedProcesses))
	for _, process := range config.ManagedProcesses {
		autostart[process.Name] = isAutostart(process)
	}

	// Registration phase
	for _, process := range processes {
		supervisor.AddProcess(process.Name, process.Command, process.Environment, process.WorkingDirectory)
	}

	var server control.Server
	if config.ProcessManager.Port >= 0 || config.ProcessManager.ControlEndpoint != "" {
		server, err = control.NewServer(control.ServerOptions{
			Endpoint: config.ProcessManager.ControlEndpoint,
			Port:     config.ProcessManager.Port,
		}, logger)
		if err != nil {
			return err
		}
		control.RegisterGRPCServerHandler(server.GRPC(), supervisor, logger)
		if err := server.Start(ctx); err != nil {
			return errors.NewInternalError("failed to start control server", err)
		}
	} else {
		logger.Infof("Control server is DISABLED")
	}

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	logger.Infof("Process manager is ready, starting processes...")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		// Lifecycle phase; failures are logged by the supervisor
		for _, process := range processes {
			if !autostart[process.Name] {
				logger.Infof("Process not started automatically, name: %s", process.Name)
				continue
			}
			supervisor.StartProcess(ctx, process.Name)
		}

		logger.Infof("All processes started, process manager is fully operational")
	}()

	if options.OnReady != nil {
		wg.Wait()
		options.OnReady(supervisor, server)
	}

	select {
	case receivedSignal := <-sig:
		logger.Infof("Process manager runner received signal: %v", receivedSignal)
	case <-operationCtx.Done():
		logger.Infof("Process manager runner context done: %v", operationCtx.Err())
	}

	logger.Infof("Waiting for processes start to finish...")
	wg.Wait()

	// Fresh context so an expired operation context does not cut shutdown short
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ProcessManager.ForceShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Errorf("Failed to stop control server: %v", err)
		}
	}

	if *config.ProcessManager.StopOnShutdown {
		logger.Infof("Stopping managed processes...")
		if err := supervisor.StopAll(shutdownCtx); err != nil {
			logger.Errorf("Failed to stop managed processes: %v", err)
		}
	} else {
		logger.Infof("Leaving managed processes running")
	}

	logger.Infof("Process manager runner stopped")

	return nil
}
