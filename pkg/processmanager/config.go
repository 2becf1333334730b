package processmanager

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/control"
	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort                 = 50055
	DefaultLogLevel             = "info"
	DefaultForceShutdownTimeout = 30 * time.Second
	DefaultGracefulTimeout      = 20 * time.Second
)

// ProcessManagerConfig represents the top-level configuration file structure
type ProcessManagerConfig struct {
	ProcessManager   ProcessManagerConfigOptions `yaml:"process_manager"`
	ManagedProcesses []ProcessConfig             `yaml:"managed_processes"`
}

// ProcessManagerConfigOptions represents process manager-level configuration
type ProcessManagerConfigOptions struct {
	Port                 int                               `yaml:"port"` // negative disables the control server
	ControlEndpoint      string                            `yaml:"control_endpoint,omitempty"`
	LogLevel             string                            `yaml:"log_level,omitempty"`
	ForceShutdownTimeout time.Duration                     `yaml:"force_shutdown_timeout,omitempty"`
	GracefulTimeout      time.Duration                     `yaml:"graceful_timeout,omitempty"`
	StopOnShutdown       *bool                             `yaml:"stop_on_shutdown,omitempty"`
	BroadcastPolicy      processmanagement.BroadcastPolicy `yaml:"broadcast_policy,omitempty"`
}

// ProcessConfig represents a single process configuration
type ProcessConfig struct {
	Name               string            `yaml:"name"`
	Command            []string          `yaml:"command"`
	WorkingDirectory   string            `yaml:"working_directory,omitempty"`
	InheritEnvironment bool              `yaml:"inherit_environment,omitempty"`
	Environment        map[string]string `yaml:"environment,omitempty"`
	Autostart          *bool             `yaml:"autostart,omitempty"`
	Enabled            *bool             `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false
}

// LoadConfigFromFile loads process manager configuration from a YAML file
func LoadConfigFromFile(filename string) (*ProcessManagerConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, errors.NewValidationError("failed to load configuration", err).WithContext("filename", filename)
	}
	return config, nil
}

// ParseConfig parses YAML configuration and applies defaults
func ParseConfig(data []byte) (*ProcessManagerConfig, error) {
	var config ProcessManagerConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	setConfigDefaults(&config)

	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *ProcessManagerConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateProcessManagerConfig(&config.ProcessManager); err != nil {
		return errors.NewValidationError("invalid process manager configuration", err)
	}

	if err := validateProcessesConfig(config.ManagedProcesses); err != nil {
		return errors.NewValidationError("invalid managed processes configuration", err)
	}

	return nil
}

// CreateProcessesFromConfig turns the enabled process entries into launch descriptions.
// environ supplies the inherited environment, normally os.Environ().
func CreateProcessesFromConfig(config *ProcessManagerConfig, environ []string, logger logging.Logger) ([]managedprocess.ProcessDescription, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}

	var processes []managedprocess.ProcessDescription

	for _, processConfig := range config.ManagedProcesses {
		if !isEnabled(processConfig) {
			logger.Infof("Skipping disabled process, name: %s", processConfig.Name)
			continue
		}

		env := processConfig.Environment
		if processConfig.InheritEnvironment {
			env = managedprocess.MergeEnvironment(environ, processConfig.Environment)
		}

		processes = append(processes, managedprocess.ProcessDescription{
			Name:             processConfig.Name,
			Command:          processConfig.Command,
			Environment:      env,
			WorkingDirectory: processConfig.WorkingDirectory,
		})
	}

	return processes, nil
}

func isEnabled(process ProcessConfig) bool {
	return process.Enabled == nil || *process.Enabled
}

func isAutostart(process ProcessConfig) bool {
	return process.Autostart == nil || *process.Autostart
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *ProcessManagerConfig) {
	if config.ProcessManager.Port == 0 {
		config.ProcessManager.Port = DefaultPort
	}
	if config.ProcessManager.LogLevel == "" {
		config.ProcessManager.LogLevel = DefaultLogLevel
	}
	if config.ProcessManager.ForceShutdownTimeout == 0 {
		config.ProcessManager.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}
	if config.ProcessManager.GracefulTimeout == 0 {
		config.ProcessManager.GracefulTimeout = DefaultGracefulTimeout
	}
	if config.ProcessManager.StopOnShutdown == nil {
		stop := true
		config.ProcessManager.StopOnShutdown = &stop
	}
	if config.ProcessManager.BroadcastPolicy == "" {
		config.ProcessManager.BroadcastPolicy = processmanagement.BroadcastStopOnNotRunning
	}

	for i := range config.ManagedProcesses {
		process := &config.ManagedProcesses[i]

		// Default enabled and autostart to true if not specified
		if process.Enabled == nil {
			enabled := true
			process.Enabled = &enabled
		}
		if process.Autostart == nil {
			autostart := true
			process.Autostart = &autostart
		}
	}
}

func validateProcessManagerConfig(config *ProcessManagerConfigOptions) error {
	if config.Port > 65535 {
		return errors.NewValidationError("port must be at most 65535", nil).WithContext("port", config.Port)
	}
	if config.ControlEndpoint != "" {
		if _, err := control.ParseEndpoint(config.ControlEndpoint); err != nil {
			return err
		}
	}
	if _, err := zaplogging.ParseLevel(config.LogLevel); err != nil {
		return err
	}
	if config.ForceShutdownTimeout < 0 {
		return errors.NewValidationError("force shutdown timeout cannot be negative", nil)
	}
	if config.GracefulTimeout < 0 {
		return errors.NewValidationError("graceful timeout cannot be negative", nil)
	}
	if config.BroadcastPolicy != "" {
		if err := config.BroadcastPolicy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateProcessesConfig(processes []ProcessConfig) error {
	names := make(map[string]int, len(processes))

	errorCollection := errors.NewErrorCollection()
	for i, process := range processes {
		if process.Name == "" {
			errorCollection.Add(errors.NewValidationError(
				fmt.Sprintf("process at index %d has no name", i), nil))
			continue
		}
		if first, exists := names[process.Name]; exists {
			errorCollection.Add(errors.NewConflictError("duplicate process name", nil).
				WithContext("name", process.Name).
				WithContext("first_index", first).
				WithContext("index", i))
			continue
		}
		names[process.Name] = i

		if len(process.Command) == 0 || process.Command[0] == "" {
			errorCollection.Add(errors.NewValidationError("process command is required", nil).
				WithContext("name", process.Name))
		}
	}
	return errorCollection.ToError()
}

// ValidateConfigFile validates a configuration file without running it
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return err
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	return nil
}

// ConfigSummary provides a high-level overview of configuration
type ConfigSummary struct {
	ProcessManagerPort int              `json:"process_manager_port"`
	LogLevel           string           `json:"log_level"`
	BroadcastPolicy    string           `json:"broadcast_policy"`
	TotalProcesses     int              `json:"total_processes"`
	EnabledProcesses   int              `json:"enabled_processes"`
	ManagedProcesses   []ProcessSummary `json:"managed_processes"`
	Error              string           `json:"error,omitempty"`
}

// ProcessSummary provides a summary of process configuration
type ProcessSummary struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Autostart      bool   `json:"autostart"`
	ExecutablePath string `json:"executable_path,omitempty"`
}

// GetConfigSummary returns a human-readable summary of the configuration
func GetConfigSummary(config *ProcessManagerConfig) ConfigSummary {
	if config == nil {
		return ConfigSummary{Error: "configuration is nil"}
	}

	summary := ConfigSummary{
		ProcessManagerPort: config.ProcessManager.Port,
		LogLevel:           config.ProcessManager.LogLevel,
		BroadcastPolicy:    string(config.ProcessManager.BroadcastPolicy),
		ManagedProcesses:   make([]ProcessSummary, 0, len(config.ManagedProcesses)),
	}

	for _, process := range config.ManagedProcesses {
		processSummary := ProcessSummary{
			Name:      process.Name,
			Enabled:   isEnabled(process),
			Autostart: isAutostart(process),
		}
		if len(process.Command) > 0 {
			processSummary.ExecutablePath = process.Command[0]
		}
		summary.ManagedProcesses = append(summary.ManagedProcesses, processSummary)

		if processSummary.Enabled {
			summary.EnabledProcesses++
		}
	}
	summary.TotalProcesses = len(summary.ManagedProcesses)

	return summary
}
