package managedprocess

import (
	"context"
	"sort"
	"strings"
)

// ProcessDescription is the immutable launch configuration of a managed process
type ProcessDescription struct {
	Name             string            `yaml:"name"`
	Command          []string          `yaml:"command"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
}

func (d ProcessDescription) clone() ProcessDescription {
	c := ProcessDescription{
		Name:             d.Name,
		Command:          append([]string(nil), d.Command...),
		Environment:      make(map[string]string, len(d.Environment)),
		WorkingDirectory: d.WorkingDirectory,
	}
	for k, v := range d.Environment {
		c.Environment[k] = v
	}
	return c
}

// EnvironmentList renders the environment as sorted KEY=VALUE pairs
func (d ProcessDescription) EnvironmentList() []string {
	env := make([]string, 0, len(d.Environment))
	for k, v := range d.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Handle identifies one spawned OS process
type Handle interface {
	PID() int

	// Done is closed when the OS process exits; nil if the transport cannot observe exits
	Done() <-chan struct{}

	// ExitError is valid after Done is closed
	ExitError() error
}

// Transport spawns, terminates and writes to OS processes
type Transport interface {
	Spawn(ctx context.Context, desc ProcessDescription) (Handle, error)
	Terminate(ctx context.Context, handle Handle) error
	Write(handle Handle, frame []byte) error
}

// Owner receives lifecycle callbacks. It is called without any process lock held.
type Owner interface {
	ProcessExited(name string, exitErr error)
}

// MergeEnvironment overlays overrides on base, a list of KEY=VALUE pairs such as os.Environ()
func MergeEnvironment(base []string, overrides map[string]string) map[string]string {
	env := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}
