package control

import "time"

type PayloadKind string

const (
	PayloadKindText  PayloadKind = "text"
	PayloadKindBytes PayloadKind = "bytes"
)

type AddProcessRequest struct {
	Name               string            `json:"name"`
	Command            []string          `json:"command"`
	Environment        map[string]string `json:"environment,omitempty"`
	InheritEnvironment bool              `json:"inherit_environment,omitempty"`
	WorkingDirectory   string            `json:"working_directory,omitempty"`
}

type ProcessRequest struct {
	Name string `json:"name"`
}

// MessageRequest carries either text tokens or bytes. A bytes message without a checksum is
// checksummed on arrival.
type MessageRequest struct {
	Sender    string      `json:"sender,omitempty"`
	Recipient string      `json:"recipient,omitempty"`
	Kind      PayloadKind `json:"kind"`
	Tokens    []string    `json:"tokens,omitempty"`
	Data      []byte      `json:"data,omitempty"`
	Checksum  *uint64     `json:"checksum,omitempty"`
}

type Empty struct{}

type ListProcessesRequest struct{}

type ProcessStatus struct {
	Name             string     `json:"name"`
	State            string     `json:"state"`
	Command          []string   `json:"command"`
	WorkingDirectory string     `json:"working_directory,omitempty"`
	PID              int        `json:"pid,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	StartFailures    int        `json:"start_failures,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	Transitions      int        `json:"transitions"`
}

type ListProcessesResponse struct {
	Processes []ProcessStatus `json:"processes"`
}
