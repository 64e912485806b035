package models

import "time"

// SessionStatus represents the current state of a lab session
type SessionStatus string

const (
	StatusIdle     SessionStatus = "IDLE"
	StatusStarting SessionStatus = "STARTING"
	StatusRunning  SessionStatus = "RUNNING"
	StatusStopped  SessionStatus = "STOPPED"
)

// Launchable reports whether a new lab may be started from this status.
func (s SessionStatus) Launchable() bool {
	return s == StatusIdle || s == StatusStopped || s == ""
}

// StopReason records why a session left RUNNING.
type StopReason string

const (
	StopReasonUser    StopReason = "user"
	StopReasonExpired StopReason = "expired"
)

// DefaultSessionBudget is how long a ready lab may run before it is torn down.
const DefaultSessionBudget = 30 * time.Minute

// LabSession is a point-in-time view of a user's notebook environment
type LabSession struct {
	ID               string        `json:"id,omitempty"`
	Status           SessionStatus `json:"status"`
	RemoteHandle     string        `json:"remoteHandle,omitempty"`
	EndpointURL      string        `json:"endpointUrl,omitempty"`
	Ready            bool          `json:"ready"`
	Degraded         bool          `json:"degraded,omitempty"` // readiness was forced after the probe budget ran out
	RemainingSeconds int           `json:"remainingSeconds"`
	StartedAt        *time.Time    `json:"startedAt,omitempty"`
	ReadyAt          *time.Time    `json:"readyAt,omitempty"`
	StoppedAt        *time.Time    `json:"stoppedAt,omitempty"`
	StopReason       StopReason    `json:"stopReason,omitempty"`
	LastError        string        `json:"lastError,omitempty"`
	Usage            Usage         `json:"usage"`
}

// StartResult is what the control plane returns for a provisioned lab
type StartResult struct {
	EndpointURL  string `json:"endpointUrl"`
	RemoteHandle string `json:"remoteHandle"`
	PublicIP     string `json:"publicIp,omitempty"`
}
