package models

import "fmt"

// Usage holds the dashboard counters derived from a session
type Usage struct {
	ActiveLabs     int `json:"activeLabs"`
	RuntimeMinutes int `json:"runtimeMinutes"`
}

// UsageFor derives counters from a session snapshot and the configured budget in seconds.
func UsageFor(s LabSession, budgetSeconds int) Usage {
	var u Usage
	if s.Status == StatusRunning {
		u.ActiveLabs = 1
		if s.Ready && budgetSeconds >= s.RemainingSeconds {
			u.RuntimeMinutes = (budgetSeconds - s.RemainingSeconds) / 60
		}
	}
	return u
}

// FormatCountdown renders seconds as MM:SS.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
