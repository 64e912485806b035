package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1000, "1000 B"},
		{1536, "1.5 KB"},
		{2 * 1024 * 1024, "2 MB"},
		{1288490189, "1.2 GB"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatSize(tc.bytes), "bytes=%d", tc.bytes)
	}
}

func TestFormatCountdown(t *testing.T) {
	require.Equal(t, "30:00", FormatCountdown(1800))
	require.Equal(t, "00:59", FormatCountdown(59))
	require.Equal(t, "00:00", FormatCountdown(-3))
}

func TestUsageFor(t *testing.T) {
	budget := int(DefaultSessionBudget.Seconds())

	require.Equal(t, Usage{}, UsageFor(LabSession{Status: StatusIdle}, budget))

	notReady := LabSession{Status: StatusRunning, RemainingSeconds: budget}
	require.Equal(t, Usage{ActiveLabs: 1}, UsageFor(notReady, budget))

	ready := LabSession{Status: StatusRunning, Ready: true, RemainingSeconds: budget - 125}
	require.Equal(t, Usage{ActiveLabs: 1, RuntimeMinutes: 2}, UsageFor(ready, budget))
}

func TestStatusLaunchable(t *testing.T) {
	require.True(t, StatusIdle.Launchable())
	require.True(t, StatusStopped.Launchable())
	require.False(t, StatusStarting.Launchable())
	require.False(t, StatusRunning.Launchable())
}
