package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/virtual-lab/internal/readiness"
	"github.com/shehryarbajwa/virtual-lab/internal/schedule"
	"github.com/shehryarbajwa/virtual-lab/internal/session"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

type stubController struct{}

func (stubController) Start(context.Context) (models.StartResult, error) {
	return models.StartResult{EndpointURL: "http://localhost:8888/lab", RemoteHandle: "c0ffee"}, nil
}

func (stubController) Stop(context.Context, string) error {
	return nil
}

func TestRootCommandName(t *testing.T) {
	require.Equal(t, "labctl", rootCmd.Use)

	names := []string{}
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"run", "stop", "files"})
}

func TestWatchUntilExpiry(t *testing.T) {
	sched := schedule.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := session.DefaultConfig()
	cfg.BudgetSeconds = 3

	m := session.NewMachine("ada", session.Deps{
		Controller: stubController{},
		Checker:    readiness.CheckFunc(func(context.Context, string) error { return nil }),
		Scheduler:  sched,
	}, cfg)
	defer m.Close()

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	var out bytes.Buffer
	done := make(chan error, 1)

	_, err := m.Launch(context.Background())
	require.NoError(t, err)

	go func() { done <- watch(context.Background(), updates, &out) }()

	sched.Advance(0)
	sched.Advance(3 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after expiry")
	}

	text := out.String()
	require.Contains(t, text, "Lab running (c0ffee)")
	require.Contains(t, text, "Jupyter ready: http://localhost:8888/lab")
	require.Contains(t, text, "Time remaining: 00:01")
	require.Contains(t, text, "Session time is up")
	require.Equal(t, models.StatusStopped, m.Snapshot().Status)
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, watch(ctx, make(chan models.LabSession), &bytes.Buffer{}))
}

func TestReportDegraded(t *testing.T) {
	var out bytes.Buffer
	report(&out,
		models.LabSession{Status: models.StatusRunning},
		models.LabSession{Status: models.StatusRunning, Ready: true, Degraded: true, EndpointURL: "http://x/lab"},
	)
	require.Contains(t, out.String(), "still starting up")
	require.Contains(t, out.String(), "Jupyter ready: http://x/lab")
}

func TestReportStopFailure(t *testing.T) {
	var out bytes.Buffer
	report(&out,
		models.LabSession{Status: models.StatusRunning},
		models.LabSession{Status: models.StatusStopped, StopReason: models.StopReasonUser, LastError: "gateway timeout"},
	)
	require.Equal(t, "Warning: gateway timeout\n", out.String())
}

func TestPrintListing(t *testing.T) {
	var out bytes.Buffer
	err := printListing(&out, models.FileListing{
		Folders: []models.Folder{{Name: "data", FullPath: "data/"}},
		Files:   []models.File{{Name: "model.pkl", FullPath: "model.pkl", Size: 1536}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "NAME"))
	require.True(t, strings.HasPrefix(lines[1], "data/"))
	require.Contains(t, lines[2], "1.5 KB")

	out.Reset()
	require.NoError(t, printListing(&out, models.FileListing{}))
	require.Equal(t, "No files found.\n", out.String())
}

