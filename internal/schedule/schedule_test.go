package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualRunsInDueOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var order []string
	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })
	m.AfterFunc(2*time.Second, func() { order = append(order, "c") })

	require.Equal(t, 1, m.Advance(time.Second))
	require.Equal(t, []string{"a"}, order)
	require.Equal(t, start.Add(time.Second), m.Now())

	require.Equal(t, 2, m.Advance(5*time.Second))
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, start.Add(6*time.Second), m.Now())
	require.Zero(t, m.Pending())
}

func TestManualChainedCallbacks(t *testing.T) {
	m := NewManual(time.Time{})

	count := 0
	var tick func()
	tick = func() {
		count++
		m.AfterFunc(time.Second, tick)
	}
	m.AfterFunc(time.Second, tick)

	require.Equal(t, 10, m.Advance(10*time.Second))
	require.Equal(t, 10, count)
	require.Equal(t, 1, m.Pending())
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Time{})

	ran := false
	task := m.AfterFunc(time.Second, func() { ran = true })
	require.True(t, task.Stop())
	require.False(t, task.Stop())

	m.Advance(time.Minute)
	require.False(t, ran)

	done := m.AfterFunc(0, func() {})
	require.Equal(t, 1, m.RunPending())
	require.False(t, done.Stop())
}
