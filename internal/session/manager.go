// Package session implements the lab session lifecycle: launch, readiness,
// countdown and teardown, one Machine per user.
package session

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

// Factory builds the machine for a user on first use.
type Factory func(userID string) *Machine

// Manager handles all lab sessions, keyed by user
type Manager struct {
	sessions sync.Map // map[userID]*Machine
	mu       sync.Mutex
	factory  Factory
}

// NewManager creates a new session manager
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// Get returns the user's machine, creating an idle one if needed.
func (m *Manager) Get(userID string) *Machine {
	if value, ok := m.sessions.Load(userID); ok {
		return value.(*Machine)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.sessions.Load(userID); ok {
		return value.(*Machine)
	}
	machine := m.factory(userID)
	m.sessions.Store(userID, machine)
	klog.V(2).InfoS("Created lab session", "user", userID)
	return machine
}

// Lookup returns the user's machine if one exists.
func (m *Manager) Lookup(userID string) (*Machine, bool) {
	value, ok := m.sessions.Load(userID)
	if !ok {
		return nil, false
	}
	return value.(*Machine), true
}

// ListSessions returns every known session, optionally filtered by status, ordered by user.
func (m *Manager) ListSessions(status models.SessionStatus) map[string]models.LabSession {
	out := make(map[string]models.LabSession)
	m.sessions.Range(func(key, value interface{}) bool {
		snap := value.(*Machine).Snapshot()
		if status != "" && snap.Status != status {
			return true
		}
		out[key.(string)] = snap
		return true
	})
	return out
}

// Users returns the ids of every user with a session, sorted.
func (m *Manager) Users() []string {
	var users []string
	m.sessions.Range(func(key, _ interface{}) bool {
		users = append(users, key.(string))
		return true
	})
	sort.Strings(users)
	return users
}

// Shutdown stops every running lab, then closes all machines. Countdown
// timers do not outlive the process, so labs are not left running unattended.
func (m *Manager) Shutdown(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	m.sessions.Range(func(key, value interface{}) bool {
		machine := value.(*Machine)
		if machine.Snapshot().Status != models.StatusRunning {
			return true
		}
		g.Go(func() error {
			klog.InfoS("Stopping lab for shutdown", "user", key)
			_, err := machine.Stop(ctx)
			if err != nil {
				klog.ErrorS(err, "Failed to stop lab during shutdown", "user", key)
			}
			return nil
		})
		return true
	})
	err := g.Wait()

	m.sessions.Range(func(_, value interface{}) bool {
		value.(*Machine).Close()
		return true
	})
	return err
}
