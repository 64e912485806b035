package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/control"
	"github.com/shehryarbajwa/virtual-lab/internal/countdown"
	"github.com/shehryarbajwa/virtual-lab/internal/readiness"
	"github.com/shehryarbajwa/virtual-lab/internal/remote"
	"github.com/shehryarbajwa/virtual-lab/internal/schedule"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

// Config tunes a Machine.
type Config struct {
	BudgetSeconds int
	TickInterval  time.Duration
	StopTimeout   time.Duration // bounds the automatic stop at expiry
	Probe         readiness.Config
}

// DefaultConfig is a 30 minute session with the default probe budget.
func DefaultConfig() Config {
	return Config{
		BudgetSeconds: int(models.DefaultSessionBudget.Seconds()),
		TickInterval:  time.Second,
		StopTimeout:   30 * time.Second,
		Probe:         readiness.DefaultConfig(),
	}
}

// Deps are the collaborators a Machine drives.
type Deps struct {
	Controller control.Controller
	Checker    readiness.Checker
	Scheduler  schedule.Scheduler
}

// Machine owns one user's lab session and is the only thing that mutates it.
//
// Every asynchronous completion (probe result, countdown tick, expiry) is
// tagged with the generation that scheduled it and dropped when the
// generation has moved on, so a stale cycle can never touch a newer session.
type Machine struct {
	userID string
	cfg    Config
	ctrl   control.Controller
	sched  schedule.Scheduler
	prober *readiness.Prober
	timer  *countdown.Timer

	// one start in flight; stops are tracked by stopping under mu
	starting *semaphore.Weighted

	mu       sync.Mutex
	gen      uint64
	timerRun uint64
	state    models.LabSession
	stopping bool
	closed   bool
	cycle    *readiness.Cycle
	subs     map[int]chan models.LabSession
	nextSub  int
}

// NewMachine creates an idle session for userID.
func NewMachine(userID string, deps Deps, cfg Config) *Machine {
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.Real{}
	}
	if deps.Checker == nil {
		deps.Checker = readiness.HTTPChecker{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	m := &Machine{
		userID:   userID,
		cfg:      cfg,
		ctrl:     deps.Controller,
		sched:    deps.Scheduler,
		prober:   readiness.NewProber(deps.Checker, deps.Scheduler, cfg.Probe),
		starting: semaphore.NewWeighted(1),
		state:    models.LabSession{Status: models.StatusIdle},
		subs:     make(map[int]chan models.LabSession),
	}
	m.timer = countdown.New(deps.Scheduler, cfg.TickInterval, countdown.Hooks{
		OnTick:   m.onTick,
		OnExpire: m.onExpire,
	})
	m.timer.Reset(cfg.BudgetSeconds)
	return m
}

// UserID is the owner of this session.
func (m *Machine) UserID() string {
	return m.userID
}

// Snapshot returns the current session.
func (m *Machine) Snapshot() models.LabSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Launch provisions a lab. It returns once the control endpoint answered;
// readiness and the countdown continue in the background.
func (m *Machine) Launch(ctx context.Context) (models.LabSession, error) {
	if !m.starting.TryAcquire(1) {
		return m.Snapshot(), ErrBusy
	}
	defer m.starting.Release(1)

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return m.Snapshot(), ErrClosed
	case m.stopping:
		m.mu.Unlock()
		return m.Snapshot(), ErrBusy
	case m.state.Status == models.StatusRunning:
		m.mu.Unlock()
		return m.Snapshot(), ErrAlreadyRunning
	case !m.state.Status.Launchable():
		m.mu.Unlock()
		return m.Snapshot(), ErrBusy
	}

	m.gen++
	now := m.sched.Now()
	m.state = models.LabSession{
		ID:        uuid.NewString(),
		Status:    models.StatusStarting,
		StartedAt: &now,
	}
	m.timer.Reset(m.cfg.BudgetSeconds)
	sessionID := m.state.ID
	m.publishLocked()
	m.mu.Unlock()

	klog.InfoS("Launching lab", "user", m.userID, "session", sessionID)
	res, err := m.ctrl.Start(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if err == nil {
			m.abandon(res.RemoteHandle)
		}
		return m.snapshotLocked(), ErrClosed
	}

	if err != nil {
		klog.ErrorS(err, "Failed to start lab", "user", m.userID, "session", sessionID)
		m.state = models.LabSession{
			Status:    models.StatusIdle,
			LastError: remote.UserMessage(err),
		}
		m.publishLocked()
		return m.snapshotLocked(), err
	}

	gen := m.gen
	m.state.Status = models.StatusRunning
	m.state.RemoteHandle = res.RemoteHandle
	m.state.EndpointURL = res.EndpointURL
	m.state.Ready = false
	m.cycle = m.prober.Start(res.EndpointURL, func(r readiness.Result) {
		m.onProbeDone(gen, r)
	})
	klog.InfoS("Lab running, waiting for notebook", "user", m.userID, "session", sessionID, "handle", res.RemoteHandle)
	m.publishLocked()
	return m.snapshotLocked(), nil
}

// Stop tears the lab down. The session ends STOPPED even when the control
// call fails; that error is still returned for the caller to surface.
func (m *Machine) Stop(ctx context.Context) (models.LabSession, error) {
	return m.stop(ctx, models.StopReasonUser, 0)
}

// stop runs the teardown. A non-zero run restricts it to that countdown run.
func (m *Machine) stop(ctx context.Context, reason models.StopReason, run uint64) (models.LabSession, error) {
	m.mu.Lock()
	switch {
	case run != 0 && (run != m.timerRun || m.stopping || m.state.Status != models.StatusRunning):
		m.mu.Unlock()
		return m.Snapshot(), nil
	case m.stopping, m.state.Status == models.StatusStarting:
		m.mu.Unlock()
		return m.Snapshot(), ErrBusy
	case m.state.RemoteHandle == "":
		m.mu.Unlock()
		return m.Snapshot(), control.ErrMissingHandle
	}

	m.stopping = true
	m.gen++
	m.cancelProbeLocked()
	m.state.Ready = false
	m.gateCountdownLocked()
	handle := m.state.RemoteHandle
	sessionID := m.state.ID
	m.publishLocked()
	m.mu.Unlock()

	klog.InfoS("Stopping lab", "user", m.userID, "session", sessionID, "handle", handle, "reason", reason)
	err := m.ctrl.Stop(ctx, handle)
	if err != nil {
		klog.ErrorS(err, "Stop request failed, treating lab as stopped", "user", m.userID, "handle", handle)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.sched.Now()
	m.stopping = false
	m.state = models.LabSession{
		ID:         sessionID,
		Status:     models.StatusStopped,
		StoppedAt:  &now,
		StopReason: reason,
	}
	if err != nil {
		m.state.LastError = remote.UserMessage(err)
	}
	m.timer.Reset(m.cfg.BudgetSeconds)
	m.timerRun = 0
	m.publishLocked()
	return m.snapshotLocked(), err
}

// Subscribe streams snapshots, starting with the current one. Slow
// subscribers miss intermediate snapshots rather than block the machine, but
// the most recent snapshot is always delivered.
func (m *Machine) Subscribe() (<-chan models.LabSession, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan models.LabSession, 16)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels all pending work and ends subscriptions. A running remote
// lab is left alone; use Stop first to tear it down.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.cancelCyclesLocked()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Machine) onProbeDone(gen uint64, r readiness.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.stopping || m.state.Status != models.StatusRunning {
		klog.V(2).InfoS("Dropping stale readiness result", "user", m.userID, "attempts", r.Attempts)
		return
	}

	now := m.sched.Now()
	m.cycle = nil
	m.state.Ready = true
	m.state.Degraded = r.Forced
	m.state.ReadyAt = &now
	m.timerRun = m.timer.Start(m.cfg.BudgetSeconds)
	m.gateCountdownLocked()

	if r.Forced {
		klog.InfoS("Notebook never answered, starting session anyway", "user", m.userID, "session", m.state.ID, "attempts", r.Attempts, "elapsed", r.Elapsed)
	} else {
		klog.InfoS("Notebook ready, session timer started", "user", m.userID, "session", m.state.ID, "attempts", r.Attempts, "budget", m.cfg.BudgetSeconds)
	}
	m.publishLocked()
}

func (m *Machine) onTick(run uint64, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run != m.timerRun {
		return
	}
	if remaining%60 == 0 {
		klog.V(2).InfoS("Session countdown", "user", m.userID, "remaining", models.FormatCountdown(remaining))
	}
	m.publishLocked()
}

func (m *Machine) onExpire(run uint64) {
	m.mu.Lock()
	current := run == m.timerRun && !m.closed
	m.mu.Unlock()
	if !current {
		return
	}

	klog.InfoS("Session budget exhausted, stopping lab", "user", m.userID)
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()
	if _, err := m.stop(ctx, models.StopReasonExpired, run); err != nil {
		klog.ErrorS(err, "Automatic stop reported an error", "user", m.userID)
	}
}

// cancelCyclesLocked invalidates the probe cycle and the countdown.
func (m *Machine) cancelCyclesLocked() {
	m.cancelProbeLocked()
	m.timer.Cancel()
	m.timerRun = 0
}

func (m *Machine) cancelProbeLocked() {
	if m.cycle != nil {
		m.cycle.Cancel()
		m.cycle = nil
	}
}

// gateCountdownLocked lets the countdown decrement only while the lab is
// running and ready. A suspended countdown keeps its value.
func (m *Machine) gateCountdownLocked() {
	if m.state.Status == models.StatusRunning && m.state.Ready && !m.stopping {
		m.timer.Resume()
		return
	}
	m.timer.Suspend()
}

// abandon stops a lab that finished provisioning after the machine closed.
func (m *Machine) abandon(handle string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
		defer cancel()
		if err := m.ctrl.Stop(ctx, handle); err != nil {
			klog.ErrorS(err, "Failed to stop lab started during shutdown", "handle", handle)
		}
	}()
}

func (m *Machine) snapshotLocked() models.LabSession {
	s := m.state
	s.RemainingSeconds = m.timer.Remaining()
	s.Usage = models.UsageFor(s, m.cfg.BudgetSeconds)
	return s
}

func (m *Machine) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for id, ch := range m.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: drop the oldest so the newest state always arrives.
		select {
		case <-ch:
			klog.V(3).InfoS("Subscriber buffer full, dropped oldest snapshot", "user", m.userID, "subscriber", id)
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Machine) String() string {
	s := m.Snapshot()
	return fmt.Sprintf("lab[%s %s handle=%q ready=%t remaining=%d]", m.userID, s.Status, s.RemoteHandle, s.Ready, s.RemainingSeconds)
}
