package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shehryarbajwa/virtual-lab/internal/readiness"
	"github.com/shehryarbajwa/virtual-lab/internal/schedule"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

var errUnreachable = errors.New("dial tcp: connection refused")

type fakeController struct {
	mu       sync.Mutex
	starts   int
	stops    []string
	startErr error
	stopErr  error
	entered  chan struct{} // signalled when Start begins, if set
	release  chan struct{} // Start waits on it, if set

	stopEntered chan struct{} // signalled when Stop begins, if set
	stopRelease chan struct{} // Stop waits on it, if set
}

func (f *fakeController) Start(ctx context.Context) (models.StartResult, error) {
	f.mu.Lock()
	f.starts++
	n := f.starts
	err := f.startErr
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return models.StartResult{}, err
	}
	return models.StartResult{
		EndpointURL:  fmt.Sprintf("http://lab-%d", n),
		RemoteHandle: fmt.Sprintf("arn:%d", n),
	}, nil
}

func (f *fakeController) Stop(ctx context.Context, handle string) error {
	f.mu.Lock()
	f.stops = append(f.stops, handle)
	err := f.stopErr
	entered, release := f.stopEntered, f.stopRelease
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeController) stopCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stops...)
}

// probeTarget answers for URLs marked up.
type probeTarget struct {
	mu    sync.Mutex
	up    map[string]bool
	calls map[string]int
}

func newProbeTarget() *probeTarget {
	return &probeTarget{up: make(map[string]bool), calls: make(map[string]int)}
}

func (p *probeTarget) Check(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[url]++
	if p.up[url] {
		return nil
	}
	return errUnreachable
}

func (p *probeTarget) setUp(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up[url] = true
}

func (p *probeTarget) callsTo(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

type harness struct {
	machine *Machine
	ctrl    *fakeController
	target  *probeTarget
	sched   *schedule.Manual
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctrl:   &fakeController{},
		target: newProbeTarget(),
		sched:  schedule.NewManual(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)),
	}
	h.machine = NewMachine("ada", Deps{
		Controller: h.ctrl,
		Checker:    readiness.Checker(h.target),
		Scheduler:  h.sched,
	}, DefaultConfig())
	t.Cleanup(h.machine.Close)
	return h
}
