// Package readiness polls a freshly provisioned notebook until it answers.
//
// A running task is not the same as a servable notebook: Jupyter takes a
// few minutes to come up behind the task's address. The prober retries at a
// constant interval and, once its budget is spent, declares the endpoint
// ready anyway so the user can try it.
package readiness

import (
	"context"
	"net/http"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/schedule"
)

// Checker performs one readiness attempt. A nil error means the endpoint answered.
type Checker interface {
	Check(ctx context.Context, url string) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context, url string) error

func (f CheckFunc) Check(ctx context.Context, url string) error {
	return f(ctx, url)
}

// HTTPChecker treats any HTTP response, whatever its status, as ready.
type HTTPChecker struct {
	Client *http.Client
}

func (c HTTPChecker) Check(ctx context.Context, url string) error {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Config bounds a probe cycle.
type Config struct {
	Timeout    time.Duration // per attempt
	Interval   time.Duration // between a failed attempt and the next
	MaxRetries int           // retries after the initial attempt
}

// DefaultConfig is 37 attempts, 5s each, 10s apart: roughly six minutes.
func DefaultConfig() Config {
	return Config{
		Timeout:    5 * time.Second,
		Interval:   10 * time.Second,
		MaxRetries: 36,
	}
}

// Result is how a cycle resolved.
type Result struct {
	Attempts int
	Forced   bool // budget exhausted without an answer
	Elapsed  time.Duration
}

// Prober starts probe cycles.
type Prober struct {
	checker Checker
	sched   schedule.Scheduler
	cfg     Config
}

// NewProber creates a prober.
func NewProber(checker Checker, sched schedule.Scheduler, cfg Config) *Prober {
	return &Prober{
		checker: checker,
		sched:   sched,
		cfg:     cfg,
	}
}

// Cycle is one polling run against one URL.
type Cycle struct {
	p       *Prober
	url     string
	onDone  func(Result)
	started time.Time

	mu        sync.Mutex
	cancelled bool
	done      bool
	attempts  int
	task      schedule.Task
	abort     context.CancelFunc
}

// Start begins polling url. The first attempt is scheduled immediately and
// onDone is called at most once, never after Cancel returned.
func (p *Prober) Start(url string, onDone func(Result)) *Cycle {
	c := &Cycle{
		p:       p,
		url:     url,
		onDone:  onDone,
		started: p.sched.Now(),
	}
	c.scheduleAttempt(0, 0)
	return c
}

// Cancel suppresses every pending attempt and aborts the one in flight.
func (c *Cycle) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelled = true
	if c.task != nil {
		c.task.Stop()
		c.task = nil
	}
	if c.abort != nil {
		c.abort()
	}
}

// Attempts is the number of attempts issued so far.
func (c *Cycle) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Cycle) scheduleAttempt(n int, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled {
		return
	}
	c.task = c.p.sched.AfterFunc(delay, func() { c.attempt(n) })
}

func (c *Cycle) attempt(n int) {
	if n > c.p.cfg.MaxRetries {
		klog.InfoS("Readiness budget exhausted, declaring endpoint ready", "url", c.url, "attempts", n)
		c.finish(Result{Attempts: n, Forced: true})
		return
	}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.p.cfg.Timeout)
	c.abort = cancel
	c.attempts = n + 1
	c.mu.Unlock()

	klog.V(2).InfoS("Checking notebook readiness", "url", c.url, "attempt", n+1)
	err := c.p.checker.Check(ctx, c.url)
	cancel()

	c.mu.Lock()
	c.abort = nil
	cancelled := c.cancelled
	c.mu.Unlock()
	if cancelled {
		return
	}

	if err == nil {
		klog.InfoS("Notebook is ready", "url", c.url, "attempt", n+1)
		c.finish(Result{Attempts: n + 1})
		return
	}

	klog.V(2).InfoS("Notebook not ready yet", "url", c.url, "attempt", n+1, "err", err)
	c.scheduleAttempt(n+1, c.p.cfg.Interval)
}

func (c *Cycle) finish(r Result) {
	c.mu.Lock()
	if c.cancelled || c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.task = nil
	c.mu.Unlock()

	r.Elapsed = c.p.sched.Now().Sub(c.started)
	c.onDone(r)
}
