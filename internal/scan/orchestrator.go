// Package scan runs probe sweeps over an ordered target list.
//
// A run probes its targets one at a time on a single worker goroutine and
// reports progress as events on a ResultChannel. At most one run is active
// per Orchestrator. Cancellation is cooperative: it is observed before each
// target and never interrupts a probe in flight.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/user/pingcheck/internal/model"
	"github.com/user/pingcheck/internal/probes"
	"github.com/user/pingcheck/internal/util"
)

var (
	// ErrRunActive is returned by Start while another run is in progress.
	ErrRunActive = errors.New("scan already running")
	// ErrInvalidTimeout is returned by Start for a timeout below one second.
	ErrInvalidTimeout = errors.New("timeout must be at least 1 second")
)

// Prober bundles the primitives a run uses.
type Prober struct {
	Reach probes.Reachability
	Ports probes.PortChecker
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l *util.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// Orchestrator starts and cancels runs.
type Orchestrator struct {
	prober Prober
	logger *util.Logger

	mu     sync.Mutex
	active *Run
}

// NewOrchestrator creates an orchestrator. Missing primitives default to the
// system ping binary and a TCP connect check.
func NewOrchestrator(prober Prober, opts ...Option) *Orchestrator {
	if prober.Reach == nil {
		prober.Reach = probes.NewExecPinger(probes.DefaultEchoCount)
	}
	if prober.Ports == nil {
		prober.Ports = probes.NewTCPChecker()
	}
	o := &Orchestrator{prober: prober}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) log() *util.Logger {
	if o.logger != nil {
		return o.logger
	}
	return util.GetLogger()
}

// Run is one sweep over a fixed target list.
type Run struct {
	ID        string
	StartedAt time.Time

	targets []model.Target
	timeout time.Duration

	cancelled atomic.Bool
	current   atomic.Int64
	events    *ResultChannel
	done      chan struct{}
}

// Events returns the run's result channel.
func (r *Run) Events() *ResultChannel {
	return r.events
}

// Targets returns a copy of the run's target list.
func (r *Run) Targets() []model.Target {
	return append([]model.Target(nil), r.targets...)
}

// Total is the number of targets in the run.
func (r *Run) Total() int {
	return len(r.targets)
}

// Timeout is the per-probe timeout of the run.
func (r *Run) Timeout() time.Duration {
	return r.timeout
}

// Current is the index of the target being probed, or -1 before the first.
func (r *Run) Current() int {
	return int(r.current.Load())
}

// Cancel requests the run to stop before its next target. It is safe to
// call any number of times, from any goroutine, and after the run ended.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// Done is closed once Finished has been published.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run has finished or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins a run over targets with a per-probe timeout in seconds and
// returns without waiting for any probe. Cancelling ctx stops the run at
// the next target boundary, like Cancel.
func (o *Orchestrator) Start(ctx context.Context, targets []model.Target, timeoutSeconds int) (*Run, error) {
	if timeoutSeconds < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTimeout, timeoutSeconds)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return nil, ErrRunActive
	}

	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		targets:   append([]model.Target(nil), targets...),
		timeout:   time.Duration(timeoutSeconds) * time.Second,
		events:    newResultChannel(len(targets)),
		done:      make(chan struct{}),
	}
	run.current.Store(-1)
	o.active = run

	o.log().Info("Scan started", "run", run.ID, "targets", len(run.targets), "timeout", run.timeout)
	go o.execute(ctx, run)
	return run, nil
}

// Cancel requests the given run to stop. A nil run is ignored.
func (o *Orchestrator) Cancel(run *Run) {
	if run == nil {
		return
	}
	if !run.Cancelled() {
		o.log().Info("Scan stop requested", "run", run.ID)
	}
	run.Cancel()
}

// Active returns the run in progress, or nil.
func (o *Orchestrator) Active() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	defer close(run.done)

	// Probes are never interrupted by cancellation; only the boundary
	// check below observes ctx.
	probeCtx := context.WithoutCancel(ctx)

	completed := true
	scanned := 0
	for i, target := range run.targets {
		if run.Cancelled() || ctx.Err() != nil {
			completed = false
			break
		}
		run.current.Store(int64(i))
		run.events.publish(Scanning{Index: i, Total: len(run.targets), Target: target})

		result := o.probe(probeCtx, run, target)
		run.events.publish(Result{Index: i, ProbeResult: result})
		scanned++
	}

	o.mu.Lock()
	if o.active == run {
		o.active = nil
	}
	o.mu.Unlock()

	o.log().Info("Scan finished", "run", run.ID, "scanned", scanned,
		"completed", completed, "elapsed", time.Since(run.StartedAt).Round(time.Millisecond))
	run.events.publish(Finished{Completed: completed, Scanned: scanned})
	run.events.close()
}

func (o *Orchestrator) probe(ctx context.Context, run *Run, target model.Target) model.ProbeResult {
	reply := o.reach(ctx, run, target)
	if reply.Err != nil {
		o.log().Debug("Reachability probe failed", "run", run.ID, "target", target.Name,
			"state", reply.State, "error", reply.Err)
	}

	var port *model.PortState
	if target.HasPort() {
		state := o.checkPort(ctx, run, target)
		port = &state
	}

	return model.Compose(target, reply.State, reply.LatencyMs, port)
}

// reach runs the reachability primitive, turning a panic into ProbeFailed
// so every target still yields a result.
func (o *Orchestrator) reach(ctx context.Context, run *Run, target model.Target) (reply probes.Reply) {
	defer func() {
		if r := recover(); r != nil {
			o.log().Error("Reachability probe panicked", "run", run.ID, "target", target.Name, "panic", r)
			reply = probes.Reply{State: model.ProbeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return o.prober.Reach.Reach(ctx, target.Host, run.timeout)
}

func (o *Orchestrator) checkPort(ctx context.Context, run *Run, target model.Target) (state model.PortState) {
	defer func() {
		if r := recover(); r != nil {
			o.log().Error("Port check panicked", "run", run.ID, "target", target.Name, "panic", r)
			state = model.PortClosed
		}
	}()
	state, err := o.prober.Ports.Check(ctx, target.Host, *target.Port, run.timeout)
	if err != nil {
		o.log().Debug("Port check failed", "run", run.ID, "target", target.Name,
			"port", *target.Port, "reason", probes.ConnErrorReason(err))
	}
	if state != model.PortOpen {
		state = model.PortClosed
	}
	return state
}
