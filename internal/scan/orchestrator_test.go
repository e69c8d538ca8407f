package scan

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/pingcheck/internal/model"
	"github.com/user/pingcheck/internal/probes"
	"github.com/user/pingcheck/internal/util"
)

type fakeReach struct {
	mu      sync.Mutex
	replies map[string]probes.Reply
	hosts   []string
	// gates block a host's probe until closed; entered is signalled first.
	gates   map[string]chan struct{}
	entered chan string
}

func (f *fakeReach) Reach(ctx context.Context, host string, timeout time.Duration) probes.Reply {
	f.mu.Lock()
	f.hosts = append(f.hosts, host)
	gate := f.gates[host]
	reply, ok := f.replies[host]
	f.mu.Unlock()

	if gate != nil {
		if f.entered != nil {
			f.entered <- host
		}
		<-gate
	}
	if !ok {
		return probes.Reply{State: model.NoResponse}
	}
	return reply
}

func (f *fakeReach) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hosts...)
}

type fakePorts struct {
	states map[uint16]model.PortState
}

func (f *fakePorts) Check(ctx context.Context, host string, port uint16, timeout time.Duration) (model.PortState, error) {
	if s, ok := f.states[port]; ok {
		return s, nil
	}
	return model.PortClosed, errors.New("connection refused")
}

type panicReach struct{}

func (panicReach) Reach(context.Context, string, time.Duration) probes.Reply {
	panic("boom")
}

func target(name, host string, port uint16) model.Target {
	t := model.Target{Name: name, Host: host}
	if port != 0 {
		t.Port = model.NewPort(port)
	}
	return t
}

func quietLogger() *util.Logger {
	return util.NewWriterLogger(slog.LevelError, &bytes.Buffer{})
}

// collect reads every event of a run until the channel closes.
func collect(t *testing.T, run *Run) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events().C():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("run did not finish; got %d events", len(events))
		}
	}
}

func results(events []Event) []model.ProbeResult {
	var out []model.ProbeResult
	for _, ev := range events {
		if r, ok := ev.(Result); ok {
			out = append(out, r.ProbeResult)
		}
	}
	return out
}

func finished(t *testing.T, events []Event) Finished {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	f, ok := events[len(events)-1].(Finished)
	if !ok {
		t.Fatalf("last event is %T, want Finished", events[len(events)-1])
	}
	return f
}

func TestScenarios(t *testing.T) {
	cases := []struct {
		name      string
		target    model.Target
		reply     probes.Reply
		portState model.PortState
		wantConn  model.ConnectionState
		wantPort  *model.PortState
		wantLat   *float64
	}{
		{
			name:      "responding with open port",
			target:    target("web", "93.184.216.1", 80),
			reply:     probes.Reply{State: model.Responding, LatencyMs: 12},
			portState: model.PortOpen,
			wantConn:  model.Connected,
			wantPort:  ptr(model.PortOpen),
			wantLat:   ptr(12.0),
		},
		{
			name:      "silent host with open port",
			target:    target("db", "10.0.0.5", 5432),
			reply:     probes.Reply{State: model.NoResponse},
			portState: model.PortOpen,
			wantConn:  model.ConnectedPortOpen,
			wantPort:  ptr(model.PortOpen),
		},
		{
			name:     "responding without port",
			target:   target("gw", "10.0.0.1", 0),
			reply:    probes.Reply{State: model.Responding, LatencyMs: 0.4},
			wantConn: model.Connected,
			wantLat:  ptr(0.4),
		},
		{
			name:      "probe failure with closed port",
			target:    target("bad", "nosuch.invalid", 22),
			reply:     probes.Reply{State: model.ProbeFailed, Err: errors.New("unknown host")},
			portState: model.PortClosed,
			wantConn:  model.NotConnected,
			wantPort:  ptr(model.PortClosed),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reach := &fakeReach{replies: map[string]probes.Reply{tc.target.Host: tc.reply}}
			ports := &fakePorts{states: map[uint16]model.PortState{}}
			if tc.target.HasPort() {
				ports.states[*tc.target.Port] = tc.portState
			}
			o := NewOrchestrator(Prober{Reach: reach, Ports: ports}, WithLogger(quietLogger()))

			run, err := o.Start(context.Background(), []model.Target{tc.target}, 2)
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			events := collect(t, run)
			if len(events) != 3 {
				t.Fatalf("got %d events, want 3", len(events))
			}
			if !finished(t, events).Completed {
				t.Fatal("run should complete")
			}

			got := results(events)[0]
			if got.Connection != tc.wantConn {
				t.Fatalf("connection = %s, want %s", got.Connection, tc.wantConn)
			}
			if !equalPtr(got.PortState, tc.wantPort) {
				t.Fatalf("port state = %v, want %v", deref(got.PortState), deref(tc.wantPort))
			}
			if !equalPtr(got.LatencyMs, tc.wantLat) {
				t.Fatalf("latency = %v, want %v", deref(got.LatencyMs), deref(tc.wantLat))
			}
			if got.Target.Name != tc.target.Name {
				t.Fatalf("target = %q, want %q", got.Target.Name, tc.target.Name)
			}
		})
	}
}

func TestEventOrder(t *testing.T) {
	targets := []model.Target{
		target("a", "10.0.0.1", 0),
		target("b", "10.0.0.2", 443),
		target("a", "10.0.0.3", 0),
	}
	reach := &fakeReach{}
	o := NewOrchestrator(Prober{Reach: reach, Ports: &fakePorts{}}, WithLogger(quietLogger()))

	run, err := o.Start(context.Background(), targets, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collect(t, run)

	if len(events) != 2*len(targets)+1 {
		t.Fatalf("got %d events, want %d", len(events), 2*len(targets)+1)
	}
	for i := range targets {
		s, ok := events[2*i].(Scanning)
		if !ok || s.Index != i || s.Total != len(targets) || s.Target.Host != targets[i].Host {
			t.Fatalf("event %d = %+v, want Scanning for index %d", 2*i, events[2*i], i)
		}
		r, ok := events[2*i+1].(Result)
		if !ok || r.Index != i || r.Target.Host != targets[i].Host {
			t.Fatalf("event %d = %+v, want Result for index %d", 2*i+1, events[2*i+1], i)
		}
	}
	f := finished(t, events)
	if !f.Completed || f.Scanned != len(targets) {
		t.Fatalf("finished = %+v", f)
	}

	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	if got := reach.called(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("probe order = %v, want %v", got, want)
	}
}

// cancelMidFirstTarget runs two targets and calls stop while the first
// target is still being checked.
func cancelMidFirstTarget(t *testing.T, stop func(o *Orchestrator, run *Run)) ([]Event, []string) {
	t.Helper()
	gate := make(chan struct{})
	reach := &fakeReach{
		replies: map[string]probes.Reply{"10.0.0.1": {State: model.Responding, LatencyMs: 1}},
		gates:   map[string]chan struct{}{"10.0.0.1": gate},
		entered: make(chan string, 1),
	}
	o := NewOrchestrator(Prober{Reach: reach, Ports: &fakePorts{}}, WithLogger(quietLogger()))

	targets := []model.Target{target("first", "10.0.0.1", 0), target("second", "10.0.0.2", 0)}
	run, err := o.Start(context.Background(), targets, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-reach.entered
	stop(o, run)
	close(gate)

	return collect(t, run), reach.called()
}

func TestCancelBetweenTargets(t *testing.T) {
	events, calls := cancelMidFirstTarget(t, func(o *Orchestrator, run *Run) {
		o.Cancel(run)
	})

	got := results(events)
	if len(got) != 1 || got[0].Target.Name != "first" {
		t.Fatalf("results = %+v, want exactly the first target", got)
	}
	if got[0].Connection != model.Connected {
		t.Fatal("the probe in flight must complete normally")
	}
	if f := finished(t, events); f.Completed || f.Scanned != 1 {
		t.Fatalf("finished = %+v, want incomplete after one target", f)
	}
	for _, ev := range events {
		if s, ok := ev.(Scanning); ok && s.Index == 1 {
			t.Fatal("second target must not be announced")
		}
	}
	if len(calls) != 1 {
		t.Fatalf("probed %v after cancel", calls)
	}
}

func TestCancelTwiceDuringRun(t *testing.T) {
	once, _ := cancelMidFirstTarget(t, func(o *Orchestrator, run *Run) {
		o.Cancel(run)
	})
	twice, calls := cancelMidFirstTarget(t, func(o *Orchestrator, run *Run) {
		o.Cancel(run)
		run.Cancel()
	})

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("repeated cancel changed the events:\n%+v\n%+v", once, twice)
	}
	if len(calls) != 1 {
		t.Fatalf("probed %v after cancel", calls)
	}
}

func TestEmptyTargetList(t *testing.T) {
	reach := &fakeReach{}
	o := NewOrchestrator(Prober{Reach: reach, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	run, err := o.Start(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	events := collect(t, run)
	want := []Event{Finished{Completed: true, Scanned: 0}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	if len(reach.called()) != 0 {
		t.Fatal("no probe may run")
	}
	<-run.Done()
	if o.Active() != nil {
		t.Fatal("active slot not cleared")
	}
}

func TestCancelBeforeFirstTarget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reach := &fakeReach{}
	o := NewOrchestrator(Prober{Reach: reach, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	run, err := o.Start(ctx, []model.Target{target("a", "10.0.0.1", 0)}, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	events := collect(t, run)
	if len(events) != 1 {
		t.Fatalf("got %d events, want only Finished", len(events))
	}
	if finished(t, events).Completed {
		t.Fatal("a cancelled run must not report completion")
	}
	if len(reach.called()) != 0 {
		t.Fatal("no probe may run")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	o := NewOrchestrator(Prober{Reach: &fakeReach{}, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	run, err := o.Start(context.Background(), []model.Target{target("a", "10.0.0.1", 0)}, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collect(t, run)
	if !finished(t, events).Completed {
		t.Fatal("run should complete")
	}

	// After the run has finished cancel has no observable effect.
	o.Cancel(run)
	run.Cancel()
	o.Cancel(nil)
	if _, ok := run.Events().TryReceive(); ok {
		t.Fatal("no event may follow Finished")
	}
}

func TestStartRejections(t *testing.T) {
	gate := make(chan struct{})
	reach := &fakeReach{
		gates:   map[string]chan struct{}{"10.0.0.1": gate},
		entered: make(chan string, 1),
	}
	o := NewOrchestrator(Prober{Reach: reach, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	targets := []model.Target{target("a", "10.0.0.1", 0)}

	if _, err := o.Start(context.Background(), targets, 0); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("timeout 0: err = %v, want ErrInvalidTimeout", err)
	}
	if o.Active() != nil {
		t.Fatal("a rejected start must not create a run")
	}

	run, err := o.Start(context.Background(), targets, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-reach.entered
	if o.Active() != run {
		t.Fatal("active run not recorded")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Start(context.Background(), targets, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrRunActive) {
			t.Fatalf("concurrent start: err = %v, want ErrRunActive", err)
		}
	}
	if o.Active() != run {
		t.Fatal("rejected starts must leave the active run untouched")
	}

	close(gate)
	collect(t, run)
	<-run.Done()
	if o.Active() != nil {
		t.Fatal("active slot not cleared after finish")
	}

	next, err := o.Start(context.Background(), []model.Target{target("b", "10.0.0.2", 0)}, 1)
	if err != nil {
		t.Fatalf("start after finish: %v", err)
	}
	collect(t, next)
}

func TestPanickingProbeStillYieldsResult(t *testing.T) {
	o := NewOrchestrator(Prober{Reach: panicReach{}, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	run, err := o.Start(context.Background(), []model.Target{target("a", "10.0.0.1", 0), target("b", "10.0.0.2", 0)}, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collect(t, run)
	got := results(events)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	for _, r := range got {
		if r.Reach != model.ProbeFailed || r.Connection != model.NotConnected {
			t.Fatalf("result = %+v, want probe failure", r)
		}
	}
	if !finished(t, events).Completed {
		t.Fatal("a failing probe must not abort the run")
	}
}

func TestDrainIsNonBlocking(t *testing.T) {
	gate := make(chan struct{})
	reach := &fakeReach{
		gates:   map[string]chan struct{}{"10.0.0.2": gate},
		entered: make(chan string, 1),
	}
	o := NewOrchestrator(Prober{Reach: reach, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	run, err := o.Start(context.Background(), []model.Target{target("a", "10.0.0.1", 0), target("b", "10.0.0.2", 0)}, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-reach.entered

	events, closed := run.Events().Drain()
	if closed {
		t.Fatal("channel closed while a probe is in flight")
	}
	// Scanning(0), Result(0), Scanning(1)
	if len(events) != 3 {
		t.Fatalf("drained %d events, want 3", len(events))
	}
	if run.Current() != 1 {
		t.Fatalf("current = %d, want 1", run.Current())
	}
	if ev, ok := run.Events().TryReceive(); ok {
		t.Fatalf("unexpected pending event %+v", ev)
	}

	close(gate)
	if err := run.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	events, closed = run.Events().Drain()
	if !closed || len(events) != 2 {
		t.Fatalf("after finish drained %d events (closed=%v), want Result and Finished", len(events), closed)
	}
}

func TestTargetsCopiedAtStart(t *testing.T) {
	targets := []model.Target{target("a", "10.0.0.1", 0)}
	o := NewOrchestrator(Prober{Reach: &fakeReach{}, Ports: &fakePorts{}}, WithLogger(quietLogger()))
	run, err := o.Start(context.Background(), targets, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	targets[0].Host = "changed"
	events := collect(t, run)
	if got := results(events)[0].Target.Host; got != "10.0.0.1" {
		t.Fatalf("run saw caller mutation: %q", got)
	}
}

func TestRunLogsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := util.NewWriterLogger(slog.LevelInfo, &buf)
	o := NewOrchestrator(Prober{Reach: &fakeReach{}, Ports: &fakePorts{}}, WithLogger(logger))
	run, err := o.Start(context.Background(), []model.Target{target("a", "10.0.0.1", 0)}, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	collect(t, run)

	out := buf.String()
	for _, want := range []string{"Scan started", "Scan finished", "run=" + run.ID} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
