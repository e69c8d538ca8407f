// Package probes provides the network primitives used by a scan: a
// reachability (echo) probe and a single port-connect check.
//
// Primitives hold no orchestration state and never return an error for a
// failed probe; failures are expressed as a state value. The Err fields only
// describe why, for logging.
package probes

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/user/pingcheck/internal/model"
)

// DefaultEchoCount is the number of echo requests per reachability probe.
const DefaultEchoCount = 4

// Reply is the outcome of a reachability probe. LatencyMs is the last
// reported round-trip time and is only meaningful when State is Responding.
type Reply struct {
	State     model.ReachState
	LatencyMs float64
	Err       error
}

// Reachability checks network-layer responsiveness of a host.
type Reachability interface {
	Reach(ctx context.Context, host string, timeout time.Duration) Reply
}

// PortChecker attempts one transport connection to host:port.
// The returned error is diagnostic only; the state is always Open or Closed.
type PortChecker interface {
	Check(ctx context.Context, host string, port uint16, timeout time.Duration) (model.PortState, error)
}

// NewReachability returns the reachability primitive for a method name.
// "icmp" uses a raw socket; anything else uses the system ping binary.
func NewReachability(method string, count int) Reachability {
	if method == "icmp" {
		return NewICMPPinger(count)
	}
	return NewExecPinger(count)
}

// ConnErrorReason gives a short description of a dial failure.
func ConnErrorReason(err error) string {
	if err == nil {
		return ""
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if reason := errnoReason(err); reason != "" {
		return reason
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "unresolved"
	}
	return "error"
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
