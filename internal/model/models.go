// Package model defines core data structures for pingcheck.
package model

import (
	"fmt"
	"strconv"
)

// Target is a named host, optionally with a port, to be probed.
type Target struct {
	Name string  `json:"name"`
	Host string  `json:"host"`
	Port *uint16 `json:"port,omitempty"`
}

// HasPort reports whether a port check should run for the target.
func (t Target) HasPort() bool {
	return t.Port != nil
}

// Address returns "host" or "host:port".
func (t Target) Address() string {
	if t.Port == nil {
		return t.Host
	}
	return fmt.Sprintf("%s:%d", t.Host, *t.Port)
}

// PortLabel returns the port for display, or "Not Checked".
func (t Target) PortLabel() string {
	if t.Port == nil {
		return NotChecked
	}
	return strconv.Itoa(int(*t.Port))
}

// NewPort returns a pointer to p, for building targets.
func NewPort(p uint16) *uint16 {
	return &p
}

// ReachState is the outcome of a reachability (echo) probe.
type ReachState string

const (
	Responding  ReachState = "responding"
	NoResponse  ReachState = "no_response"
	ProbeFailed ReachState = "probe_failed"
)

// Label returns the human readable form used in views.
func (s ReachState) Label() string {
	switch s {
	case Responding:
		return "Response received"
	case NoResponse:
		return "No response"
	case ProbeFailed:
		return "Ping failed"
	}
	return string(s)
}

// PortState is the outcome of a port-connect check.
type PortState string

const (
	PortOpen   PortState = "open"
	PortClosed PortState = "closed"
)

// ConnectionState is the combined verdict for a target.
type ConnectionState string

const (
	Connected         ConnectionState = "connected"
	NotConnected      ConnectionState = "not_connected"
	ConnectedPortOpen ConnectionState = "connected_port_open"
)

// Label returns the human readable form used in views.
func (c ConnectionState) Label() string {
	switch c {
	case Connected:
		return "Connected"
	case NotConnected:
		return "Not Connected"
	case ConnectedPortOpen:
		return "Connected (Port Open)"
	}
	return string(c)
}

// Display placeholders for absent values.
const (
	NotChecked = "Not Checked"
	NoLatency  = "N/A"
)

// ProbeResult is the result for one target in one run.
// PortState is nil when the target has no port; LatencyMs is nil unless the
// reachability probe got a reply.
type ProbeResult struct {
	Target     Target          `json:"target"`
	Connection ConnectionState `json:"connection_state"`
	Reach      ReachState      `json:"reach_state"`
	PortState  *PortState      `json:"port_state,omitempty"`
	LatencyMs  *float64        `json:"latency_ms,omitempty"`
}

// Compose builds a ProbeResult from the primitive outcomes. port is nil when
// no port check was made.
func Compose(target Target, reach ReachState, latencyMs float64, port *PortState) ProbeResult {
	res := ProbeResult{
		Target:     target,
		Connection: NotConnected,
		Reach:      reach,
	}
	if reach == Responding {
		res.Connection = Connected
		lat := latencyMs
		res.LatencyMs = &lat
	}
	if port != nil {
		ps := *port
		res.PortState = &ps
		if ps == PortOpen && res.Connection == NotConnected {
			res.Connection = ConnectedPortOpen
		}
	}
	return res
}

// PortStateLabel returns "Open", "Closed" or "Not Checked".
func (r ProbeResult) PortStateLabel() string {
	if r.PortState == nil {
		return NotChecked
	}
	if *r.PortState == PortOpen {
		return "Open"
	}
	return "Closed"
}

// LatencyLabel returns the latency in ms, or "N/A".
func (r ProbeResult) LatencyLabel() string {
	if r.LatencyMs == nil {
		return NoLatency
	}
	return strconv.FormatFloat(*r.LatencyMs, 'f', -1, 64)
}

// Failed reports whether the row should be flagged: not connected, or a
// checked port that is closed.
func (r ProbeResult) Failed() bool {
	if r.Connection == NotConnected {
		return true
	}
	return r.PortState != nil && *r.PortState == PortClosed
}

// TargetSet is a named, saved target list.
type TargetSet struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Source  string   `json:"source"`
	Targets []Target `json:"targets"`
}
