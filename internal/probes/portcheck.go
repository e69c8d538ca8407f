package probes

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/user/pingcheck/internal/model"
)

// TCPChecker checks a port with a single TCP connect.
type TCPChecker struct{}

// NewTCPChecker creates a new port checker.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{}
}

// Check returns PortOpen if a connection could be established within
// timeout. The connection is closed before returning.
func (c *TCPChecker) Check(ctx context.Context, host string, port uint16, timeout time.Duration) (model.PortState, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return model.PortClosed, err
	}
	defer conn.Close()

	return model.PortOpen, nil
}
