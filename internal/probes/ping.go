package probes

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/user/pingcheck/internal/model"
)

var (
	// "time=12.3 ms", "time=12ms", "time<1ms" (Windows sub-millisecond)
	rttRegex = regexp.MustCompile(`(?i)time[=<]\s*([0-9]+(?:\.[0-9]+)?)\s*ms`)
	ttlRegex = regexp.MustCompile(`(?i)\bttl[=:]\s*[0-9]+`)

	unknownHostMarkers = []string{
		"unknown host",
		"could not find host",
		"cannot resolve",
		"name or service not known",
		"temporary failure in name resolution",
		"no address associated",
		"bad address",
	}
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecPinger probes reachability with the system ping binary.
type ExecPinger struct {
	count int
	goos  string
	run   commandRunner
}

// NewExecPinger creates a ping probe sending count echo requests.
func NewExecPinger(count int) *ExecPinger {
	if count <= 0 {
		count = DefaultEchoCount
	}
	return &ExecPinger{
		count: count,
		goos:  runtime.GOOS,
		run:   runCommand,
	}
}

// Reach pings host. timeout bounds the wait for each reply; the whole
// invocation is bounded by (count+1)*timeout.
func (p *ExecPinger) Reach(ctx context.Context, host string, timeout time.Duration) Reply {
	if host == "" || strings.HasPrefix(host, "-") {
		return Reply{State: model.ProbeFailed, Err: fmt.Errorf("invalid host %q", host)}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.count+1)*timeout)
	defer cancel()

	output, err := p.run(ctx, "ping", pingArgs(p.goos, p.count, host, timeout)...)
	return classifyPing(string(output), err, ctx.Err())
}

// pingArgs builds the ping command line for the given OS.
func pingArgs(goos string, count int, host string, timeout time.Duration) []string {
	n := strconv.Itoa(count)
	millis := strconv.FormatInt(timeout.Milliseconds(), 10)

	switch goos {
	case "windows":
		return []string{"-n", n, "-w", millis, host}
	case "darwin", "freebsd", "netbsd", "openbsd":
		// BSD ping takes the per-reply wait in milliseconds
		return []string{"-c", n, "-W", millis, host}
	default:
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		return []string{"-c", n, "-W", strconv.Itoa(secs), host}
	}
}

// classifyPing maps ping output and exit status to a Reply.
func classifyPing(output string, runErr, ctxErr error) Reply {
	if ttlRegex.MatchString(output) {
		latency, _ := lastRTT(output)
		return Reply{State: model.Responding, LatencyMs: latency}
	}

	if runErr == nil {
		return Reply{State: model.NoResponse}
	}

	// Killed by our own deadline: it ran, nothing answered.
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return Reply{State: model.NoResponse, Err: ctxErr}
	}

	if hasUnknownHost(output) {
		return Reply{State: model.ProbeFailed, Err: fmt.Errorf("%w: %s", runErr, firstLine(output))}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 {
		return Reply{State: model.NoResponse, Err: runErr}
	}

	return Reply{State: model.ProbeFailed, Err: runErr}
}

// lastRTT returns the last round-trip time printed by ping.
func lastRTT(output string) (float64, bool) {
	matches := rttRegex.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func hasUnknownHost(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range unknownHostMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
