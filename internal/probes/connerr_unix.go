//go:build !windows

package probes

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errnoReason maps the errno behind a failed connect to a short reason.
func errnoReason(err error) string {
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return "refused"
	case errors.Is(err, unix.ECONNRESET):
		return "reset"
	case errors.Is(err, unix.EHOSTUNREACH):
		return "host unreachable"
	case errors.Is(err, unix.ENETUNREACH), errors.Is(err, unix.ENETDOWN):
		return "network unreachable"
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return "not permitted"
	}
	return ""
}
