//go:build windows

package probes

import (
	"errors"

	"golang.org/x/sys/windows"
)

// errnoReason maps the Winsock error behind a failed connect to a short reason.
func errnoReason(err error) string {
	switch {
	case errors.Is(err, windows.WSAECONNREFUSED):
		return "refused"
	case errors.Is(err, windows.WSAECONNRESET):
		return "reset"
	case errors.Is(err, windows.WSAEHOSTUNREACH):
		return "host unreachable"
	case errors.Is(err, windows.WSAENETUNREACH), errors.Is(err, windows.WSAENETDOWN):
		return "network unreachable"
	case errors.Is(err, windows.WSAEACCES):
		return "not permitted"
	}
	return ""
}
