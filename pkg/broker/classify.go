package broker

import (
	"context"
	"errors"
	"net"
	"strings"

	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// NoGroupErrorSubstring is the substring Redis (and broadly, any broker
// modeled on its XREADGROUP semantics) uses to signal that a consumer group
// no longer exists.
const NoGroupErrorSubstring = "NOGROUP"

// BusyGroupErrorSubstring is the substring signaling "consumer group already
// exists" from XGROUP CREATE — treated as success by EnsureGroup.
const BusyGroupErrorSubstring = "BUSYGROUP"

// isConnErr reports whether err represents a connection-class failure:
// network disconnect, timeout, OS socket error, or context deadline or
// cancellation. Broker protocol errors such as NOGROUP/BUSYGROUP are not
// matched here (they are handled separately); the only message text it
// matches is a fixed list of transport-failure substrings.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// go-redis surfaces some disconnects as plain errors wrapping "EOF" or
	// "connection reset"/"broken pipe" text rather than a typed net.Error.
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"eof", "connection reset", "broken pipe", "connection refused", "i/o timeout", "use of closed network connection"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// IsConnErr is the exported form used by callers outside this package
// (the supervisor) that need to classify an error returned by a Broker
// method that didn't already wrap it (defensive — adapters are expected to
// always wrap via classifyConnErr).
func IsConnErr(err error) bool {
	return apperrors.Is(err, apperrors.CodeConnection) || isConnErr(err)
}

// IsNoGroupErr reports whether err is a broker "no such group" response.
func IsNoGroupErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), NoGroupErrorSubstring)
}

// IsBusyGroupErr reports whether err is a broker "group already exists"
// response.
func IsBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), BusyGroupErrorSubstring)
}
