package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure classes. Strategies wrap their failures with one of these so
// callers can distinguish a misconfiguration from a flaky network
// without parsing messages.
var (
	// ErrConfiguration marks an invalid request (bad format or
	// method). No network activity happens after it.
	ErrConfiguration = errors.New("capture: invalid configuration")

	// ErrConnection marks an unreachable or unresponsive device.
	ErrConnection = errors.New("capture: connection failed")

	// ErrAuthentication marks a rejected login.
	ErrAuthentication = errors.New("capture: authentication failed")

	// ErrProtocol marks a response the device should not have sent.
	ErrProtocol = errors.New("capture: protocol error")

	// ErrTimeout marks an exceeded deadline. For fallback purposes it
	// is equivalent to ErrConnection.
	ErrTimeout = errors.New("capture: timed out")

	// ErrEncoding marks image data that could not be decoded or
	// re-encoded.
	ErrEncoding = errors.New("capture: image encoding failed")
)

// asTimeout rewraps err as ErrTimeout when it stems from a deadline,
// otherwise as fallback.
func asTimeout(err, fallback error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
