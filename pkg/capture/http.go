package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/tapocap/pkg/imaging"
	"github.com/teslashibe/tapocap/pkg/tapo"
)

// HTTPStrategy requests a snapshot through the vendor control API.
//
// It authenticates lazily: a login happens only when the shared client
// has no cached session token. A failed login aborts the attempt before
// the snapshot endpoint is contacted.
type HTTPStrategy struct {
	client *tapo.Client
}

var _ Strategy = (*HTTPStrategy)(nil)

// NewHTTPStrategy creates the HTTP API strategy backed by client.
func NewHTTPStrategy(client *tapo.Client) *HTTPStrategy {
	return &HTTPStrategy{client: client}
}

// Name implements Strategy.
func (s *HTTPStrategy) Name() string {
	return "http"
}

// Attempt implements Strategy. The snapshot payload may arrive in any
// encoding the device chooses, so it is always decoded and re-encoded
// into the requested format.
func (s *HTTPStrategy) Attempt(ctx context.Context, target Target) (string, error) {
	if !s.client.HasToken() {
		if err := s.client.Login(ctx); err != nil {
			switch {
			case errors.Is(err, tapo.ErrAuthRejected):
				return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
			case errors.Is(err, tapo.ErrBadResponse):
				return "", fmt.Errorf("%w: %w", ErrProtocol, err)
			default:
				return "", asTimeout(err, ErrConnection)
			}
		}
	}

	data, err := s.client.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, tapo.ErrBadResponse) || errors.Is(err, tapo.ErrNoToken) {
			return "", fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		return "", asTimeout(err, ErrConnection)
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if err := imaging.Save(target.OutputPath, img, target.Format); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	b := img.Bounds()
	return fmt.Sprintf("captured %dx%d image from http api", b.Dx(), b.Dy()), nil
}
