// Package capture obtains a single still image from a network camera.
//
// Two acquisition strategies exist: pulling a frame from the camera's
// RTSP stream, and requesting a snapshot through the vendor HTTP
// control API. An Orchestrator tries them sequentially in a fixed
// priority order and stops at the first success. Strategies never run
// concurrently: these cameras tolerate only one stream or session at a
// time, and the contract is first-success-wins.
//
// One Orchestrator serves one camera. The HTTP strategy caches its
// session token on the shared tapo.Client, so orchestrators must not be
// shared across devices or accounts.
package capture

import (
	"context"
	"fmt"

	"github.com/teslashibe/tapocap/internal/log"
	"github.com/teslashibe/tapocap/pkg/imaging"
	"github.com/teslashibe/tapocap/pkg/tapo"
)

// Endpoint identifies one camera and the account used to reach it.
type Endpoint struct {
	Address  string // host or host:port
	Username string
	Password string
}

// Target describes where and how a captured frame is saved.
type Target struct {
	OutputPath string
	Format     imaging.Format
}

// Method selects which strategies an orchestrator runs.
type Method string

const (
	// MethodAuto tries RTSP first, then the HTTP API.
	MethodAuto Method = "auto"

	// MethodRTSP tries only the RTSP stream.
	MethodRTSP Method = "rtsp"

	// MethodHTTP tries only the HTTP API.
	MethodHTTP Method = "http"
)

// ParseMethod converts a user-supplied method name into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuto, MethodRTSP, MethodHTTP:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: unknown method %q (supported: auto, rtsp, http)", ErrConfiguration, s)
	}
}

func (m Method) includes(strategy string) bool {
	return m == MethodAuto || string(m) == strategy
}

// A Strategy is one self-contained way of acquiring a frame. Attempt
// either fully writes a valid image at the target and returns a
// human-readable diagnostic, or writes nothing and returns an error.
// Strategies fold all failures, including network errors, into the
// returned error.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, target Target) (string, error)
}

// Orchestrator runs strategies in priority order against one camera.
type Orchestrator struct {
	strategies []Strategy
}

// New creates an orchestrator for the camera at ep. The RTSP strategy
// has priority; the HTTP strategy is the fallback.
func New(ep Endpoint) *Orchestrator {
	client := tapo.NewClient(ep.Address, ep.Username, ep.Password)
	return &Orchestrator{
		strategies: []Strategy{
			NewRTSPStrategy(ep),
			NewHTTPStrategy(client),
		},
	}
}

// Capture obtains one frame and saves it at the target, trying the
// strategies selected by method in order and stopping at the first
// success. On total failure the returned error carries the
// last-attempted strategy's diagnostic.
func (o *Orchestrator) Capture(ctx context.Context, target Target, method Method) (string, error) {
	if _, err := imaging.ParseFormat(string(target.Format)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return "", err
	}

	var lastErr error
	for _, s := range o.strategies {
		if !method.includes(s.Name()) {
			continue
		}

		log.Info("trying capture strategy", "strategy", s.Name())
		msg, err := s.Attempt(ctx, target)
		if err != nil {
			log.Warn("capture strategy failed", "strategy", s.Name(), "error", err)
			lastErr = err
			continue
		}

		log.Info("capture succeeded", "strategy", s.Name(), "detail", msg, "output", target.OutputPath)
		return target.OutputPath, nil
	}

	return "", fmt.Errorf("all capture strategies failed: %w", lastErr)
}
