package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/teslashibe/tapocap/internal/log"
	"github.com/teslashibe/tapocap/pkg/imaging"
)

// Frame-polling bounds. A freshly opened stream often needs a few reads
// before the decoder delivers a full frame, so reads are retried on a
// fixed interval up to maxFrameReads times, capped by pollTimeout
// wall-clock regardless of attempt count.
const (
	defaultReadDelay   = 200 * time.Millisecond
	defaultMaxReads    = 10
	defaultPollTimeout = 15 * time.Second

	rtspPort = "554"
)

// A frameSource is an open video stream that frames can be pulled from.
// ReadFrame returns (nil, nil) when no usable frame is available yet.
type frameSource interface {
	ReadFrame() (image.Image, error)
	Close() error
}

// A streamOpener opens a video stream at a URL.
type streamOpener func(url string) (frameSource, error)

// RTSPStrategy pulls a single frame from the camera's RTSP stream.
//
// Cameras expose either a primary or secondary stream path depending on
// model and firmware, and some firmwares require reserved characters in
// the password to be percent-escaped while others reject the escaped
// form. Trying a small set of locator variants covers all of these
// without device-specific configuration.
type RTSPStrategy struct {
	endpoint Endpoint

	open        streamOpener
	readDelay   time.Duration
	maxReads    uint64
	pollTimeout time.Duration
}

var _ Strategy = (*RTSPStrategy)(nil)

// NewRTSPStrategy creates the streaming strategy for ep.
func NewRTSPStrategy(ep Endpoint) *RTSPStrategy {
	return &RTSPStrategy{
		endpoint:    ep,
		open:        openVideoStream,
		readDelay:   defaultReadDelay,
		maxReads:    defaultMaxReads,
		pollTimeout: defaultPollTimeout,
	}
}

// Name implements Strategy.
func (s *RTSPStrategy) Name() string {
	return "rtsp"
}

// Attempt implements Strategy. Candidates are tried in order; the first
// one yielding a usable frame wins.
func (s *RTSPStrategy) Attempt(ctx context.Context, target Target) (string, error) {
	lastErr := fmt.Errorf("%w: no stream candidates for %s", ErrConnection, s.endpoint.Address)

	for _, cand := range s.candidates() {
		log.Debug("opening rtsp stream", "url", cand.masked)

		src, err := s.open(cand.url)
		if err != nil {
			log.Debug("rtsp open failed", "url", cand.masked, "error", err)
			lastErr = asTimeout(err, ErrConnection)
			continue
		}

		frame, err := s.pollFrame(ctx, src)
		src.Close()
		if err != nil {
			log.Debug("rtsp frame poll failed", "url", cand.masked, "error", err)
			lastErr = err
			continue
		}

		if err := imaging.Save(target.OutputPath, frame, target.Format); err != nil {
			return "", fmt.Errorf("%w: %w", ErrEncoding, err)
		}

		b := frame.Bounds()
		return fmt.Sprintf("captured %dx%d frame from rtsp stream", b.Dx(), b.Dy()), nil
	}

	return "", lastErr
}

var errNoFrame = errors.New("no usable frame yet")

// pollFrame reads from src until a usable frame arrives, the attempt
// count is exhausted, or the wall-clock timeout expires, whichever
// comes first.
func (s *RTSPStrategy) pollFrame(ctx context.Context, src frameSource) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	var frame image.Image
	read := func() error {
		img, err := src.ReadFrame()
		if err != nil {
			return backoff.Permanent(err)
		}
		if img == nil {
			return errNoFrame
		}
		frame = img
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.readDelay), s.maxReads-1),
		ctx,
	)
	if err := backoff.Retry(read, policy); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: frame polling exceeded %s", ErrTimeout, s.pollTimeout)
		}
		if errors.Is(err, errNoFrame) {
			return nil, fmt.Errorf("%w: no usable frame after %d reads", ErrConnection, s.maxReads)
		}
		return nil, asTimeout(err, ErrConnection)
	}

	return frame, nil
}

type streamCandidate struct {
	url    string
	masked string
}

// candidates derives the stream locators to try: the primary and
// secondary stream paths with raw credentials, then the primary path
// with percent-escaped credentials.
func (s *RTSPStrategy) candidates() []streamCandidate {
	host := s.endpoint.Address
	if !strings.Contains(host, ":") {
		host += ":" + rtspPort
	}
	user := s.endpoint.Username
	pass := s.endpoint.Password

	raw := func(path string) streamCandidate {
		return streamCandidate{
			url:    fmt.Sprintf("rtsp://%s:%s@%s/%s", user, pass, host, path),
			masked: fmt.Sprintf("rtsp://%s:***@%s/%s", user, host, path),
		}
	}

	escaped := url.URL{
		Scheme: "rtsp",
		User:   url.UserPassword(user, pass),
		Host:   host,
		Path:   "/stream1",
	}

	return []streamCandidate{
		raw("stream1"),
		raw("stream2"),
		{
			url:    escaped.String(),
			masked: fmt.Sprintf("rtsp://%s:***@%s/stream1 (escaped)", user, host),
		},
	}
}
