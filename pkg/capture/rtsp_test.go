package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/tapocap/pkg/imaging"
)

// fakeSource hands out queued frames; once the queue is empty every
// read reports "no usable frame yet".
type fakeSource struct {
	frames []image.Image
	err    error
	reads  int
	closed bool
}

func (f *fakeSource) ReadFrame() (image.Image, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.frames) == 0 {
		return nil, nil
	}
	img := f.frames[0]
	f.frames = f.frames[1:]
	return img, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{0x20, 0x40, 0x60, 0xff})
		}
	}
	return img
}

func newTestRTSP(ep Endpoint, open streamOpener) *RTSPStrategy {
	s := NewRTSPStrategy(ep)
	s.open = open
	s.readDelay = time.Millisecond
	s.pollTimeout = time.Second
	return s
}

func TestStreamCandidates(t *testing.T) {
	s := NewRTSPStrategy(Endpoint{Address: "10.0.0.5", Username: "admin", Password: "p@ss"})

	cands := s.candidates()
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}

	if want := "rtsp://admin:p@ss@10.0.0.5:554/stream1"; cands[0].url != want {
		t.Errorf("candidate 0 = %q, want %q", cands[0].url, want)
	}
	if want := "rtsp://admin:p@ss@10.0.0.5:554/stream2"; cands[1].url != want {
		t.Errorf("candidate 1 = %q, want %q", cands[1].url, want)
	}
	// The escaped variant percent-encodes reserved characters in the
	// password.
	if !strings.Contains(cands[2].url, "p%40ss") {
		t.Errorf("candidate 2 = %q, want escaped password", cands[2].url)
	}
	if !strings.HasSuffix(cands[2].url, "/stream1") {
		t.Errorf("candidate 2 = %q, want primary stream path", cands[2].url)
	}

	for i, c := range cands {
		if strings.Contains(c.masked, "p@ss") || strings.Contains(c.masked, "p%40ss") {
			t.Errorf("candidate %d masked URL %q leaks the password", i, c.masked)
		}
	}
}

func TestStreamCandidatesKeepExplicitPort(t *testing.T) {
	s := NewRTSPStrategy(Endpoint{Address: "cam.local:8554", Username: "u", Password: "p"})
	cands := s.candidates()
	if !strings.Contains(cands[0].url, "cam.local:8554/") {
		t.Errorf("candidate 0 = %q, want explicit port preserved", cands[0].url)
	}
}

func TestPollFrameStopsWithinWallClock(t *testing.T) {
	src := &fakeSource{} // never yields a frame
	s := NewRTSPStrategy(Endpoint{Address: "10.0.0.5"})
	s.readDelay = 200 * time.Millisecond
	s.maxReads = 100
	s.pollTimeout = time.Second

	start := time.Now()
	_, err := s.pollFrame(context.Background(), src)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("polling ran %v, want about 1s", elapsed)
	}
	// With a 200ms delay and a 1s deadline, roughly 5 reads fit.
	if src.reads < 2 || src.reads > 7 {
		t.Errorf("got %d reads, want the wall clock to bound them near 5", src.reads)
	}
}

func TestPollFrameAttemptBound(t *testing.T) {
	src := &fakeSource{}
	s := NewRTSPStrategy(Endpoint{Address: "10.0.0.5"})
	s.readDelay = time.Millisecond
	s.maxReads = 3
	s.pollTimeout = time.Second

	_, err := s.pollFrame(context.Background(), src)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection after exhausting reads, got %v", err)
	}
	if src.reads != 3 {
		t.Errorf("got %d reads, want 3", src.reads)
	}
}

func TestPollFrameReadErrorIsPermanent(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("decoder blew up")}
	s := NewRTSPStrategy(Endpoint{Address: "10.0.0.5"})
	s.readDelay = time.Millisecond
	s.maxReads = 10
	s.pollTimeout = time.Second

	_, err := s.pollFrame(context.Background(), src)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if src.reads != 1 {
		t.Errorf("got %d reads after a hard error, want 1", src.reads)
	}
}

func TestAttemptFallsThroughCandidates(t *testing.T) {
	// First two candidates fail to open, the third yields a frame
	// after one empty read.
	src := &fakeSource{frames: []image.Image{nil, solidFrame(32, 24)}}
	opened := 0
	open := func(url string) (frameSource, error) {
		opened++
		if opened < 3 {
			return nil, fmt.Errorf("connection refused")
		}
		return src, nil
	}

	s := newTestRTSP(Endpoint{Address: "10.0.0.5", Username: "admin", Password: "secret"}, open)
	target := Target{
		OutputPath: filepath.Join(t.TempDir(), "frame.png"),
		Format:     imaging.FormatPNG,
	}

	msg, err := s.Attempt(context.Background(), target)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if opened != 3 {
		t.Errorf("opened %d candidates, want 3", opened)
	}
	if !src.closed {
		t.Error("stream not closed after capture")
	}
	if !strings.Contains(msg, "32x24") {
		t.Errorf("diagnostic %q does not report frame dimensions", msg)
	}

	w, h, err := imaging.Dimensions(target.OutputPath)
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if w != 32 || h != 24 {
		t.Errorf("saved frame %dx%d, want 32x24", w, h)
	}
}

func TestAttemptAllCandidatesFail(t *testing.T) {
	opened := 0
	open := func(url string) (frameSource, error) {
		opened++
		return nil, fmt.Errorf("connection refused")
	}

	s := newTestRTSP(Endpoint{Address: "10.0.0.5", Username: "admin", Password: "secret"}, open)
	target := Target{
		OutputPath: filepath.Join(t.TempDir(), "frame.png"),
		Format:     imaging.FormatPNG,
	}

	_, err := s.Attempt(context.Background(), target)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if opened != 3 {
		t.Errorf("opened %d candidates, want all 3 tried", opened)
	}
}
