// tapocap captures still images from Tapo-style network cameras.
//
// It tries the camera's RTSP stream first and falls back to the vendor
// HTTP control API, saving the frame losslessly as PNG, TIFF or BMP.
//
// Usage:
//
//	tapocap [flags] <address> <username> <password>
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/tapocap/internal/config"
	"github.com/teslashibe/tapocap/internal/log"
	"github.com/teslashibe/tapocap/pkg/capture"
	"github.com/teslashibe/tapocap/pkg/imaging"
)

func main() {
	var (
		output   = flag.String("o", "", "output file path (default: generated name)")
		format   = flag.String("f", "png", "output format: png, tiff or bmp")
		method   = flag.String("m", "auto", "capture method: auto, rtsp or http")
		interval = flag.Int("interval", 0, "continuous capture every N seconds (0 = single shot)")
		cfgPath  = flag.String("config", "", "YAML device config file")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	dev, err := resolveDevice(*cfgPath, flag.Args())
	if err != nil {
		log.Error("invalid configuration", "error", err)
		usage()
		os.Exit(1)
	}

	// Explicit flags win over the config file.
	formatName := *format
	if dev.Format != "" && !flagWasSet("f") {
		formatName = dev.Format
	}
	methodName := *method
	if dev.Method != "" && !flagWasSet("m") {
		methodName = dev.Method
	}

	outFormat, err := imaging.ParseFormat(formatName)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	capMethod, err := capture.ParseMethod(methodName)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := capture.New(capture.Endpoint{
		Address:  dev.Address,
		Username: dev.Username,
		Password: dev.Password,
	})

	if *interval > 0 {
		runContinuous(ctx, orch, dev.Address, outFormat, capMethod, time.Duration(*interval)*time.Second)
		return
	}

	path := *output
	if path == "" {
		path = defaultOutputPath(dev.Address, outFormat, time.Now())
	}

	log.Info("capturing image", "camera", dev.Address, "output", path, "format", outFormat, "method", capMethod)
	saved, err := orch.Capture(ctx, capture.Target{OutputPath: path, Format: outFormat}, capMethod)
	if err != nil {
		log.Error("capture failed", "error", err)
		os.Exit(1)
	}
	reportArtifact(saved)
}

// runContinuous captures on a fixed interval until the context is
// cancelled (SIGINT/SIGTERM). Individual failures are logged and the
// loop continues; output names are always generated so successive
// captures never overwrite each other.
func runContinuous(ctx context.Context, orch *capture.Orchestrator, address string, f imaging.Format, m capture.Method, interval time.Duration) {
	log.Info("starting continuous capture", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		path := defaultOutputPath(address, f, time.Now())
		log.Info("capture", "n", n, "output", path)

		saved, err := orch.Capture(ctx, capture.Target{OutputPath: path, Format: f}, m)
		if err != nil {
			log.Warn("capture failed", "n", n, "error", err)
		} else {
			log.Info("saved", "n", n, "path", saved)
		}

		select {
		case <-ctx.Done():
			log.Info("continuous capture stopped")
			return
		case <-ticker.C:
		}
	}
}

// resolveDevice builds the device description from the config file, the
// environment and the positional arguments, in increasing precedence.
func resolveDevice(cfgPath string, args []string) (*config.Device, error) {
	dev := &config.Device{}
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		dev = loaded
	}
	config.ApplyEnv(dev)

	if len(args) > 3 {
		return nil, fmt.Errorf("too many arguments")
	}
	if len(args) > 0 {
		dev.Address = args[0]
	}
	if len(args) > 1 {
		dev.Username = args[1]
	}
	if len(args) > 2 {
		dev.Password = args[2]
	}

	if err := dev.Validate(); err != nil {
		return nil, err
	}
	return dev, nil
}

// defaultOutputPath generates tapo_capture_<host>_<timestamp>.<ext>.
func defaultOutputPath(address string, f imaging.Format, now time.Time) string {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	return fmt.Sprintf("tapo_capture_%s_%s.%s", host, now.Format("20060102_150405"), f.Ext())
}

// reportArtifact logs dimensions and size of the saved image.
func reportArtifact(path string) {
	args := []any{"path", path}
	if w, h, err := imaging.Dimensions(path); err == nil {
		args = append(args, "dimensions", fmt.Sprintf("%dx%d", w, h))
	}
	if info, err := os.Stat(path); err == nil {
		args = append(args, "bytes", info.Size())
	}
	log.Info("image saved", args...)
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tapocap [flags] <address> <username> <password>\n\n")
	fmt.Fprintf(os.Stderr, "Captures a still image from a Tapo network camera.\n")
	fmt.Fprintf(os.Stderr, "Address, username and password may also come from a -config file\n")
	fmt.Fprintf(os.Stderr, "or the TAPOCAP_ADDR/TAPOCAP_USER/TAPOCAP_PASS environment variables.\n\n")
	flag.PrintDefaults()
}
