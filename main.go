package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"depth-preview-go/internal/camera"
	"depth-preview-go/internal/camera/gocvcam"
	"depth-preview-go/internal/camera/v4l2cam"
	"depth-preview-go/internal/config"
	"depth-preview-go/internal/ui"

	"go.uber.org/zap"
)

// Version information - set by linker flags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	// Command line flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	configPath := flag.String("config", "", "Path to config.ini (default: ./config.ini or $DEPTH_PREVIEW_CONFIG)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Depth Preview %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", GoVersion)
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Load configuration
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	// Configure logging (rotating file + optional stdout)
	logger, logCleanup, err := config.ConfigureLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: logging setup error: %v\n", err)
		logger = zap.NewExample().Sugar()
	}
	if logCleanup != nil {
		defer logCleanup()
	}
	log := logger.Named("main")

	if loadErr != nil {
		log.Warnw("Config load error, using defaults", "error", loadErr)
	}

	log.Infof("Depth Preview %s starting...", Version)
	log.Infow("Config",
		"backend", cfg.Backend, "device", cfg.Device, "mode", cfg.Mode, "order", cfg.ColorOrder,
		"size", fmt.Sprintf("%dx%d", cfg.CaptureWidth, cfg.CaptureHeight), "fps", cfg.CaptureFPS)

	// Validate config
	ok, warnings := cfg.Validate()
	if !ok {
		log.Warn("Config validation failed!")
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	source := newSource(cfg, logger)
	manager := camera.NewManager(source, cfg.Camera(), logger.Named("session"))
	app := ui.NewApp(cfg, manager, logger.Named("ui"))

	// Setup signal handling for clean shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Infow("Received signal, cleaning up...", "signal", sig)
		app.Cleanup()
	}()

	app.Start()

	// Cleanup on normal exit
	app.Cleanup()
	log.Info("Exited")
}

// newSource picks the capture backend named in the config.
func newSource(cfg *config.Config, logger *zap.SugaredLogger) camera.Source {
	switch cfg.Backend {
	case config.BackendGoCV:
		return gocvcam.NewSource(logger.Named("gocv"))
	case config.BackendV4L2:
		return v4l2cam.NewSource(logger.Named("v4l2"))
	case config.BackendPattern:
		return camera.NewPatternSource()
	default:
		return camera.NewFFmpegSource(logger.Named("ffmpeg"))
	}
}
