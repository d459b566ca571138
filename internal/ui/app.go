package ui

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"depth-preview-go/internal/camera"
	"depth-preview-go/internal/config"
	"depth-preview-go/internal/perf"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Labels shown in the mode and color-order controls.
const (
	modePreviewLabel = "Preview"
	modeVideoLabel   = "Video"
)

// Session is the part of camera.Manager the window drives.
type Session interface {
	Start(sink camera.Sink, dispatch camera.Dispatcher) error
	Stop()
	Wait() error
	Mode() camera.Mode
	Stats() camera.SessionStats
}

// App is the preview window around one capture session.
type App struct {
	fyneApp fyne.App
	window  fyne.Window
	cfg     *config.Config
	session Session
	log     *zap.SugaredLogger

	display     *Display
	status      *widget.Label
	modeGroup   *widget.RadioGroup
	orderSelect *widget.Select
	nightCheck  *widget.Check

	monitor *perf.Monitor
	stress  *perf.StressTracker

	dispatch    camera.Dispatcher
	stopCh      chan struct{}
	cleanupOnce sync.Once
}

// NewApp creates the preview application for session.
func NewApp(cfg *config.Config, session Session, log *zap.SugaredLogger) *App {
	return newApp(app.NewWithID("io.depthpreview.app"), cfg, session, log)
}

func newApp(fyneApp fyne.App, cfg *config.Config, session Session, log *zap.SugaredLogger) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	window := fyneApp.NewWindow(cfg.WindowTitle)
	window.Resize(fyne.NewSize(float32(cfg.WindowWidth), float32(cfg.WindowHeight)))

	a := &App{
		fyneApp:  fyneApp,
		window:   window,
		cfg:      cfg,
		session:  session,
		log:      log,
		monitor:  perf.NewMonitor(cfg.CPULoadThreshold, cfg.CPUTempThresholdC),
		stress:   perf.NewStressTracker(cfg.StressHoldCount, cfg.RecoverHoldCount),
		dispatch: fyne.Do,
		stopCh:   make(chan struct{}),
	}

	a.display = NewDisplay(cfg.CaptureWidth, cfg.CaptureHeight, log.Named("display"))
	a.display.SetNightMode(cfg.NightMode)
	return a
}

// Start builds the window, starts the session in the background and runs
// the fyne event loop until the window closes.
func (a *App) Start() {
	a.setupUI()
	a.window.SetCloseIntercept(a.cleanup)
	a.window.Show()

	go a.runSession()
	go a.startStatusRefresh()
	go a.startHealthLogging()

	a.fyneApp.Run()
}

func (a *App) setupUI() {
	cam := a.cfg.Camera()

	// Mode and color order are fixed for the session; the controls only
	// show what was configured.
	a.modeGroup = widget.NewRadioGroup([]string{modePreviewLabel, modeVideoLabel}, nil)
	a.modeGroup.Horizontal = true
	if cam.Mode == camera.ModeVideo {
		a.modeGroup.SetSelected(modeVideoLabel)
	} else {
		a.modeGroup.SetSelected(modePreviewLabel)
	}
	a.modeGroup.Disable()

	a.orderSelect = widget.NewSelect([]string{camera.RGB.String(), camera.BGR.String()}, nil)
	a.orderSelect.SetSelected(cam.Order.String())
	a.orderSelect.Disable()

	a.nightCheck = widget.NewCheck("Night mode", func(on bool) {
		a.display.SetNightMode(on)
	})
	a.nightCheck.SetChecked(a.display.NightMode())
	a.display.OnNightModeChanged = a.nightCheck.SetChecked

	a.status = widget.NewLabel("Starting...")
	a.status.Truncation = fyne.TextTruncateEllipsis

	toolbar := container.NewHBox(
		a.modeGroup,
		widget.NewSeparator(),
		widget.NewLabel("Color order"),
		a.orderSelect,
		widget.NewSeparator(),
		a.nightCheck,
	)

	if cam.Mode == camera.ModeVideo {
		a.display.ShowMessage(fmt.Sprintf("Recording to %s", cam.OutputPath))
	}

	a.window.SetContent(container.NewBorder(toolbar, a.status, nil, nil, a.display))
}

// runSession starts the capture session and reports how it ends. Open
// failures leave the window up without a picture.
func (a *App) runSession() {
	if err := a.session.Start(a.display, a.dispatch); err != nil {
		a.log.Errorw("Session failed to start", "error", err)
		a.dispatch(func() { a.sessionEnded(err) })
		return
	}
	a.dispatch(func() { a.setStatus(a.runningStatus(a.session.Stats())) })

	err := a.session.Wait()
	a.dispatch(func() { a.sessionEnded(err) })
}

// sessionEnded runs on the fyne thread.
func (a *App) sessionEnded(err error) {
	select {
	case <-a.stopCh:
		// Shutting down, the window is going away
		return
	default:
	}

	if err == nil {
		a.setStatus("Stopped")
		return
	}

	msg := userMessage(err, a.cfg.RecordingOutput)
	a.log.Warnw("Session ended", "error", err)
	a.setStatus(msg)
	if errors.Is(err, camera.ErrSourceUnavailable) {
		a.display.ShowMessage("No camera")
	}
	dialog.ShowError(errors.New(msg), a.window)
}

// userMessage turns a session error into something the user can act on.
func userMessage(err error, outputPath string) string {
	switch {
	case errors.Is(err, camera.ErrSourceUnavailable):
		return "Camera not available. Check that it is connected and not in use by another program, then restart."
	case errors.Is(err, camera.ErrRecordingWrite):
		return fmt.Sprintf("Recording aborted: could not write %s. Check free space and permissions.", outputPath)
	case errors.Is(err, camera.ErrAlreadyStarted):
		return "The capture session was already used. Restart the application."
	default:
		return fmt.Sprintf("Capture stopped: %v", err)
	}
}

func (a *App) setStatus(text string) {
	if a.status != nil {
		a.status.SetText(text)
	}
}

func (a *App) runningStatus(st camera.SessionStats) string {
	if st.Mode == camera.ModeVideo {
		return fmt.Sprintf("Recording %s: %s in %d packets",
			st.Recorder.Path, humanize.Bytes(st.Recorder.Bytes), st.Recorder.Packets)
	}
	return fmt.Sprintf("Preview %dx%d: %d frames shown, %d skipped",
		a.cfg.CaptureWidth, a.cfg.CaptureHeight, st.Delivery.Delivered, st.Delivery.Dropped)
}

// startStatusRefresh updates the status line once a second while the
// session runs.
func (a *App) startStatusRefresh() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			st := a.session.Stats()
			if st.State != camera.StateRunning {
				continue
			}
			text := a.runningStatus(st)
			a.dispatch(func() { a.setStatus(text) })
		}
	}
}

// =============================================================================
// Health Logging
// =============================================================================
// Periodic summary of session health: counters, frame freshness and host
// load. A preview that has not produced a frame for longer than the stale
// timeout is reported as stalled.
// =============================================================================

// startHealthLogging periodically logs session health.
// Disabled when HealthLogIntervalSec <= 0.
func (a *App) startHealthLogging() {
	interval := a.cfg.HealthInterval()
	health := a.log.Named("health")
	if interval <= 0 {
		health.Info("Health logging disabled (interval <= 0)")
		return
	}

	health.Infof("Starting health logging (every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case now := <-ticker.C:
			a.logHealthSummary(health, now)
		}
	}
}

// logHealthSummary logs one health line plus warnings for stale frames and
// host stress transitions.
func (a *App) logHealthSummary(health *zap.SugaredLogger, now time.Time) {
	st := a.session.Stats()

	if err := a.monitor.UpdateStats(); err != nil && !errors.Is(err, perf.ErrTemperatureNotFound) {
		health.Debugw("Host stats unavailable", "error", err)
	}
	if stressed, changed := a.stress.Observe(a.monitor.IsUnderStress()); changed {
		if stressed {
			health.Warnw("Host under stress",
				"load", a.monitor.GetLoadAverage(), "temp_c", a.monitor.GetTemperature())
		} else {
			health.Infow("Host recovered", "load", a.monitor.GetLoadAverage())
		}
	}

	host := []interface{}{
		"load", fmt.Sprintf("%.2f", a.monitor.GetLoadAverage()),
		"temp_c", fmt.Sprintf("%.1f", a.monitor.GetTemperature()),
		"mem", humanize.Bytes(a.monitor.GetMemoryUsed()),
	}

	if st.Mode == camera.ModeVideo {
		health.Infow("Recording",
			append([]interface{}{
				"state", st.State,
				"session", st.Recorder.SessionID,
				"packets", st.Recorder.Packets,
				"written", humanize.Bytes(st.Recorder.Bytes),
				"read_errors", st.Recorder.ReadErrors,
			}, host...)...)
		return
	}

	if st.State == camera.StateRunning {
		switch age, ok := frameAge(st.Loop, now); {
		case !ok:
			health.Warn("Camera has not produced a frame yet")
		case age > a.cfg.StaleFrameTimeout():
			health.Warnf("Camera frame is stale (%.1fs old)", age.Seconds())
		}
	}

	health.Infow("Preview",
		append([]interface{}{
			"state", st.State,
			"frames", st.Loop.Frames,
			"painted", a.display.Painted(),
			"skipped", st.Delivery.Dropped,
			"timeouts", st.Loop.Timeouts,
			"read_errors", st.Loop.ReadErrors,
		}, host...)...)
}

// frameAge reports how long ago the last frame was captured; ok is false
// when no frame has arrived yet.
func frameAge(st camera.LoopStats, now time.Time) (time.Duration, bool) {
	if st.LastFrameAt.IsZero() {
		return 0, false
	}
	return now.Sub(st.LastFrameAt), true
}

// cleanup stops the session and exits cleanly
func (a *App) cleanup() {
	a.cleanupOnce.Do(func() {
		a.log.Info("Cleanup: stopping capture session...")

		// Stop status, health and session reporting
		close(a.stopCh)

		// Stop camera session (kills ffmpeg, flushes the recording)
		a.session.Stop()
		a.log.Info("Cleanup: complete, exiting...")
		a.fyneApp.Quit()
	})
}

// Cleanup is exported for external use (e.g., from main)
func (a *App) Cleanup() {
	a.cleanup()
}
