// Package config manages configuration for the depth preview.
//
// Handles loading config from INI files, environment variables,
// and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"depth-preview-go/internal/camera"
)

// =============================================================================
// Configuration struct
// =============================================================================

// Backend names accepted in [camera] backend.
const (
	BackendFFmpeg  = "ffmpeg"
	BackendGoCV    = "gocv"
	BackendPattern = "pattern"
	BackendV4L2    = "v4l2"
)

// Config holds all runtime configuration values.
type Config struct {
	// Logging
	LogLevel       string
	LogFile        string
	LogMaxBytes    int
	LogBackupCount int
	LogToStdout    bool

	// Camera
	Backend           string
	Device            string
	ColorOrder        string // "RGB" or "BGR"
	Mode              string // "preview" or "video"
	CaptureWidth      int
	CaptureHeight     int
	CaptureFPS        int
	CaptureFormat     string // "mjpeg" or "yuyv"; passed to FFmpeg as -input_format
	QueueSize         int
	Blocking          bool
	ReadTimeoutMS     int
	PollIntervalMS    int
	OpenTimeoutMS     int
	KillDeviceHolders bool

	// Recording
	RecordingOutput string

	// Display
	WindowTitle  string
	WindowWidth  int
	WindowHeight int
	NightMode    bool

	// Health
	HealthLogIntervalSec float64
	StaleFrameTimeoutSec float64
	CPULoadThreshold     float64
	CPUTempThresholdC    float64
	StressHoldCount      int
	RecoverHoldCount     int
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		// Logging
		LogLevel:       "INFO",
		LogFile:        "./logs/depth_preview.log",
		LogMaxBytes:    5 * 1024 * 1024, // 5 MB
		LogBackupCount: 3,
		LogToStdout:    true,

		// Camera
		Backend:           BackendFFmpeg,
		Device:            "auto",
		ColorOrder:        "RGB",
		Mode:              "preview",
		CaptureWidth:      camera.DefaultWidth,
		CaptureHeight:     camera.DefaultHeight,
		CaptureFPS:        camera.DefaultFPS,
		CaptureFormat:     camera.DefaultFormat,
		QueueSize:         camera.DefaultQueueSize,
		Blocking:          false,
		ReadTimeoutMS:     int(camera.DefaultReadTimeout / time.Millisecond),
		PollIntervalMS:    int(camera.DefaultPollInterval / time.Millisecond),
		OpenTimeoutMS:     int(camera.DefaultOpenTimeout / time.Millisecond),
		KillDeviceHolders: false,

		// Recording
		RecordingOutput: camera.DefaultOutputPath,

		// Display
		WindowTitle:  "Depth Camera Preview",
		WindowWidth:  800,
		WindowHeight: 640,
		NightMode:    false,

		// Health
		HealthLogIntervalSec: 30.0,
		StaleFrameTimeoutSec: 1.5,
		CPULoadThreshold:     3.0,
		CPUTempThresholdC:    75.0,
		StressHoldCount:      3,
		RecoverHoldCount:     3,
	}
}

// =============================================================================
// INI parser (minimal, no external deps)
// =============================================================================

// iniData stores parsed INI sections and their key-value pairs.
type iniData map[string]map[string]string

// parseINI reads an INI file and returns its sections and key-value pairs.
// Supports comments (# and ;), sections ([name]), and key = value lines.
func parseINI(path string) (iniData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result := make(iniData)
	currentSection := ""

	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(rawLine)

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// Section header
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := result[currentSection]; !ok {
				result[currentSection] = make(map[string]string)
			}
			continue
		}

		// Key = value
		if idx := strings.IndexByte(line, '='); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			if currentSection != "" {
				result[currentSection][key] = value
			}
		}
	}

	return result, nil
}

// get returns a value from the parsed INI data, or empty string if not found.
func (d iniData) get(section, key string) (string, bool) {
	if sec, ok := d[section]; ok {
		if val, ok := sec[key]; ok {
			return val, true
		}
	}
	return "", false
}

// hasSection returns true if the section exists in the INI data.
func (d iniData) hasSection(section string) bool {
	_, ok := d[section]
	return ok
}

// =============================================================================
// Type parsing helpers (match Python's _as_bool, _as_int, _as_float)
// =============================================================================

// asBool parses a string as boolean. Truthy: "1","true","yes","on".
// Falsy: "0","false","no","off". Returns fallback on empty/unrecognised.
func asBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// asInt parses a string as int with optional min/max clamping.
// Pass nil for unbounded. Returns fallback on parse error.
func asInt(value string, fallback int, minVal, maxVal *int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	if minVal != nil && parsed < *minVal {
		parsed = *minVal
	}
	if maxVal != nil && parsed > *maxVal {
		parsed = *maxVal
	}
	return parsed
}

// asFloat parses a string as float64 with optional min/max clamping.
// Pass nil for unbounded. Returns fallback on parse error.
func asFloat(value string, fallback float64, minVal, maxVal *float64) float64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	if minVal != nil && parsed < *minVal {
		parsed = *minVal
	}
	if maxVal != nil && parsed > *maxVal {
		parsed = *maxVal
	}
	return parsed
}

// Helper functions to create pointers for min/max bounds
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// =============================================================================
// Load + Apply
// =============================================================================

// ConfigPath returns the INI file path to use, respecting env vars.
func ConfigPath() string {
	if p := os.Getenv("DEPTH_PREVIEW_CONFIG"); p != "" {
		return p
	}
	return "./config.ini"
}

// Load reads the INI file at the given path (or the default/env path)
// and returns a fully populated Config. Missing sections or keys
// fall back to DefaultConfig() values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	// If file doesn't exist, return defaults (not an error)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnv(cfg)
		return cfg, nil
	}

	ini, err := parseINI(path)
	if err != nil {
		return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyINI(cfg, ini)
	applyEnv(cfg)

	return cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if logFile := os.Getenv("DEPTH_PREVIEW_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
}

// applyINI maps INI key-value pairs onto the Config struct.
// Unknown enum values keep the current setting.
func applyINI(cfg *Config, ini iniData) {
	// [logging]
	if ini.hasSection("logging") {
		if v, ok := ini.get("logging", "level"); ok {
			cfg.LogLevel = strings.ToUpper(strings.TrimSpace(v))
		}
		if v, ok := ini.get("logging", "file"); ok {
			cfg.LogFile = v
		}
		if v, ok := ini.get("logging", "max_bytes"); ok {
			cfg.LogMaxBytes = asInt(v, cfg.LogMaxBytes, intPtr(1024), nil)
		}
		if v, ok := ini.get("logging", "backup_count"); ok {
			cfg.LogBackupCount = asInt(v, cfg.LogBackupCount, intPtr(1), nil)
		}
		if v, ok := ini.get("logging", "stdout"); ok {
			cfg.LogToStdout = asBool(v, cfg.LogToStdout)
		}
	}

	// [camera]
	if ini.hasSection("camera") {
		if v, ok := ini.get("camera", "backend"); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			switch v {
			case BackendFFmpeg, BackendGoCV, BackendPattern, BackendV4L2:
				cfg.Backend = v
			}
		}
		if v, ok := ini.get("camera", "device"); ok && v != "" {
			cfg.Device = v
		}
		if v, ok := ini.get("camera", "color_order"); ok {
			if order, err := camera.ParseColorOrder(v); err == nil {
				cfg.ColorOrder = order.String()
			}
		}
		if v, ok := ini.get("camera", "mode"); ok {
			if mode, err := camera.ParseMode(v); err == nil {
				cfg.Mode = mode.String()
			}
		}
		if v, ok := ini.get("camera", "width"); ok {
			cfg.CaptureWidth = asInt(v, cfg.CaptureWidth, intPtr(160), intPtr(1920))
		}
		if v, ok := ini.get("camera", "height"); ok {
			cfg.CaptureHeight = asInt(v, cfg.CaptureHeight, intPtr(120), intPtr(1080))
		}
		if v, ok := ini.get("camera", "fps"); ok {
			cfg.CaptureFPS = asInt(v, cfg.CaptureFPS, intPtr(1), intPtr(60))
		}
		if v, ok := ini.get("camera", "format"); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "mjpeg" || v == "yuyv" {
				cfg.CaptureFormat = v
			}
		}
		if v, ok := ini.get("camera", "queue_size"); ok {
			cfg.QueueSize = asInt(v, cfg.QueueSize, intPtr(1), intPtr(64))
		}
		if v, ok := ini.get("camera", "blocking"); ok {
			cfg.Blocking = asBool(v, cfg.Blocking)
		}
		if v, ok := ini.get("camera", "read_timeout_ms"); ok {
			cfg.ReadTimeoutMS = asInt(v, cfg.ReadTimeoutMS, intPtr(1), intPtr(10000))
		}
		if v, ok := ini.get("camera", "poll_interval_ms"); ok {
			cfg.PollIntervalMS = asInt(v, cfg.PollIntervalMS, intPtr(1), intPtr(1000))
		}
		if v, ok := ini.get("camera", "open_timeout_ms"); ok {
			cfg.OpenTimeoutMS = asInt(v, cfg.OpenTimeoutMS, intPtr(100), intPtr(60000))
		}
		if v, ok := ini.get("camera", "kill_device_holders"); ok {
			cfg.KillDeviceHolders = asBool(v, cfg.KillDeviceHolders)
		}
	}

	// [recording]
	if v, ok := ini.get("recording", "output"); ok && v != "" {
		cfg.RecordingOutput = v
	}

	// [display]
	if ini.hasSection("display") {
		if v, ok := ini.get("display", "title"); ok && v != "" {
			cfg.WindowTitle = v
		}
		if v, ok := ini.get("display", "width"); ok {
			cfg.WindowWidth = asInt(v, cfg.WindowWidth, intPtr(320), intPtr(3840))
		}
		if v, ok := ini.get("display", "height"); ok {
			cfg.WindowHeight = asInt(v, cfg.WindowHeight, intPtr(240), intPtr(2160))
		}
		if v, ok := ini.get("display", "night_mode"); ok {
			cfg.NightMode = asBool(v, cfg.NightMode)
		}
	}

	// [health]
	if ini.hasSection("health") {
		if v, ok := ini.get("health", "log_interval_sec"); ok {
			cfg.HealthLogIntervalSec = asFloat(v, cfg.HealthLogIntervalSec, floatPtr(5.0), nil)
		}
		if v, ok := ini.get("health", "stale_frame_timeout_sec"); ok {
			cfg.StaleFrameTimeoutSec = asFloat(v, cfg.StaleFrameTimeoutSec, floatPtr(0.5), nil)
		}
		if v, ok := ini.get("health", "cpu_load_threshold"); ok {
			cfg.CPULoadThreshold = asFloat(v, cfg.CPULoadThreshold, floatPtr(0.1), floatPtr(20.0))
		}
		if v, ok := ini.get("health", "cpu_temp_threshold_c"); ok {
			cfg.CPUTempThresholdC = asFloat(v, cfg.CPUTempThresholdC, floatPtr(30.0), floatPtr(100.0))
		}
		if v, ok := ini.get("health", "stress_hold_count"); ok {
			cfg.StressHoldCount = asInt(v, cfg.StressHoldCount, intPtr(1), nil)
		}
		if v, ok := ini.get("health", "recover_hold_count"); ok {
			cfg.RecoverHoldCount = asInt(v, cfg.RecoverHoldCount, intPtr(1), nil)
		}
	}
}

// =============================================================================
// Capture settings
// =============================================================================

// Camera converts the loaded settings into the option set handed to a
// frame source.
func (c *Config) Camera() camera.Config {
	order, err := camera.ParseColorOrder(c.ColorOrder)
	if err != nil {
		order = camera.RGB
	}
	mode, err := camera.ParseMode(c.Mode)
	if err != nil {
		mode = camera.ModePreview
	}
	return camera.Config{
		Device:            c.Device,
		Order:             order,
		Mode:              mode,
		Width:             c.CaptureWidth,
		Height:            c.CaptureHeight,
		FPS:               c.CaptureFPS,
		Format:            c.CaptureFormat,
		QueueSize:         c.QueueSize,
		Blocking:          c.Blocking,
		ReadTimeout:       time.Duration(c.ReadTimeoutMS) * time.Millisecond,
		PollInterval:      time.Duration(c.PollIntervalMS) * time.Millisecond,
		OpenTimeout:       time.Duration(c.OpenTimeoutMS) * time.Millisecond,
		OutputPath:        c.RecordingOutput,
		KillDeviceHolders: c.KillDeviceHolders,
	}
}

// HealthInterval returns the health log period.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthLogIntervalSec * float64(time.Second))
}

// StaleFrameTimeout returns how old the last frame may be before the
// preview is reported as stalled.
func (c *Config) StaleFrameTimeout() time.Duration {
	return time.Duration(c.StaleFrameTimeoutSec * float64(time.Second))
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks whether the Config values are reasonable and returns
// warnings. Returns ok=false if any setting is critically problematic.
func (c *Config) Validate() (ok bool, warnings []string) {
	ok = true

	// Estimate USB bandwidth: MJPEG compresses to roughly 0.15 bytes per
	// pixel, YUYV is 2 bytes per pixel uncompressed. USB 2.0 sustains
	// about 35 MiB/s in practice.
	bytesPerPixel := 0.15
	if c.CaptureFormat == "yuyv" {
		bytesPerPixel = 2
	}
	bandwidth := float64(c.CaptureWidth*c.CaptureHeight*c.CaptureFPS) * bytesPerPixel / 1024 / 1024
	if bandwidth > 35 {
		ok = false
		warnings = append(warnings, fmt.Sprintf("Estimated USB bandwidth %.0f MiB/s exceeds safe limits", bandwidth))
	} else if bandwidth > 24 {
		warnings = append(warnings, fmt.Sprintf("Estimated USB bandwidth %.0f MiB/s is high - may cause issues", bandwidth))
	}

	if c.PollIntervalMS*c.CaptureFPS > 1000 {
		warnings = append(warnings, fmt.Sprintf("poll_interval_ms %d caps delivery below %d FPS", c.PollIntervalMS, c.CaptureFPS))
	}

	if c.Blocking && c.ReadTimeoutMS > 1000 {
		warnings = append(warnings, fmt.Sprintf("read_timeout_ms %d delays shutdown by up to that long", c.ReadTimeoutMS))
	}

	if c.Mode == "video" && c.Backend == BackendFFmpeg && c.CaptureFormat == "yuyv" {
		warnings = append(warnings, "Recording re-encodes YUYV input to MJPEG; expect higher CPU load")
	}

	if c.Backend == BackendV4L2 && c.CaptureFormat == "yuyv" {
		warnings = append(warnings, "The v4l2 backend captures MJPEG only; format yuyv is ignored")
	}

	if c.StaleFrameTimeoutSec*float64(c.CaptureFPS) < 2 {
		warnings = append(warnings, "stale_frame_timeout_sec is shorter than two frame periods")
	}

	return ok, warnings
}
