package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"depth-preview-go/internal/helpers"
	"go.uber.org/zap"
)

// Device is a V4L2 capture node found under /dev.
type Device struct {
	ID    string // "video0"
	Path  string // "/dev/video0"
	Index int
}

// DiscoverDevices lists character devices named videoN in devDir, lowest
// index first.
func DiscoverDevices(devDir string) ([]Device, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s directory: %w", devDir, err)
	}

	var devices []Device
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		idx, err := strconv.Atoi(name[len("video"):])
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Mode()&os.ModeCharDevice == 0 {
			continue
		}
		devices = append(devices, Device{
			ID:    name,
			Path:  filepath.Join(devDir, name),
			Index: idx,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

// ResolveDevice turns the configured device into a path. Empty or "auto"
// picks the first discovered device; a bare number N means /dev/videoN.
func ResolveDevice(device string) (string, error) {
	device = strings.TrimSpace(device)
	switch {
	case device == "" || strings.EqualFold(device, "auto"):
		devices, err := DiscoverDevices("/dev")
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if len(devices) == 0 {
			return "", fmt.Errorf("%w: no video devices found", ErrSourceUnavailable)
		}
		return devices[0].Path, nil
	case isDigits(device):
		return "/dev/video" + device, nil
	default:
		return device, nil
	}
}

// PrepareDevice resolves cfg.Device and, when configured, frees it from
// other processes before it is opened.
func PrepareDevice(cfg Config, log *zap.SugaredLogger) (string, error) {
	path, err := ResolveDevice(cfg.Device)
	if err != nil {
		return "", err
	}
	if cfg.KillDeviceHolders && strings.HasPrefix(path, "/dev/") {
		if pids := helpers.KillDeviceHolders(path, true, log.Named("killholders")); len(pids) > 0 {
			log.Infow("Freed device", "device", path, "killed", len(pids))
		}
	}
	return path, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
