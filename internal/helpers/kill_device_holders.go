// Package helpers holds process-level utilities used before a capture
// device is opened.
package helpers

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// DefaultGrace is the wait between SIGTERM and SIGKILL.
const DefaultGrace = 400 * time.Millisecond

// =============================================================================
// Device holder cleanup
// =============================================================================
// Frees a /dev/video* node held by a stale ffmpeg or an earlier preview
// session. A device that is already open elsewhere otherwise shows up as
// "frame source unavailable".
//
// Holders are found with lsof -t, falling back to fuser. Our own PID is
// never signalled. Holders get SIGTERM, then SIGKILL after the grace period.
// =============================================================================

// runCommand executes a command with a 2-second timeout and returns its
// trimmed stdout, or "" on any error. Replaced in tests.
var runCommand = func(name string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// signal is syscall.Kill. Replaced in tests.
var signal = syscall.Kill

// DeviceHolders lists the PIDs, other than ours, that hold devicePath open.
func DeviceHolders(devicePath string) []int {
	pids := parseLsofPIDs(runCommand("lsof", "-t", devicePath))
	if len(pids) == 0 {
		pids = parseFuserPIDs(runCommand("fuser", devicePath))
	}
	delete(pids, os.Getpid())
	return sortedKeys(pids)
}

// KillDeviceHolders terminates the processes holding devicePath and returns
// the PIDs it signalled. A disabled call does nothing.
func KillDeviceHolders(devicePath string, enabled bool, log *zap.SugaredLogger) []int {
	return KillDeviceHoldersWithGrace(devicePath, enabled, DefaultGrace, log)
}

// KillDeviceHoldersWithGrace is KillDeviceHolders with a custom wait between
// SIGTERM and SIGKILL.
func KillDeviceHoldersWithGrace(devicePath string, enabled bool, grace time.Duration, log *zap.SugaredLogger) []int {
	if !enabled {
		return nil
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	pids := DeviceHolders(devicePath)
	if len(pids) == 0 {
		return nil
	}
	log.Infow("Killing device holders", "device", devicePath, "pids", pids)

	escalated := false
	escalate := func() {
		// Not our process; fuser -k under sudo is the only way left
		if !escalated {
			escalated = true
			runCommand("sudo", "fuser", "-k", devicePath)
		}
	}

	for _, pid := range pids {
		if err := signal(pid, syscall.SIGTERM); err != nil {
			if isPermissionError(err) {
				escalate()
				continue
			}
			log.Warnw("SIGTERM failed", "pid", pid, "error", err)
		}
	}

	time.Sleep(grace)

	for _, pid := range pids {
		if signal(pid, 0) != nil {
			continue
		}
		if err := signal(pid, syscall.SIGKILL); err != nil {
			if isPermissionError(err) {
				escalate()
				continue
			}
			log.Warnw("SIGKILL failed", "pid", pid, "error", err)
		}
	}
	return pids
}

// parseLsofPIDs reads one PID per line.
func parseLsofPIDs(out string) map[int]struct{} {
	pids := make(map[int]struct{})
	for _, line := range strings.Split(out, "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			pids[pid] = struct{}{}
		}
	}
	return pids
}

// parseFuserPIDs reads the PIDs after the device name in fuser output,
// e.g. "/dev/video0:  1234m  5678". fuser appends access letters (c, e, f,
// F, m, r) to each PID.
func parseFuserPIDs(out string) map[int]struct{} {
	if i := strings.IndexByte(out, ':'); i >= 0 {
		out = out[i+1:]
	}
	pids := make(map[int]struct{})
	for _, field := range strings.Fields(out) {
		field = strings.TrimRightFunc(field, unicode.IsLetter)
		if pid, err := strconv.Atoi(field); err == nil && pid > 0 {
			pids[pid] = struct{}{}
		}
	}
	return pids
}

func isPermissionError(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES)
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
