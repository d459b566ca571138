package helpers

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// stubCommands replaces lsof/fuser output for the duration of a test.
func stubCommands(t *testing.T, outputs map[string]string) *[]string {
	t.Helper()
	var calls []string
	orig := runCommand
	runCommand = func(name string, args ...string) string {
		line := strings.Join(append([]string{name}, args...), " ")
		calls = append(calls, line)
		return outputs[name]
	}
	t.Cleanup(func() { runCommand = orig })
	return &calls
}

// stubSignal records signals instead of sending them. Every PID is
// reported dead after its SIGTERM.
func stubSignal(t *testing.T, fail error) *[]string {
	t.Helper()
	var sent []string
	dead := map[int]bool{}
	orig := signal
	signal = func(pid int, sig syscall.Signal) error {
		if sig == 0 {
			if dead[pid] {
				return syscall.ESRCH
			}
			return nil
		}
		sent = append(sent, sig.String())
		if fail != nil {
			return fail
		}
		dead[pid] = true
		return nil
	}
	t.Cleanup(func() { signal = orig })
	return &sent
}

func TestParseLsofPIDs(t *testing.T) {
	got := sortedKeys(parseLsofPIDs("4242\n17\n\nnot-a-pid\n17\n"))
	if want := []int{17, 4242}; !reflect.DeepEqual(got, want) {
		t.Errorf("parseLsofPIDs = %v, want %v", got, want)
	}
}

func TestParseFuserPIDs(t *testing.T) {
	tests := []struct {
		out  string
		want []int
	}{
		// The device name's own digits must not be taken for a PID
		{"/dev/video0:  1234m  5678", []int{1234, 5678}},
		{"/dev/video2:   77cF 78e", []int{77, 78}},
		{"  4242", []int{4242}},
		{"/dev/video0: m", []int{}},
		{"", []int{}},
	}
	for _, tt := range tests {
		if got := sortedKeys(parseFuserPIDs(tt.out)); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseFuserPIDs(%q) = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestDeviceHoldersFallsBackToFuser(t *testing.T) {
	stubCommands(t, map[string]string{
		"lsof":  "",
		"fuser": "/dev/video0:  900m  " + strconv.Itoa(os.Getpid()),
	})
	if got, want := DeviceHolders("/dev/video0"), []int{900}; !reflect.DeepEqual(got, want) {
		t.Errorf("DeviceHolders = %v, want %v", got, want)
	}
}

func TestKillDeviceHoldersDisabled(t *testing.T) {
	calls := stubCommands(t, nil)
	if pids := KillDeviceHolders("/dev/video0", false, nil); pids != nil {
		t.Errorf("disabled call signalled %v", pids)
	}
	if len(*calls) != 0 {
		t.Errorf("disabled call ran %v", *calls)
	}
}

func TestKillDeviceHoldersTerminates(t *testing.T) {
	stubCommands(t, map[string]string{"lsof": "31\n32"})
	sent := stubSignal(t, nil)

	pids := KillDeviceHoldersWithGrace("/dev/video0", true, time.Millisecond, zaptest.NewLogger(t).Sugar())
	if want := []int{31, 32}; !reflect.DeepEqual(pids, want) {
		t.Errorf("pids = %v, want %v", pids, want)
	}
	// Both exit on SIGTERM, so no SIGKILL is needed
	for _, s := range *sent {
		if s != syscall.SIGTERM.String() {
			t.Errorf("unexpected signal %s", s)
		}
	}
	if len(*sent) != 2 {
		t.Errorf("sent %d signals, want 2", len(*sent))
	}
}

func TestKillDeviceHoldersEscalatesOnce(t *testing.T) {
	calls := stubCommands(t, map[string]string{"lsof": "40\n41"})
	stubSignal(t, syscall.EPERM)

	KillDeviceHoldersWithGrace("/dev/video2", true, time.Millisecond, nil)

	sudo := 0
	for _, c := range *calls {
		if c == "sudo fuser -k /dev/video2" {
			sudo++
		}
	}
	if sudo != 1 {
		t.Errorf("sudo fuser -k ran %d times, want 1 (calls %v)", sudo, *calls)
	}
}
