package perf

import (
	"errors"
	"testing"
)

func fakeMonitor(load, temp float64, tempErr error) *Monitor {
	m := NewMonitor(1.5, 70)
	m.readLoad = func() (float64, error) { return load, nil }
	m.readTemp = func() (float64, error) { return temp, tempErr }
	m.readMemory = func() (uint64, float64, error) { return 512 << 20, 40, nil }
	return m
}

func TestMonitorUpdateStats(t *testing.T) {
	m := fakeMonitor(0.5, 45, nil)
	if err := m.UpdateStats(); err != nil {
		t.Fatalf("UpdateStats() = %v", err)
	}
	if m.GetLoadAverage() != 0.5 || m.GetTemperature() != 45 {
		t.Errorf("load=%v temp=%v", m.GetLoadAverage(), m.GetTemperature())
	}
	if m.GetMemoryUsage() != 40 || m.GetMemoryUsed() != 512<<20 {
		t.Errorf("memory=%v%% used=%d", m.GetMemoryUsage(), m.GetMemoryUsed())
	}
	if m.LastCheck().IsZero() {
		t.Error("LastCheck not set")
	}
	if m.IsUnderStress() {
		t.Error("idle host reported under stress")
	}
}

func TestMonitorStressThresholds(t *testing.T) {
	if !fakeMonitor(2.0, 40, nil).updated(t).IsUnderStress() {
		t.Error("high load not reported as stress")
	}
	if !fakeMonitor(0.1, 80, nil).updated(t).IsUnderStress() {
		t.Error("high temperature not reported as stress")
	}
}

func TestMonitorWithoutTemperatureSensor(t *testing.T) {
	m := fakeMonitor(0.7, 0, ErrTemperatureNotFound)
	if err := m.UpdateStats(); !errors.Is(err, ErrTemperatureNotFound) {
		t.Fatalf("UpdateStats() = %v, want ErrTemperatureNotFound", err)
	}
	// Load is still refreshed
	if m.GetLoadAverage() != 0.7 {
		t.Errorf("load = %v, want 0.7", m.GetLoadAverage())
	}
}

func TestMonitorLoadFailure(t *testing.T) {
	m := fakeMonitor(0, 0, nil)
	m.readLoad = func() (float64, error) { return 0, errors.New("no /proc") }
	if err := m.UpdateStats(); err == nil {
		t.Fatal("UpdateStats() succeeded without load average")
	}
	if !m.LastCheck().IsZero() {
		t.Error("LastCheck set after a failed update")
	}
}

func (m *Monitor) updated(t *testing.T) *Monitor {
	t.Helper()
	if err := m.UpdateStats(); err != nil {
		t.Fatalf("UpdateStats() = %v", err)
	}
	return m
}
