// Package perf samples host load, temperature and memory for the health log.
package perf

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Monitor tracks system performance metrics
type Monitor struct {
	mutex sync.RWMutex

	lastCheck   time.Time
	loadAvg     float64
	temperature float64
	memoryUsage float64 // Percentage of memory used
	memoryUsed  uint64

	loadThreshold float64
	tempThreshold float64

	// Samplers, replaced in tests
	readLoad   func() (float64, error)
	readTemp   func() (float64, error)
	readMemory func() (used uint64, percent float64, err error)
}

// NewMonitor creates a monitor that reports stress above the given load
// average or CPU temperature in Celsius.
func NewMonitor(loadThreshold, tempThreshold float64) *Monitor {
	return &Monitor{
		loadThreshold: loadThreshold,
		tempThreshold: tempThreshold,
		readLoad:      readLoadAverage,
		readTemp:      readTemperature,
		readMemory:    readMemoryUsage,
	}
}

// UpdateStats refreshes all metrics. Memory is non-critical; a missing
// temperature sensor is reported as ErrTemperatureNotFound after load and
// memory have been updated.
func (m *Monitor) UpdateStats() error {
	loadAvg, err := m.readLoad()
	if err != nil {
		return err
	}
	used, percent, memErr := m.readMemory()
	temp, tempErr := m.readTemp()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.loadAvg = loadAvg
	if memErr == nil {
		m.memoryUsed = used
		m.memoryUsage = percent
	}
	if tempErr == nil {
		m.temperature = temp
	}
	m.lastCheck = time.Now()
	return tempErr
}

// GetLoadAverage returns the 1-minute load average
func (m *Monitor) GetLoadAverage() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.loadAvg
}

// GetTemperature returns current temperature in Celsius
func (m *Monitor) GetTemperature() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.temperature
}

// GetMemoryUsage returns memory usage percentage (0-100)
func (m *Monitor) GetMemoryUsage() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.memoryUsage
}

// GetMemoryUsed returns used memory in bytes
func (m *Monitor) GetMemoryUsed() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.memoryUsed
}

// LastCheck returns when UpdateStats last succeeded
func (m *Monitor) LastCheck() time.Time {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lastCheck
}

// IsUnderStress returns true if system is under stress
func (m *Monitor) IsUnderStress() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.loadAvg > m.loadThreshold || m.temperature > m.tempThreshold
}

func readLoadAverage() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

// readTemperature averages the CPU-ish sensors (thermal zones, coretemp,
// cpu_thermal on the Pi).
func readTemperature() (float64, error) {
	sensors, err := host.SensorsTemperatures()
	if err != nil && len(sensors) == 0 {
		return 0, err
	}

	var total float64
	var count int
	for _, s := range sensors {
		key := strings.ToLower(s.SensorKey)
		if s.Temperature <= 0 {
			continue
		}
		if strings.Contains(key, "cpu") || strings.Contains(key, "core") ||
			strings.Contains(key, "thermal") || strings.Contains(key, "package") {
			total += s.Temperature
			count++
		}
	}
	if count == 0 {
		return 0, ErrTemperatureNotFound
	}
	return total / float64(count), nil
}

func readMemoryUsage() (uint64, float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Used, vm.UsedPercent, nil
}

// Errors
var (
	ErrTemperatureNotFound = errors.New("no temperature sensor found")
)
