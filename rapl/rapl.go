// Package rapl reads Intel RAPL (Running Average Power Limit) energy
// counters from the powercap sysfs interface and converts successive
// readings into watts, including the GPU (uncore) zone broadcast use
// cases care about alongside the CPU package.
package rapl

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruaan-deysel/intelgpu/internal/sysfsutil"
	"github.com/ruaan-deysel/intelgpu/logger"
)

// SysPowercapPath is the sysfs powercap root. Overridable in tests.
var SysPowercapPath = "/sys/class/powercap"

// Zone is a single RAPL power domain (package, core, uncore, or dram).
type Zone struct {
	Name     string
	EnergyUJ uint64
	MaxRange uint64
}

// Reading is a snapshot of every RAPL zone at one instant.
type Reading struct {
	Packages []Zone
	Core     []Zone
	Uncore   []Zone // GPU power on integrated-graphics platforms
	DRAM     []Zone
	Time     time.Time
}

// Power is watts derived from two successive Readings.
type Power struct {
	PackageWatts float64
	GPUWatts     float64
	DRAMWatts    float64
}

// IsAvailable reports whether the intel-rapl powercap interface is present.
func IsAvailable() bool {
	entries, err := os.ReadDir(SysPowercapPath)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "intel-rapl:") && !strings.Contains(name[len("intel-rapl:"):], ":") {
			return true
		}
	}
	return false
}

// ReadEnergy reads the current energy counters from every RAPL zone.
// Returns nil if RAPL is unavailable or no package zone could be read.
func ReadEnergy() *Reading {
	entries, err := os.ReadDir(SysPowercapPath)
	if err != nil {
		return nil
	}

	reading := &Reading{Time: time.Now()}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "intel-rapl:") {
			continue
		}
		suffix := name[len("intel-rapl:"):]
		if strings.Contains(suffix, ":") {
			continue // sub-zone, picked up by readSubZones below
		}

		zone := readZone(filepath.Join(SysPowercapPath, name))
		if zone != nil {
			reading.Packages = append(reading.Packages, *zone)
		}
		readSubZones(reading, suffix)
	}

	if len(reading.Packages) == 0 {
		return nil
	}
	return reading
}

func readSubZones(reading *Reading, parentSuffix string) {
	entries, err := os.ReadDir(SysPowercapPath)
	if err != nil {
		return
	}

	prefix := "intel-rapl:" + parentSuffix + ":"
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		zone := readZone(filepath.Join(SysPowercapPath, entry.Name()))
		if zone == nil {
			continue
		}
		switch zone.Name {
		case "core":
			reading.Core = append(reading.Core, *zone)
		case "uncore", "gt", "graphics":
			reading.Uncore = append(reading.Uncore, *zone)
		case "dram":
			reading.DRAM = append(reading.DRAM, *zone)
		default:
			logger.Debug("rapl: unknown sub-zone %q", zone.Name)
		}
	}
}

func readZone(zonePath string) *Zone {
	name := sysfsutil.ReadTrimmed(filepath.Join(zonePath, "name"))
	if name == "" {
		return nil
	}
	energyStr := sysfsutil.ReadTrimmed(filepath.Join(zonePath, "energy_uj"))
	if energyStr == "" {
		return nil
	}

	zone := &Zone{Name: name, EnergyUJ: sysfsutil.ParseUint64(energyStr)}
	if maxRangeStr := sysfsutil.ReadTrimmed(filepath.Join(zonePath, "max_energy_range_uj")); maxRangeStr != "" {
		zone.MaxRange = sysfsutil.ParseUint64(maxRangeStr)
	}
	return zone
}

// CalculatePower computes watts from two successive Readings. Returns nil
// if either reading is nil or the elapsed time is non-positive.
func CalculatePower(prev, curr *Reading) *Power {
	if prev == nil || curr == nil {
		return nil
	}
	elapsed := curr.Time.Sub(prev.Time).Seconds()
	if elapsed <= 0 {
		return nil
	}

	return &Power{
		PackageWatts: zonePower(prev.Packages, curr.Packages, elapsed),
		GPUWatts:     zonePower(prev.Uncore, curr.Uncore, elapsed),
		DRAMWatts:    zonePower(prev.DRAM, curr.DRAM, elapsed),
	}
}

// zonePower sums power across zones matched by position; sysfs enumerates
// powercap zones in a stable order across reads, so positional matching is
// safe.
func zonePower(prev, curr []Zone, elapsedSeconds float64) float64 {
	var totalWatts float64
	for i := range curr {
		if i >= len(prev) {
			break
		}
		deltaUJ := energyDelta(prev[i].EnergyUJ, curr[i].EnergyUJ, curr[i].MaxRange)
		totalWatts += float64(deltaUJ) / (elapsedSeconds * 1_000_000) // µJ -> J/s (watts)
	}
	return totalWatts
}

// energyDelta handles counter wraparound using max_energy_range_uj.
func energyDelta(prev, curr, maxRange uint64) uint64 {
	if curr >= prev {
		return curr - prev
	}
	if maxRange > 0 {
		return (maxRange - prev) + curr
	}
	return curr + (^uint64(0) - prev) + 1
}
