// Package hwmon reads temperature and fan sensors from the Linux hwmon
// sysfs tree for a DRM adapter's backing device. It is an external
// collaborator to the pmu/intelgpu core: capability and availability are
// probed independently and never block adapter open.
package hwmon

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ruaan-deysel/intelgpu/internal/sysfsutil"
)

// HwmonClassPath is the sysfs hwmon class directory. Overridable in tests.
var HwmonClassPath = "/sys/class/hwmon"

// Reading is one sensor sample: temperature in millidegrees Celsius and,
// when the device exposes one, a fan RPM.
type Reading struct {
	TempMilliC int
	HasTemp    bool
	FanRPM     int
	HasFan     bool
}

var tempInputRe = regexp.MustCompile(`^temp(\d+)_input$`)
var fanInputRe = regexp.MustCompile(`^fan(\d+)_input$`)

// Find locates the hwmonN directory whose "device" symlink resolves to the
// same device as devicePath (a DRM adapter's /sys/class/drm/cardN/device),
// returning "" if none matches.
func Find(devicePath string) (string, error) {
	resolvedDevice, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		return "", fmt.Errorf("hwmon: resolve %s: %w", devicePath, err)
	}

	entries, err := os.ReadDir(HwmonClassPath)
	if err != nil {
		return "", fmt.Errorf("hwmon: read %s: %w", HwmonClassPath, err)
	}

	for _, e := range entries {
		hwmonDir := filepath.Join(HwmonClassPath, e.Name())
		dev, err := filepath.EvalSymlinks(filepath.Join(hwmonDir, "device"))
		if err != nil {
			continue
		}
		if dev == resolvedDevice {
			return hwmonDir, nil
		}
	}
	return "", nil
}

// Read reads whichever temperature/fan inputs a hwmon directory exposes,
// preferring the lowest-numbered input of each kind (hwmon numbers inputs
// from 1; temp1/fan1 is conventionally the primary sensor).
func Read(hwmonDir string) (Reading, error) {
	if hwmonDir == "" {
		return Reading{}, nil
	}
	entries, err := os.ReadDir(hwmonDir)
	if err != nil {
		return Reading{}, fmt.Errorf("hwmon: read %s: %w", hwmonDir, err)
	}

	var reading Reading
	tempIdx, fanIdx := -1, -1
	for _, e := range entries {
		name := e.Name()
		if m := tempInputRe.FindStringSubmatch(name); m != nil {
			if idx, _ := strconv.Atoi(m[1]); tempIdx < 0 || idx < tempIdx {
				if v, ok := readSysfsInt(hwmonDir, name); ok {
					reading.TempMilliC = v
					reading.HasTemp = true
					tempIdx = idx
				}
			}
		}
		if m := fanInputRe.FindStringSubmatch(name); m != nil {
			if idx, _ := strconv.Atoi(m[1]); fanIdx < 0 || idx < fanIdx {
				if v, ok := readSysfsInt(hwmonDir, name); ok {
					reading.FanRPM = v
					reading.HasFan = true
					fanIdx = idx
				}
			}
		}
	}
	return reading, nil
}

func readSysfsInt(dir, name string) (int, bool) {
	raw := sysfsutil.ReadTrimmed(filepath.Join(dir, name))
	if raw == "" {
		return 0, false
	}
	return sysfsutil.ParseInt(raw), true
}

// Label returns the "name" file content of a hwmon directory, trimmed, or
// "" if absent.
func Label(hwmonDir string) string {
	return strings.TrimSpace(sysfsutil.ReadTrimmed(filepath.Join(hwmonDir, "name")))
}
