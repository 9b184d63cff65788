// Package gpuinfo enumerates Intel DRM adapters exposed under /sys/class/drm
// and resolves the PCI identity and driver backing each one.
package gpuinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNoIntelGpu is returned by Detect when no Intel DRM adapter is present.
var ErrNoIntelGpu = errors.New("gpuinfo: no Intel GPU found")

// DrmClassPath is the sysfs DRM class directory. Overridable in tests.
var DrmClassPath = "/sys/class/drm"

// IntelVendorID is the PCI vendor id Intel reports under device/vendor.
const IntelVendorID = "0x8086"

// Driver identifies which kernel driver backs an adapter.
type Driver string

const (
	DriverI915 Driver = "i915"
	DriverXe   Driver = "xe"
)

// GpuInfo describes one Intel DRM adapter found on the host.
type GpuInfo struct {
	CardIndex int    // N in /sys/class/drm/cardN
	PCIAddr   string // DDDD:BB:DD.F
	VendorID  string // always "0x8086" for entries this probe returns
	DeviceID  string // 0x-prefixed PCI device id
	Driver    Driver
	SysPath   string // /sys/class/drm/cardN
}

var cardNameRe = regexp.MustCompile(`^card(\d+)$`)

// ListGpus enumerates Intel DRM adapters under DrmClassPath, ascending by
// card index. Render (renderD*) and control nodes are ignored. An adapter
// whose device/vendor isn't Intel's is skipped rather than erroring, since
// the probe's job is to find Intel cards on a possibly-mixed-vendor host.
func ListGpus() ([]GpuInfo, error) {
	entries, err := os.ReadDir(DrmClassPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", DrmClassPath, err)
	}

	var cards []int
	for _, e := range entries {
		m := cardNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cards = append(cards, idx)
	}
	sort.Ints(cards)

	var gpus []GpuInfo
	for _, idx := range cards {
		info, ok := probeCard(idx)
		if ok {
			gpus = append(gpus, info)
		}
	}
	return gpus, nil
}

// Detect returns the first entry of ListGpus, or ErrNoIntelGpu when none
// are found.
func Detect() (GpuInfo, error) {
	gpus, err := ListGpus()
	if err != nil {
		return GpuInfo{}, err
	}
	if len(gpus) == 0 {
		return GpuInfo{}, fmt.Errorf("%s: %w", DrmClassPath, ErrNoIntelGpu)
	}
	return gpus[0], nil
}

func probeCard(idx int) (GpuInfo, bool) {
	sysPath := filepath.Join(DrmClassPath, fmt.Sprintf("card%d", idx))
	devicePath := filepath.Join(sysPath, "device")

	vendor := readSysfsFile(filepath.Join(devicePath, "vendor"))
	if !strings.EqualFold(vendor, IntelVendorID) {
		return GpuInfo{}, false
	}

	deviceID := readSysfsFile(filepath.Join(devicePath, "device"))

	driverName, ok := resolveDriver(devicePath)
	if !ok {
		return GpuInfo{}, false
	}

	bdf, ok := resolveBDF(devicePath)
	if !ok {
		return GpuInfo{}, false
	}

	return GpuInfo{
		CardIndex: idx,
		PCIAddr:   bdf,
		VendorID:  vendor,
		DeviceID:  deviceID,
		Driver:    driverName,
		SysPath:   sysPath,
	}, true
}

// resolveDriver follows device/driver, a symlink into
// /sys/bus/pci/drivers/<name>, and classifies it as i915 or xe.
func resolveDriver(devicePath string) (Driver, bool) {
	target, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return "", false
	}
	name := filepath.Base(target)
	switch name {
	case string(DriverI915):
		return DriverI915, true
	case string(DriverXe):
		return DriverXe, true
	default:
		return "", false
	}
}

// resolveBDF recovers the PCI Bus:Device.Function address from the
// device symlink target, e.g. .../0000:03:00.0 -> "0000:03:00.0".
func resolveBDF(devicePath string) (string, bool) {
	target, err := os.Readlink(devicePath)
	if err != nil {
		return "", false
	}
	base := filepath.Base(target)
	if !bdfRe.MatchString(base) {
		return "", false
	}
	return base, true
}

var bdfRe = regexp.MustCompile(`^[0-9a-fA-F]{4}:[0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-9a-fA-F]$`)

func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
