// Package fdinfo scans /proc/*/fdinfo for DRM client accounting entries,
// aggregating per-process engine nanoseconds across every open DRM file
// descriptor a process holds.
package fdinfo

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ruaan-deysel/intelgpu/internal/sysfsutil"
)

// ProcPath is the procfs root. Overridable in tests.
var ProcPath = "/proc"

// Client is one process's accumulated DRM engine usage, summed across all
// of its open DRM file descriptors.
type Client struct {
	PID              int
	Name             string
	Driver           string
	RenderNs         uint64
	CopyNs           uint64
	VideoNs          uint64
	VideoEnhanceNs   uint64
	ComputeNs        uint64
}

// engineFieldPrefix maps a drm-engine-<class> fdinfo field to the Client
// accumulator it feeds; the field name vocabulary is defined by the i915/xe
// fdinfo implementation, not a general DRM standard.
var engineFieldPrefix = map[string]func(*Client) *uint64{
	"drm-engine-render": func(c *Client) *uint64 { return &c.RenderNs },
	"drm-engine-copy":   func(c *Client) *uint64 { return &c.CopyNs },
	"drm-engine-video":  func(c *Client) *uint64 { return &c.VideoNs },
	"drm-engine-video-enhance": func(c *Client) *uint64 { return &c.VideoEnhanceNs },
	"drm-engine-compute":       func(c *Client) *uint64 { return &c.ComputeNs },
}

// ListClients scans every /proc/<pid>/fdinfo/* entry, keeping only
// processes with at least one DRM fd whose drm-driver field matches one of
// drivers (typically "i915" or "xe"), and aggregating their per-engine
// nanosecond counters.
func ListClients(drivers []string) ([]Client, error) {
	want := make(map[string]bool, len(drivers))
	for _, d := range drivers {
		want[d] = true
	}

	pidEntries, err := os.ReadDir(ProcPath)
	if err != nil {
		return nil, err
	}

	var clients []Client
	for _, pidEntry := range pidEntries {
		pid, err := strconv.Atoi(pidEntry.Name())
		if err != nil {
			continue
		}

		client, ok := scanProcess(pid, want)
		if ok {
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func scanProcess(pid int, wantDrivers map[string]bool) (Client, bool) {
	fdinfoDir := filepath.Join(ProcPath, strconv.Itoa(pid), "fdinfo")
	entries, err := os.ReadDir(fdinfoDir)
	if err != nil {
		return Client{}, false
	}

	client := Client{PID: pid}
	found := false

	for _, e := range entries {
		fields := sysfsutil.ParseLineMap(sysfsutil.ReadTrimmed(filepath.Join(fdinfoDir, e.Name())), ":")
		driver := fields["drm-driver"]
		if !wantDrivers[driver] {
			continue
		}
		found = true
		client.Driver = driver
		for field, value := range fields {
			accessor, ok := engineFieldPrefix[field]
			if !ok {
				continue
			}
			ns := parseNsValue(value)
			*accessor(&client) += ns
		}
	}

	if !found {
		return Client{}, false
	}
	client.Name = processName(pid)
	return client, true
}

// parseNsValue strips the "ns" unit suffix the kernel appends to
// drm-engine-* values (e.g. "1234567 ns").
func parseNsValue(v string) uint64 {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "ns"))
	return sysfsutil.ParseUint64(v)
}

func processName(pid int) string {
	comm := sysfsutil.ReadTrimmed(filepath.Join(ProcPath, strconv.Itoa(pid), "comm"))
	return comm
}

// FindQuicksyncClients filters clients for nonzero VideoNs or
// VideoEnhanceNs, i.e. processes actively using the Quick Sync decode or
// encode path.
func FindQuicksyncClients(clients []Client) []Client {
	var out []Client
	for _, c := range clients {
		if c.VideoNs > 0 || c.VideoEnhanceNs > 0 {
			out = append(out, c)
		}
	}
	return out
}
