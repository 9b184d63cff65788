package pmu

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruaan-deysel/intelgpu/internal/sysfsutil"
)

// EventSourcePath is the sysfs root for registered PMUs. Overridable in
// tests.
var EventSourcePath = "/sys/bus/event_source/devices"

// Descriptor is a loaded PMU instance: its kernel type id and the events it
// advertises under events/.
type Descriptor struct {
	Path   string // e.g. /sys/bus/event_source/devices/i915_0000:03:00.0
	TypeID uint32
	Events map[string]EventDesc
}

// Load resolves the PMU directory for a driver ("i915"|"xe") and PCI BDF,
// trying "<driver>_<bdf>" before falling back to the bare driver name for
// single-GPU hosts, then reads its type id and events/ directory.
func Load(driver, bdf string) (*Descriptor, error) {
	candidates := []string{
		filepath.Join(EventSourcePath, driver+"_"+bdf),
		filepath.Join(EventSourcePath, driver),
	}

	var lastErr error
	for _, dir := range candidates {
		d, err := loadFrom(dir)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, driver, lastErr)
}

func loadFrom(dir string) (*Descriptor, error) {
	if !sysfsutil.Exists(dir) {
		return nil, fmt.Errorf("%s: not present", dir)
	}

	typeRaw, err := os.ReadFile(filepath.Join(dir, "type"))
	if err != nil {
		return nil, fmt.Errorf("read %s/type: %w", dir, err)
	}
	typeID := sysfsutil.ParseUint64(string(typeRaw))

	events, err := loadEvents(filepath.Join(dir, "events"))
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Path:   dir,
		TypeID: uint32(typeID),
		Events: events,
	}, nil
}

func loadEvents(eventsDir string) (map[string]EventDesc, error) {
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", eventsDir, err)
	}

	events := make(map[string]EventDesc)
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, ".") {
			continue // unit/scale sidecar files, handled alongside their base name
		}
		raw := sysfsutil.ReadTrimmed(filepath.Join(eventsDir, name))
		if raw == "" {
			continue
		}
		config, err := parseEventConfig(raw)
		if err != nil {
			continue
		}

		desc := EventDesc{
			Name:   name,
			Config: config,
			Scale:  1.0,
			Kind:   KindCounter,
		}
		if unit := sysfsutil.ReadTrimmed(filepath.Join(eventsDir, name+".unit")); unit != "" {
			desc.Unit = Unit(unit)
		}
		if scale := sysfsutil.ReadTrimmed(filepath.Join(eventsDir, name+".scale")); scale != "" {
			desc.Scale = sysfsutil.ParseFloat(scale, 1.0)
		}
		events[name] = desc
	}
	return events, nil
}

// parseEventConfig turns "event=0x01,gt=0" into a config u64. Only the
// "event=" field contributes to the config; any other field (such as xe's
// "gt=") is discarded and is not kept anywhere on the descriptor, so two
// events that differ only in gt= yield the same config.
func parseEventConfig(raw string) (uint64, error) {
	fields := parseFields(raw)
	eventField, ok := fields["event"]
	if !ok {
		return 0, fmt.Errorf("no event= field in %q", raw)
	}
	eventField = strings.TrimPrefix(eventField, "0x")
	var config uint64
	if _, err := fmt.Sscanf(eventField, "%x", &config); err != nil {
		return 0, fmt.Errorf("parse event field %q: %w", eventField, err)
	}
	return config, nil
}

func parseFields(raw string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		k, v := sysfsutil.ParseKeyValue(part, "=")
		if k != "" {
			fields[k] = v
		}
	}
	return fields
}
