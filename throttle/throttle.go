// Package throttle reads the i915/xe throttle-reason bits a DRM adapter
// exposes under sysfs, reporting why the GPU is running below its
// requested frequency.
package throttle

import (
	"path/filepath"

	"github.com/ruaan-deysel/intelgpu/internal/sysfsutil"
)

// Reasons is the set of throttle causes reported for one adapter at one
// instant. Each reflects a distinct sysfs boolean file under
// <card>/gt/gt0/throttle_reason_*; a GPU can be throttled for more than one
// reason at once.
type Reasons struct {
	PowerLimit bool
	ThermalLimit bool
	CurrentLimit bool
	ProchotLimit bool
	Other        bool
}

// Any reports whether any throttle reason is active.
func (r Reasons) Any() bool {
	return r.PowerLimit || r.ThermalLimit || r.CurrentLimit || r.ProchotLimit || r.Other
}

// gtPath is the GT-scoped sysfs directory i915/xe nest throttle-reason
// files under. Multi-GT cards expose gt1, gt2, ...; this library only reads
// gt0, matching the single-GT scope the rest of this package's sysPath
// handling assumes.
func gtPath(sysPath string) string {
	return filepath.Join(sysPath, "gt", "gt0")
}

// Read reads the throttle-reason files under sysPath's gt/gt0 directory (a
// GpuInfo.SysPath, i.e. /sys/class/drm/cardN). Missing files read as false
// rather than erroring, since not every generation exposes every reason.
func Read(sysPath string) (Reasons, bool) {
	present := false
	var r Reasons
	dir := gtPath(sysPath)

	readBool := func(name string) bool {
		path := filepath.Join(dir, name)
		if !sysfsutil.Exists(path) {
			return false
		}
		present = true
		return sysfsutil.ReadTrimmed(path) == "1"
	}

	r.PowerLimit = readBool("throttle_reason_pl1") || readBool("throttle_reason_pl2")
	r.ThermalLimit = readBool("throttle_reason_thermal")
	r.CurrentLimit = readBool("throttle_reason_pl4")
	r.ProchotLimit = readBool("throttle_reason_prochot")
	r.Other = readBool("throttle_reason_ratl") || readBool("throttle_reason_vr_thermalert") || readBool("throttle_reason_vr_tdc")

	return r, present
}
