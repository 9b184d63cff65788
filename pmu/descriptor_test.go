package pmu

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ruaan-deysel/intelgpu/internal/testutil"
)

func TestLoad_PrefersBDFScopedDirectory(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	testutil.WriteFile(t, filepath.Join(dir, "i915_0000:03:00.0"), "type", "17\n")
	testutil.WriteFile(t, filepath.Join(dir, "i915_0000:03:00.0", "events"), "actual-frequency", "event=0x03\n")
	testutil.WriteFile(t, filepath.Join(dir, "i915_0000:03:00.0", "events"), "actual-frequency.unit", "Hz\n")
	testutil.WriteFile(t, filepath.Join(dir, "i915_0000:03:00.0", "events"), "actual-frequency.scale", "1.0\n")
	// A loadable bare-driver directory with a different type id: it must lose.
	testutil.WriteFile(t, filepath.Join(dir, "i915"), "type", "99\n")
	testutil.WriteFile(t, filepath.Join(dir, "i915", "events"), "actual-frequency", "event=0x03\n")

	orig := EventSourcePath
	EventSourcePath = dir
	defer func() { EventSourcePath = orig }()

	desc, err := Load("i915", "0000:03:00.0")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if desc.TypeID != 17 {
		t.Errorf("TypeID = %d, want 17", desc.TypeID)
	}
	ev, ok := desc.Events["actual-frequency"]
	if !ok {
		t.Fatalf("events map missing actual-frequency")
	}
	if ev.Config != 0x03 {
		t.Errorf("Config = %#x, want 0x3", ev.Config)
	}
	if ev.Unit != UnitHertz {
		t.Errorf("Unit = %q, want Hz (as written in fixture)", ev.Unit)
	}
}

func TestLoad_FallsBackToBareDriverDirectory(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	testutil.WriteFile(t, filepath.Join(dir, "i915"), "type", "17\n")
	testutil.WriteFile(t, filepath.Join(dir, "i915", "events"), "rc6-residency", "event=0x05\n")

	orig := EventSourcePath
	EventSourcePath = dir
	defer func() { EventSourcePath = orig }()

	desc, err := Load("i915", "0000:03:00.0")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := desc.Events["rc6-residency"]; !ok {
		t.Errorf("events map missing rc6-residency from fallback directory")
	}
}

func TestLoad_MissingPmuReturnsUnavailable(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	orig := EventSourcePath
	EventSourcePath = dir
	defer func() { EventSourcePath = orig }()

	_, err := Load("i915", "0000:03:00.0")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load() error = %v, want ErrUnavailable", err)
	}
}
