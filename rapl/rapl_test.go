package rapl

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func createZone(t *testing.T, dir, name, zoneName string, energyUJ, maxRange uint64) {
	t.Helper()
	zonePath := filepath.Join(dir, name)
	if err := os.MkdirAll(zonePath, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", zonePath, err)
	}
	writeFile(t, filepath.Join(zonePath, "name"), zoneName)
	writeFile(t, filepath.Join(zonePath, "energy_uj"), strconv.FormatUint(energyUJ, 10))
	writeFile(t, filepath.Join(zonePath, "max_energy_range_uj"), strconv.FormatUint(maxRange, 10))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content+"\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsAvailable(t *testing.T) {
	orig := SysPowercapPath
	defer func() { SysPowercapPath = orig }()

	SysPowercapPath = "/non/existent/path"
	if IsAvailable() {
		t.Error("expected unavailable for nonexistent path")
	}

	tmpDir := t.TempDir()
	SysPowercapPath = tmpDir
	if IsAvailable() {
		t.Error("expected unavailable in empty directory")
	}

	createZone(t, tmpDir, "intel-rapl:0", "package-0", 1000, 262143328850)
	if !IsAvailable() {
		t.Error("expected available with intel-rapl:0 zone present")
	}
}

func TestReadEnergy_AggregatesPackageCoreUncoreDRAM(t *testing.T) {
	orig := SysPowercapPath
	defer func() { SysPowercapPath = orig }()

	tmpDir := t.TempDir()
	SysPowercapPath = tmpDir

	if r := ReadEnergy(); r != nil {
		t.Fatalf("ReadEnergy() on empty dir = %+v, want nil", r)
	}

	createZone(t, tmpDir, "intel-rapl:0", "package-0", 100_000_000, 262143328850)
	createZone(t, tmpDir, "intel-rapl:0:0", "core", 80_000_000, 262143328850)
	createZone(t, tmpDir, "intel-rapl:0:1", "uncore", 10_000_000, 262143328850)
	createZone(t, tmpDir, "intel-rapl:0:2", "dram", 20_000_000, 262143328850)

	reading := ReadEnergy()
	if reading == nil {
		t.Fatal("ReadEnergy() = nil, want a reading")
	}
	if len(reading.Packages) != 1 || reading.Packages[0].EnergyUJ != 100_000_000 {
		t.Errorf("Packages = %+v", reading.Packages)
	}
	if len(reading.Uncore) != 1 || reading.Uncore[0].EnergyUJ != 10_000_000 {
		t.Errorf("Uncore = %+v, want one zone with 10_000_000 uJ (GPU power)", reading.Uncore)
	}
	if len(reading.DRAM) != 1 {
		t.Errorf("DRAM = %+v", reading.DRAM)
	}
}

func TestCalculatePower(t *testing.T) {
	prev := &Reading{
		Packages: []Zone{{Name: "package-0", EnergyUJ: 0, MaxRange: 1_000_000}},
		Uncore:   []Zone{{Name: "uncore", EnergyUJ: 0, MaxRange: 1_000_000}},
		Time:     time.Unix(0, 0),
	}
	curr := &Reading{
		Packages: []Zone{{Name: "package-0", EnergyUJ: 5_000_000, MaxRange: 1_000_000}},
		Uncore:   []Zone{{Name: "uncore", EnergyUJ: 1_000_000, MaxRange: 1_000_000}},
		Time:     time.Unix(1, 0),
	}

	power := CalculatePower(prev, curr)
	if power == nil {
		t.Fatal("CalculatePower() = nil")
	}
	if power.PackageWatts != 5.0 {
		t.Errorf("PackageWatts = %v, want 5.0", power.PackageWatts)
	}
	if power.GPUWatts != 1.0 {
		t.Errorf("GPUWatts = %v, want 1.0", power.GPUWatts)
	}
}

func TestCalculatePower_HandlesWraparound(t *testing.T) {
	prev := &Reading{
		Packages: []Zone{{Name: "package-0", EnergyUJ: 900_000, MaxRange: 1_000_000}},
		Time:     time.Unix(0, 0),
	}
	curr := &Reading{
		Packages: []Zone{{Name: "package-0", EnergyUJ: 100_000, MaxRange: 1_000_000}},
		Time:     time.Unix(1, 0),
	}

	power := CalculatePower(prev, curr)
	if power == nil {
		t.Fatal("CalculatePower() = nil")
	}
	// delta = (1_000_000 - 900_000) + 100_000 = 200_000 uJ over 1s = 0.2W
	if power.PackageWatts != 0.2 {
		t.Errorf("PackageWatts = %v, want 0.2 (wraparound-aware)", power.PackageWatts)
	}
}

func TestCalculatePower_NilOnMissingReading(t *testing.T) {
	if CalculatePower(nil, &Reading{}) != nil {
		t.Error("expected nil when prev is nil")
	}
	if CalculatePower(&Reading{}, nil) != nil {
		t.Error("expected nil when curr is nil")
	}
}
