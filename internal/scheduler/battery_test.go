package scheduler

import (
	"os"
	"path/filepath"
	"testing"
)

// writeBatterySysfs builds a fake power_supply tree with one supply.
func writeBatterySysfs(t *testing.T, supplyType, capacity, status string) string {
	t.Helper()
	root := t.TempDir()
	supply := filepath.Join(root, "BAT0")
	if err := os.MkdirAll(supply, 0o755); err != nil {
		t.Fatalf("mkdir supply: %v", err)
	}
	files := map[string]string{"type": supplyType, "capacity": capacity, "status": status}
	for name, value := range files {
		if value == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(supply, name), []byte(value+"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func TestBatteryGateLowOnDischargingBattery(t *testing.T) {
	gate := &batteryGate{enabled: true, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Battery", "7", "Discharging")}
	low, percent := gate.Low()
	if !low {
		t.Fatal("expected gate to report low battery")
	}
	if percent != 7 {
		t.Fatalf("expected capacity 7, got %d", percent)
	}
}

func TestBatteryGateIgnoresChargingBattery(t *testing.T) {
	gate := &batteryGate{enabled: true, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Battery", "7", "Charging")}
	if low, _ := gate.Low(); low {
		t.Fatal("a charging battery must not gate delivery")
	}
}

func TestBatteryGateIgnoresHealthyBattery(t *testing.T) {
	gate := &batteryGate{enabled: true, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Battery", "85", "Discharging")}
	if low, _ := gate.Low(); low {
		t.Fatal("a healthy battery must not gate delivery")
	}
}

func TestBatteryGateIgnoresMainsSupply(t *testing.T) {
	gate := &batteryGate{enabled: true, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Mains", "0", "")}
	if low, _ := gate.Low(); low {
		t.Fatal("a mains supply must not gate delivery")
	}
}

func TestBatteryGateDisabled(t *testing.T) {
	gate := &batteryGate{enabled: false, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Battery", "1", "Discharging")}
	if low, _ := gate.Low(); low {
		t.Fatal("a disabled gate must never report low")
	}
}

func TestBatteryGateToleratesMissingSysfs(t *testing.T) {
	gate := &batteryGate{enabled: true, minPercent: 20, sysfsRoot: filepath.Join(t.TempDir(), "absent")}
	if low, _ := gate.Low(); low {
		t.Fatal("missing sysfs root must not gate delivery")
	}
}

func TestBatteryGateToleratesUnreadableCapacity(t *testing.T) {
	gate := &batteryGate{enabled: true, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Battery", "garbled", "Discharging")}
	if low, _ := gate.Low(); low {
		t.Fatal("an unreadable capacity must not gate delivery")
	}
}
