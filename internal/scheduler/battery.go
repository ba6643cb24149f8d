package scheduler

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultPowerSupplyRoot = "/sys/class/power_supply"

// batteryGate blocks delivery passes while the machine runs on a low
// battery. Hosts without a battery supply are never gated.
type batteryGate struct {
	enabled    bool
	minPercent int
	sysfsRoot  string
}

func newBatteryGate(enabled bool, minPercent int) *batteryGate {
	return &batteryGate{
		enabled:    enabled,
		minPercent: minPercent,
		sysfsRoot:  defaultPowerSupplyRoot,
	}
}

// Low reports whether a discharging battery sits below the configured
// minimum, along with the observed capacity. Read errors and absent
// supplies report not low; delivery must not stall on sysfs quirks.
func (g *batteryGate) Low() (bool, int) {
	if !g.enabled || g.minPercent <= 0 {
		return false, 0
	}
	entries, err := os.ReadDir(g.sysfsRoot)
	if err != nil {
		return false, 0
	}
	for _, entry := range entries {
		supply := filepath.Join(g.sysfsRoot, entry.Name())
		if readSysfsValue(filepath.Join(supply, "type")) != "Battery" {
			continue
		}
		capacity, err := strconv.Atoi(readSysfsValue(filepath.Join(supply, "capacity")))
		if err != nil {
			continue
		}
		status := readSysfsValue(filepath.Join(supply, "status"))
		if status == "Charging" || status == "Full" {
			continue
		}
		if capacity < g.minPercent {
			return true, capacity
		}
	}
	return false, 0
}

func readSysfsValue(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
