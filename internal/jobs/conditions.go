package jobs

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Conditions reports device state that job constraints depend on.
type Conditions interface {
	NetworkAvailable(ctx context.Context) bool
	BatteryNotLow(ctx context.Context) bool
}

// Satisfied reports whether every constraint in c holds.
func Satisfied(ctx context.Context, cond Conditions, c Constraints) bool {
	if c.RequiresNetwork && !cond.NetworkAvailable(ctx) {
		return false
	}
	if c.RequiresBatteryNotLow && !cond.BatteryNotLow(ctx) {
		return false
	}
	return true
}

// DefaultBatteryThreshold is the capacity percentage below which a
// discharging battery counts as low.
const DefaultBatteryThreshold = 15

// SystemConditions probes the host.
type SystemConditions struct {
	// ProbeAddr is a host:port dialed to test connectivity. Empty means always online.
	ProbeAddr    string
	ProbeTimeout time.Duration

	// BatteryThreshold defaults to DefaultBatteryThreshold.
	BatteryThreshold int
	// PowerSupplyDir defaults to /sys/class/power_supply.
	PowerSupplyDir string
}

// NetworkAvailable dials ProbeAddr.
func (s SystemConditions) NetworkAvailable(ctx context.Context) bool {
	if s.ProbeAddr == "" {
		return true
	}
	timeout := s.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.ProbeAddr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// BatteryNotLow is true when no battery is present, any battery is charging
// or full, or every battery is at or above the threshold.
func (s SystemConditions) BatteryNotLow(context.Context) bool {
	dir := s.PowerSupplyDir
	if dir == "" {
		dir = "/sys/class/power_supply"
	}
	threshold := s.BatteryThreshold
	if threshold <= 0 {
		threshold = DefaultBatteryThreshold
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	for _, e := range entries {
		supply := filepath.Join(dir, e.Name())
		if readAttr(supply, "type") != "Battery" {
			continue
		}
		switch readAttr(supply, "status") {
		case "Charging", "Full":
			continue
		}
		capacity, err := strconv.Atoi(readAttr(supply, "capacity"))
		if err != nil {
			continue
		}
		if capacity < threshold {
			return false
		}
	}
	return true
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// StaticConditions reports fixed values.
type StaticConditions struct {
	Online     bool
	BatteryLow bool
}

func (s StaticConditions) NetworkAvailable(context.Context) bool { return s.Online }
func (s StaticConditions) BatteryNotLow(context.Context) bool    { return !s.BatteryLow }
