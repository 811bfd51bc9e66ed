// Wi-Fi gate for network-bound pipeline stages
package services

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/charmbracelet/log"
)

// airportBin is Apple's private Wi-Fi status tool; there is no public
// equivalent that reports the SSID without elevated entitlements.
const airportBin = "/System/Library/PrivateFrameworks/Apple80211.framework/Versions/Current/Resources/airport"

// WifiGate gates the network-bound pipeline stages on the configured SSID.
// An empty SSID leaves the gate permanently open.
type WifiGate struct {
	ssid   string
	logger *log.Logger

	// output runs a command and returns stdout; swapped out in tests.
	output func(ctx context.Context, name string, args ...string) (string, error)
}

func NewWifiGate(cfg shared.NetworkConfig, logger *log.Logger) *WifiGate {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	g := &WifiGate{ssid: cfg.SSID, logger: logger}
	g.output = runOutput
	return g
}

// Connected reports whether the machine is on the configured network. The
// check never hard-fails the caller: an undetectable SSID reads as not
// connected, and the loops simply wait for the next tick.
func (g *WifiGate) Connected(ctx context.Context) (bool, error) {
	if g.ssid == "" {
		return true, nil
	}

	current := g.currentSSID(ctx)
	if current == "" {
		g.logger.Debug("no wifi network detected")
		return false, nil
	}
	return current == g.ssid, nil
}

func (g *WifiGate) currentSSID(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		return g.ssidDarwin(ctx)
	case "linux":
		return g.ssidLinux(ctx)
	default:
		return ""
	}
}

// ssidDarwin parses `airport -I`, whose output is "  SSID: <name>" among
// other indented fields.
func (g *WifiGate) ssidDarwin(ctx context.Context) string {
	out, err := g.output(ctx, airportBin, "-I")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		// BSSID lines also contain "SSID:"; only the exact prefix counts.
		if after, found := strings.CutPrefix(line, "SSID:"); found {
			return strings.TrimSpace(after)
		}
	}
	return ""
}

// ssidLinux asks NetworkManager first and falls back to iwgetid on systems
// without it. nmcli terse output is "yes:<ssid>" for the active network.
func (g *WifiGate) ssidLinux(ctx context.Context) string {
	if out, err := g.output(ctx, "nmcli", "-t", "-f", "active,ssid", "dev", "wifi"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if after, found := strings.CutPrefix(line, "yes:"); found {
				return after
			}
		}
	}

	if out, err := g.output(ctx, "iwgetid", "-r"); err == nil {
		return strings.TrimSpace(out)
	}
	return ""
}

func runOutput(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}
