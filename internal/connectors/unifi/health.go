package unifi

import (
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/state"
)

// rollup folds the per-subsystem health of a site into one record. A WAN in
// error marks the site offline; any other unhealthy subsystem or a
// disconnected device marks it degraded. Subsystems reporting "unknown" are
// not configured on the site and are ignored.
func rollup(s site, at time.Time) state.UnifiSite {
	out := state.UnifiSite{
		ID:          s.ID,
		Name:        strings.TrimSpace(s.Desc),
		Description: strings.TrimSpace(s.Name),
		Status:      state.SiteOnline,
		LastSeen:    at,
	}
	if out.Name == "" {
		out.Name = out.Description
	}
	if len(s.Health) == 0 {
		out.Status = state.SiteOffline
		return out
	}

	degraded := false
	for _, h := range s.Health {
		status := strings.ToLower(strings.TrimSpace(h.Status))
		out.Devices += h.NumAdopted
		out.DevicesOffline += h.NumDisconnected

		switch strings.ToLower(h.Subsystem) {
		case "wan":
			out.WANIP = strings.TrimSpace(h.WANIP)
			out.ISP = strings.TrimSpace(h.ISPName)
			if status == "error" {
				out.Status = state.SiteOffline
			}
		case "wlan", "lan":
			out.Clients += h.NumUser
		}
		if status != subsystemOK && status != "unknown" && status != "" {
			degraded = true
		}
	}

	if out.Status == state.SiteOffline {
		return out
	}
	if degraded || out.DevicesOffline > 0 {
		out.Status = state.SiteDegraded
	}
	return out
}
