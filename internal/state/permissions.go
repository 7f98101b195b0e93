package state

import "strings"

// Page capabilities a permission map can grant.
const (
	CapDashboard   = "dashboard"
	CapUsers       = "users"
	CapAssets      = "assets"
	CapSoftware    = "software"
	CapNetwork     = "network"
	CapProxmox     = "proxmox"
	CapSecurity    = "security"
	CapOnboarding  = "onboarding"
	CapOffboarding = "offboarding"
	CapReports     = "reports"
	CapSettings    = "settings"
)

// AdminManagementPath is reserved for admin-tier roles.
const AdminManagementPath = "/admin-management"

type capabilityRule struct {
	prefix     string
	capability string
}

// Checked in order; the first matching prefix wins.
var capabilityRules = []capabilityRule{
	{prefix: "/dashboard", capability: CapDashboard},
	{prefix: "/users", capability: CapUsers},
	{prefix: "/assets", capability: CapAssets},
	{prefix: "/software", capability: CapSoftware},
	{prefix: "/network", capability: CapNetwork},
	{prefix: "/proxmox", capability: CapProxmox},
	{prefix: "/security", capability: CapSecurity},
	{prefix: "/patch", capability: CapSecurity},
	{prefix: "/onboarding", capability: CapOnboarding},
	{prefix: "/offboarding", capability: CapOffboarding},
	{prefix: "/reports", capability: CapReports},
	{prefix: "/settings", capability: CapSettings},
}

var standardFallbackPrefixes = []string{"/dashboard", "/assets", "/software", "/network"}

// NavigationPages lists the top-level pages in menu order.
var NavigationPages = []string{
	"/dashboard", "/users", "/assets", "/software", "/network", "/proxmox",
	"/security", "/onboarding", "/offboarding", "/reports", "/settings",
	AdminManagementPath,
}

type decision int

const (
	deferDecision decision = iota
	allowDecision
	denyDecision
)

// accessRule decides for (user, path) or defers to the next rule.
type accessRule func(u *User, path string) decision

var accessChain = []accessRule{
	requireAuthenticated,
	adminTierBypass,
	adminManagementGuard,
	permissionMapRule,
	legacyAllowListRule,
	standardFallbackRule,
}

// CanAccessPage reports whether u may open path. A nil user is
// unauthenticated. The result depends only on its inputs.
func CanAccessPage(u *User, path string) bool {
	path = normalizePagePath(path)
	for _, rule := range accessChain {
		switch rule(u, path) {
		case allowDecision:
			return true
		case denyDecision:
			return false
		}
	}
	return false
}

// AccessiblePages filters NavigationPages through CanAccessPage.
func AccessiblePages(u *User) []string {
	out := make([]string, 0, len(NavigationPages))
	for _, p := range NavigationPages {
		if CanAccessPage(u, p) {
			out = append(out, p)
		}
	}
	return out
}

// PageCapability maps a page path to the capability guarding it.
func PageCapability(path string) (string, bool) {
	path = normalizePagePath(path)
	if path == "/" {
		return CapDashboard, true
	}
	for _, r := range capabilityRules {
		if strings.HasPrefix(path, r.prefix) {
			return r.capability, true
		}
	}
	return "", false
}

func requireAuthenticated(u *User, _ string) decision {
	if u == nil {
		return denyDecision
	}
	return deferDecision
}

func adminTierBypass(u *User, _ string) decision {
	if u.Role.IsAdminTier() {
		return allowDecision
	}
	return deferDecision
}

// adminManagementGuard runs after the admin-tier bypass, so no map or
// allow-list entry can open the page for anyone else.
func adminManagementGuard(_ *User, path string) decision {
	if strings.HasPrefix(path, AdminManagementPath) {
		return denyDecision
	}
	return deferDecision
}

func permissionMapRule(u *User, path string) decision {
	if u.Permissions == nil {
		return deferDecision
	}
	capability, ok := PageCapability(path)
	if !ok || !u.Permissions[capability] {
		return denyDecision
	}
	return allowDecision
}

func legacyAllowListRule(u *User, path string) decision {
	if len(u.AllowedPages) == 0 {
		return deferDecision
	}
	for _, allowed := range u.AllowedPages {
		if allowed != "" && strings.HasPrefix(path, allowed) {
			return allowDecision
		}
	}
	return denyDecision
}

func standardFallbackRule(u *User, path string) decision {
	if u.Role != RoleUser {
		return denyDecision
	}
	if path == "/" {
		return allowDecision
	}
	for _, prefix := range standardFallbackPrefixes {
		if strings.HasPrefix(path, prefix) {
			return allowDecision
		}
	}
	return denyDecision
}

func normalizePagePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
