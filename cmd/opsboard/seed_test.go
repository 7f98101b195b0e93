package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/logging"
	"github.com/opsboard/opsboard/internal/state"
)

const seedFixture = `
[[assets]]
id = "lap-1"
name = "Design laptop"
type = "laptop"
serial_number = "C02XK"
warranty_expiry = 2027-01-31T00:00:00Z

[[assets]]
name = "Spare monitor"
type = "other"
status = "in_storage"

[[software]]
id = "sw-1"
name = "Editor"
version = "1.2.0"
latest_version = "1.3.0"
total_licenses = 5

[[proxmox_nodes]]
id = "pve-1"
name = "pve-a"
status = "online"
cpu_cores = 32

[[proxmox_vms]]
id = "vm-100"
vmid = 100
name = "gitlab"
node_id = "pve-1"
status = "running"

[[admins]]
id = "adm-1"
email = " Root@Example.com "
display_name = "Root"
role = "super_admin"
password = "correct-horse-battery"
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestApplySeed(t *testing.T) {
	t.Parallel()

	data, err := loadSeed(writeSeed(t, seedFixture))
	if err != nil {
		t.Fatalf("loadSeed() error = %v", err)
	}
	app := state.NewApp(state.Options{Logger: logging.Discard()})

	res, err := applySeed(app, data)
	if err != nil {
		t.Fatalf("applySeed() error = %v", err)
	}
	if res != (seedResult{Assets: 2, Software: 1, Nodes: 1, VMs: 1, Admins: 1}) {
		t.Fatalf("applySeed() = %+v", res)
	}

	assets := app.Assets.State().Assets
	if assets[0].Status != state.AssetActive {
		t.Fatalf("default asset status = %q, want %q", assets[0].Status, state.AssetActive)
	}
	if assets[1].ID == "" {
		t.Fatal("asset without id was not assigned one")
	}
	if assets[0].WarrantyExpiry.Year() != 2027 {
		t.Fatalf("WarrantyExpiry = %v, want 2027", assets[0].WarrantyExpiry)
	}

	admin, ok := app.Admin.FindByEmail("root@example.com")
	if !ok {
		t.Fatal("seeded admin not found by normalized email")
	}
	if admin.Status != state.AdminActive || admin.Role != state.RoleSuperAdmin {
		t.Fatalf("admin = %+v, want active super_admin", admin)
	}
	if match, err := auth.ComparePassword("correct-horse-battery", admin.PasswordHash); err != nil || !match {
		t.Fatalf("ComparePassword() = %v, %v, want true", match, err)
	}

	again, err := applySeed(app, data)
	if err != nil {
		t.Fatalf("second applySeed() error = %v", err)
	}
	// Only the asset without an id is new on the second pass.
	if again != (seedResult{Assets: 1}) {
		t.Fatalf("second applySeed() = %+v, want only the unnamed asset", again)
	}
}

func TestApplySeedRejectsWeakAdminPassword(t *testing.T) {
	t.Parallel()

	data := seedData{
		Assets: []state.Asset{{ID: "a1", Name: "Laptop"}},
		Admins: []seedAdmin{{DashboardAdmin: state.DashboardAdmin{Email: "x@example.com"}, Password: "short"}},
	}
	app := state.NewApp(state.Options{Logger: logging.Discard()})
	if _, err := applySeed(app, data); err == nil || !strings.HasPrefix(err.Error(), "admins[0]") {
		t.Fatalf("applySeed() error = %v, want admins[0] error", err)
	}
	if n := len(app.Assets.State().Assets); n != 0 {
		t.Fatalf("assets after failed seed = %d, want 0", n)
	}
}

func TestLoadSeedRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := loadSeed(writeSeed(t, "[[assets]]\nname = \"x\"\ncolour = \"red\"\n"))
	if err == nil || !strings.Contains(err.Error(), "assets.colour") {
		t.Fatalf("loadSeed() error = %v, want unknown key assets.colour", err)
	}
}
