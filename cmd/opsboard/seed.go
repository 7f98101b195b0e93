package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/spf13/cobra"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:         "seed",
	Short:       "Load assets, software, Proxmox inventory and admins from a TOML file.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context(), seedFile)
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.toml", "Path to the seed file.")
}

// seedAdmin is an admin record with a plaintext password that is hashed on
// load.
type seedAdmin struct {
	state.DashboardAdmin
	Password string `toml:"password"`
}

type seedData struct {
	Assets       []state.Asset       `toml:"assets"`
	Software     []state.Software    `toml:"software"`
	ProxmoxNodes []state.ProxmoxNode `toml:"proxmox_nodes"`
	ProxmoxVMs   []state.ProxmoxVM   `toml:"proxmox_vms"`
	Admins       []seedAdmin         `toml:"admins"`
}

// seedResult counts the records added per collection. Records whose id is
// already present are skipped, so seeding twice is harmless.
type seedResult struct {
	Assets, Software, Nodes, VMs, Admins int
}

func runSeed(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := loadSeed(path)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := applySeed(rt.app, data)
	if err != nil {
		return err
	}
	slog.Info("seed applied",
		"file", path,
		"assets", res.Assets,
		"software", res.Software,
		"proxmox_nodes", res.Nodes,
		"proxmox_vms", res.VMs,
		"admins", res.Admins,
	)
	return nil
}

func loadSeed(path string) (seedData, error) {
	var data seedData
	md, err := toml.DecodeFile(path, &data)
	if err != nil {
		return seedData{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return seedData{}, fmt.Errorf("seed file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return data, nil
}

func seedID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

func idSet[T any](items []T, id func(T) string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[id(it)] = true
	}
	return out
}

func applySeed(app *state.App, data seedData) (seedResult, error) {
	var res seedResult

	// Admins are validated first so a bad password leaves the stores untouched.
	admins := make([]state.DashboardAdmin, 0, len(data.Admins))
	for i, sa := range data.Admins {
		a, err := seedAdminRecord(sa)
		if err != nil {
			return seedResult{}, fmt.Errorf("admins[%d]: %w", i, err)
		}
		admins = append(admins, a)
	}

	existing := idSet(app.Assets.State().Assets, func(a state.Asset) string { return a.ID })
	for _, a := range data.Assets {
		a.ID = seedID(a.ID)
		if existing[a.ID] {
			continue
		}
		if a.Status == "" {
			a.Status = state.AssetActive
		}
		app.Assets.AddAsset(a)
		existing[a.ID] = true
		res.Assets++
	}

	existing = idSet(app.Software.State().Software, func(s state.Software) string { return s.ID })
	for _, sw := range data.Software {
		sw.ID = seedID(sw.ID)
		if existing[sw.ID] {
			continue
		}
		if sw.Status == "" {
			sw.Status = state.SoftwareActive
		}
		app.Software.AddSoftware(sw)
		existing[sw.ID] = true
		res.Software++
	}

	px := app.Proxmox.State()
	existing = idSet(px.Nodes, func(n state.ProxmoxNode) string { return n.ID })
	for _, n := range data.ProxmoxNodes {
		n.ID = seedID(n.ID)
		if existing[n.ID] {
			continue
		}
		app.Proxmox.AddNode(n)
		existing[n.ID] = true
		res.Nodes++
	}
	existing = idSet(px.VMs, func(vm state.ProxmoxVM) string { return vm.ID })
	for _, vm := range data.ProxmoxVMs {
		vm.ID = seedID(vm.ID)
		if existing[vm.ID] {
			continue
		}
		app.Proxmox.AddVM(vm)
		existing[vm.ID] = true
		res.VMs++
	}

	for _, a := range admins {
		if _, ok := app.Admin.Get(a.ID); ok {
			continue
		}
		if _, ok := app.Admin.FindByEmail(a.Email); ok {
			continue
		}
		app.Admin.AddAdmin(a)
		res.Admins++
	}
	return res, nil
}

func seedAdminRecord(sa seedAdmin) (state.DashboardAdmin, error) {
	a := sa.DashboardAdmin
	a.ID = seedID(a.ID)
	a.Email = auth.NormalizeEmail(a.Email)
	if a.Email == "" {
		return state.DashboardAdmin{}, errors.New("email is required")
	}
	if a.Role == "" {
		a.Role = state.RoleUser
	}
	role, ok := state.ParseRole(string(a.Role))
	if !ok {
		return state.DashboardAdmin{}, fmt.Errorf("invalid role %q", a.Role)
	}
	a.Role = role
	if a.Status == "" {
		a.Status = state.AdminActive
	}
	if sa.Password != "" {
		hash, err := auth.HashPassword(sa.Password)
		if err != nil {
			return state.DashboardAdmin{}, err
		}
		a.PasswordHash = hash
	}
	return a, nil
}
