package state

import (
	"log/slog"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
)

type Options struct {
	// Storage backs every persisted store. Nil keeps state in memory only.
	Storage     kv.Storage
	Logger      *slog.Logger
	Scanner     VulnerabilitySource
	ScanTimeout time.Duration
}

// App is the process-wide set of stores, built once and passed explicitly.
type App struct {
	Auth     *AuthStore
	Users    *UserStore
	Assets   *AssetStore
	Software *SoftwareStore
	Network  *NetworkStore
	Proxmox  *ProxmoxStore
	Patch    *PatchStore
	Admin    *AdminStore
	UI       *UIStore
}

func NewApp(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ui := NewUIStore(opts.Storage, logger)
	return &App{
		Auth:     NewAuthStore(opts.Storage, logger),
		Users:    NewUserStore(opts.Storage, logger),
		Assets:   NewAssetStore(opts.Storage, logger),
		Software: NewSoftwareStore(opts.Storage, logger),
		Network:  NewNetworkStore(opts.Storage, logger),
		Proxmox:  NewProxmoxStore(opts.Storage, logger),
		Patch: NewPatchStore(opts.Storage, PatchOptions{
			Source:  opts.Scanner,
			Timeout: opts.ScanTimeout,
			Notify:  func(n Notification) { ui.AddNotification(n) },
			Logger:  logger,
		}),
		Admin: NewAdminStore(opts.Storage, logger),
		UI:    ui,
	}
}

// Notify posts a notification to the UI store.
func (a *App) Notify(kind NotificationKind, title, message string) {
	a.UI.AddNotification(Notification{Kind: kind, Title: title, Message: message})
}
