package state

import (
	"log/slog"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type AssetStatus string

const (
	AssetActive      AssetStatus = "active"
	AssetInStorage   AssetStatus = "in_storage"
	AssetMaintenance AssetStatus = "maintenance"
	AssetRetired     AssetStatus = "retired"
)

type AssetType string

const (
	AssetLaptop  AssetType = "laptop"
	AssetDesktop AssetType = "desktop"
	AssetServer  AssetType = "server"
	AssetMobile  AssetType = "mobile"
	AssetPrinter AssetType = "printer"
	AssetNetwork AssetType = "network"
	AssetOther   AssetType = "other"
)

// Asset is a tracked piece of hardware. AssignedTo holds a DirectoryUser id.
type Asset struct {
	ID             string      `json:"id" toml:"id"`
	Name           string      `json:"name" toml:"name"`
	Type           AssetType   `json:"type" toml:"type"`
	Status         AssetStatus `json:"status" toml:"status"`
	SerialNumber   string      `json:"serialNumber,omitempty" toml:"serial_number"`
	Manufacturer   string      `json:"manufacturer,omitempty" toml:"manufacturer"`
	Model          string      `json:"model,omitempty" toml:"model"`
	AssignedTo     string      `json:"assignedTo,omitempty" toml:"assigned_to"`
	Location       string      `json:"location,omitempty" toml:"location"`
	PurchaseDate   time.Time   `json:"purchaseDate" toml:"purchase_date"`
	WarrantyExpiry time.Time   `json:"warrantyExpiry" toml:"warranty_expiry"`
	Notes          string      `json:"notes,omitempty" toml:"notes"`
}

type AssetPatch struct {
	Name           *string      `json:"name"`
	Type           *AssetType   `json:"type"`
	Status         *AssetStatus `json:"status"`
	SerialNumber   *string      `json:"serialNumber"`
	Manufacturer   *string      `json:"manufacturer"`
	Model          *string      `json:"model"`
	AssignedTo     *string      `json:"assignedTo"`
	Location       *string      `json:"location"`
	PurchaseDate   *time.Time   `json:"purchaseDate"`
	WarrantyExpiry *time.Time   `json:"warrantyExpiry"`
	Notes          *string      `json:"notes"`
}

func (p AssetPatch) apply(a Asset) Asset {
	set(&a.Name, p.Name)
	set(&a.Type, p.Type)
	set(&a.Status, p.Status)
	set(&a.SerialNumber, p.SerialNumber)
	set(&a.Manufacturer, p.Manufacturer)
	set(&a.Model, p.Model)
	set(&a.AssignedTo, p.AssignedTo)
	set(&a.Location, p.Location)
	set(&a.PurchaseDate, p.PurchaseDate)
	set(&a.WarrantyExpiry, p.WarrantyExpiry)
	set(&a.Notes, p.Notes)
	return a
}

type AssetFilters struct {
	Search   string `json:"search"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Location string `json:"location"`
}

type AssetFiltersPatch struct {
	Search   *string `json:"search"`
	Type     *string `json:"type"`
	Status   *string `json:"status"`
	Location *string `json:"location"`
}

func (p AssetFiltersPatch) apply(f AssetFilters) AssetFilters {
	set(&f.Search, p.Search)
	set(&f.Type, p.Type)
	set(&f.Status, p.Status)
	set(&f.Location, p.Location)
	return f
}

func (f AssetFilters) matches(a Asset) bool {
	return store.MatchesSearch(f.Search, a.Name, a.SerialNumber, a.Manufacturer, a.Model, a.AssignedTo) &&
		store.MatchesEqual(f.Type, string(a.Type)) &&
		store.MatchesEqual(f.Status, string(a.Status)) &&
		store.MatchesEqual(f.Location, a.Location)
}

type AssetState struct {
	Assets     []Asset          `json:"assets"`
	Selected   *Asset           `json:"selected"`
	Filters    AssetFilters     `json:"filters"`
	Pagination store.Pagination `json:"pagination"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
}

func (st AssetState) Filtered() []Asset {
	out := make([]Asset, 0, len(st.Assets))
	for _, a := range st.Assets {
		if st.Filters.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

func (st AssetState) Page() []Asset {
	return store.PageOf(st.Filtered(), st.Pagination)
}

func (st AssetState) normalize() AssetState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.Selected != nil {
		if a, ok := store.FindByID(st.Assets, st.Selected.ID, assetID); ok {
			st.Selected = &a
		} else {
			st.Selected = nil
		}
	}
	return st
}

func assetID(a Asset) string { return a.ID }

type AssetStats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	InStorage   int `json:"inStorage"`
	Maintenance int `json:"maintenance"`
	Retired     int `json:"retired"`
	Unassigned  int `json:"unassigned"`
}

type assetsPersisted struct {
	Assets   []Asset `json:"assets"`
	PageSize int     `json:"pageSize"`
}

type AssetStore struct {
	s *store.Store[AssetState]
}

func defaultAssetState() AssetState {
	return AssetState{Assets: []Asset{}, Pagination: store.DefaultPagination()}
}

func NewAssetStore(storage kv.Storage, logger *slog.Logger) *AssetStore {
	as := &AssetStore{s: store.New(defaultAssetState())}
	attach(as.s, storage, KeyAssets,
		func(st AssetState) assetsPersisted {
			return assetsPersisted{Assets: st.Assets, PageSize: st.Pagination.PageSize}
		},
		func(cur AssetState, p assetsPersisted) AssetState {
			cur.Assets = store.Clone(p.Assets)
			if p.PageSize > 0 {
				cur.Pagination.PageSize = p.PageSize
			}
			return cur.normalize()
		},
		logger,
	)
	return as
}

func (as *AssetStore) State() AssetState { return as.s.Get() }

func (as *AssetStore) Subscribe(fn store.Listener[AssetState]) func() { return as.s.Subscribe(fn) }

func (as *AssetStore) update(fn func(AssetState) AssetState) AssetState {
	return mutate(as.s, "assets", func(st AssetState) AssetState { return fn(st).normalize() })
}

func (as *AssetStore) SetAssets(assets []Asset) {
	as.update(func(st AssetState) AssetState {
		st.Assets = store.Unique(assets, assetID)
		return st
	})
}

// AddAsset is a no-op returning false when the id is taken.
func (as *AssetStore) AddAsset(a Asset) bool {
	var added bool
	as.update(func(st AssetState) AssetState {
		st.Assets, added = store.AppendUnique(st.Assets, a, assetID)
		return st
	})
	return added
}

func (as *AssetStore) UpdateAsset(id string, patch AssetPatch) {
	as.update(func(st AssetState) AssetState {
		assets, updated, ok := store.UpdateByID(st.Assets, id, assetID, patch.apply)
		if !ok {
			return st
		}
		st.Assets = assets
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
}

func (as *AssetStore) RemoveAsset(id string) {
	as.update(func(st AssetState) AssetState {
		st.Assets = store.RemoveWhere(st.Assets, func(a Asset) bool { return a.ID == id })
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
		return st
	})
}

func (as *AssetStore) SelectAsset(id string) {
	as.update(func(st AssetState) AssetState {
		st.Selected = nil
		if a, ok := store.FindByID(st.Assets, id, assetID); ok {
			st.Selected = &a
		}
		return st
	})
}

func (as *AssetStore) SetFilters(patch AssetFiltersPatch) {
	as.update(func(st AssetState) AssetState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (as *AssetStore) ClearFilters() {
	as.update(func(st AssetState) AssetState {
		st.Filters = AssetFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (as *AssetStore) SetPage(page int) {
	as.update(func(st AssetState) AssetState {
		st.Pagination.Page = page
		return st
	})
}

func (as *AssetStore) SetPageSize(size int) {
	as.update(func(st AssetState) AssetState {
		st.Pagination.PageSize = size
		st.Pagination.Page = 1
		return st
	})
}

func (as *AssetStore) SetLoading(loading bool) {
	as.update(func(st AssetState) AssetState {
		st.Loading = loading
		return st
	})
}

func (as *AssetStore) SetError(msg string) {
	as.update(func(st AssetState) AssetState {
		st.Error = msg
		st.Loading = false
		return st
	})
}

func (as *AssetStore) Get(id string) (Asset, bool) {
	return store.FindByID(as.s.Get().Assets, id, assetID)
}

func (as *AssetStore) Stats() AssetStats {
	var stats AssetStats
	for _, a := range as.s.Get().Assets {
		stats.Total++
		switch a.Status {
		case AssetActive:
			stats.Active++
		case AssetInStorage:
			stats.InStorage++
		case AssetMaintenance:
			stats.Maintenance++
		case AssetRetired:
			stats.Retired++
		}
		if a.AssignedTo == "" {
			stats.Unassigned++
		}
	}
	return stats
}

// WarrantyExpiringWithin lists non-retired assets whose warranty ends in
// (now, now+d].
func (as *AssetStore) WarrantyExpiringWithin(now time.Time, d time.Duration) []Asset {
	limit := now.Add(d)
	var out []Asset
	for _, a := range as.s.Get().Assets {
		if a.Status == AssetRetired || a.WarrantyExpiry.IsZero() {
			continue
		}
		if a.WarrantyExpiry.After(now) && !a.WarrantyExpiry.After(limit) {
			out = append(out, a)
		}
	}
	return out
}
