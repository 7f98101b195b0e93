package state

import (
	"log/slog"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type SiteStatus string

const (
	SiteOnline   SiteStatus = "online"
	SiteDegraded SiteStatus = "degraded"
	SiteOffline  SiteStatus = "offline"
)

// UnifiSite is one UniFi controller site with its health rollup.
type UnifiSite struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         SiteStatus `json:"status"`
	WANIP          string     `json:"wanIp,omitempty"`
	ISP            string     `json:"isp,omitempty"`
	Devices        int        `json:"devices"`
	DevicesOffline int        `json:"devicesOffline"`
	Clients        int        `json:"clients"`
	LastSeen       time.Time  `json:"lastSeen"`
}

type SitePatch struct {
	Name           *string     `json:"name"`
	Description    *string     `json:"description"`
	Status         *SiteStatus `json:"status"`
	WANIP          *string     `json:"wanIp"`
	ISP            *string     `json:"isp"`
	Devices        *int        `json:"devices"`
	DevicesOffline *int        `json:"devicesOffline"`
	Clients        *int        `json:"clients"`
	LastSeen       *time.Time  `json:"lastSeen"`
}

func (p SitePatch) apply(s UnifiSite) UnifiSite {
	set(&s.Name, p.Name)
	set(&s.Description, p.Description)
	set(&s.Status, p.Status)
	set(&s.WANIP, p.WANIP)
	set(&s.ISP, p.ISP)
	set(&s.Devices, p.Devices)
	set(&s.DevicesOffline, p.DevicesOffline)
	set(&s.Clients, p.Clients)
	set(&s.LastSeen, p.LastSeen)
	return s
}

type SiteFilters struct {
	Search string `json:"search"`
	Status string `json:"status"`
}

type SiteFiltersPatch struct {
	Search *string `json:"search"`
	Status *string `json:"status"`
}

func (p SiteFiltersPatch) apply(f SiteFilters) SiteFilters {
	set(&f.Search, p.Search)
	set(&f.Status, p.Status)
	return f
}

func (f SiteFilters) matches(s UnifiSite) bool {
	return store.MatchesSearch(f.Search, s.Name, s.Description, s.WANIP, s.ISP) &&
		store.MatchesEqual(f.Status, string(s.Status))
}

type NetworkState struct {
	Sites       []UnifiSite      `json:"sites"`
	Selected    *UnifiSite       `json:"selected"`
	Filters     SiteFilters      `json:"filters"`
	Pagination  store.Pagination `json:"pagination"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
	LastRefresh time.Time        `json:"lastRefresh"`
}

func (st NetworkState) Filtered() []UnifiSite {
	out := make([]UnifiSite, 0, len(st.Sites))
	for _, s := range st.Sites {
		if st.Filters.matches(s) {
			out = append(out, s)
		}
	}
	return out
}

func (st NetworkState) Page() []UnifiSite {
	return store.PageOf(st.Filtered(), st.Pagination)
}

func (st NetworkState) normalize() NetworkState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.Selected != nil {
		if s, ok := store.FindByID(st.Sites, st.Selected.ID, siteID); ok {
			st.Selected = &s
		} else {
			st.Selected = nil
		}
	}
	return st
}

func siteID(s UnifiSite) string { return s.ID }

type NetworkSummary struct {
	Sites    int `json:"sites"`
	Online   int `json:"online"`
	Degraded int `json:"degraded"`
	Offline  int `json:"offline"`
	Devices  int `json:"devices"`
	Clients  int `json:"clients"`
}

type networkPersisted struct {
	Sites       []UnifiSite `json:"sites"`
	LastRefresh time.Time   `json:"lastRefresh"`
}

type NetworkStore struct {
	s *store.Store[NetworkState]
}

func NewNetworkStore(storage kv.Storage, logger *slog.Logger) *NetworkStore {
	ns := &NetworkStore{s: store.New(NetworkState{Sites: []UnifiSite{}, Pagination: store.DefaultPagination()})}
	attach(ns.s, storage, KeyNetwork,
		func(st NetworkState) networkPersisted {
			return networkPersisted{Sites: st.Sites, LastRefresh: st.LastRefresh}
		},
		func(cur NetworkState, p networkPersisted) NetworkState {
			cur.Sites = store.Clone(p.Sites)
			cur.LastRefresh = p.LastRefresh
			return cur.normalize()
		},
		logger,
	)
	return ns
}

func (ns *NetworkStore) State() NetworkState { return ns.s.Get() }

func (ns *NetworkStore) Subscribe(fn store.Listener[NetworkState]) func() { return ns.s.Subscribe(fn) }

func (ns *NetworkStore) update(fn func(NetworkState) NetworkState) NetworkState {
	return mutate(ns.s, "network", func(st NetworkState) NetworkState { return fn(st).normalize() })
}

func (ns *NetworkStore) SetSites(sites []UnifiSite) {
	ns.update(func(st NetworkState) NetworkState {
		st.Sites = store.Unique(sites, siteID)
		return st
	})
}

// RefreshSites replaces the sites with a controller snapshot taken at.
func (ns *NetworkStore) RefreshSites(sites []UnifiSite, at time.Time) {
	ns.update(func(st NetworkState) NetworkState {
		st.Sites = store.Unique(sites, siteID)
		st.LastRefresh = at
		st.Loading = false
		st.Error = ""
		return st
	})
}

func (ns *NetworkStore) AddSite(s UnifiSite) bool {
	var added bool
	ns.update(func(st NetworkState) NetworkState {
		st.Sites, added = store.AppendUnique(st.Sites, s, siteID)
		return st
	})
	return added
}

func (ns *NetworkStore) UpdateSite(id string, patch SitePatch) {
	ns.update(func(st NetworkState) NetworkState {
		sites, updated, ok := store.UpdateByID(st.Sites, id, siteID, patch.apply)
		if !ok {
			return st
		}
		st.Sites = sites
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
}

func (ns *NetworkStore) RemoveSite(id string) {
	ns.update(func(st NetworkState) NetworkState {
		st.Sites = store.RemoveWhere(st.Sites, func(s UnifiSite) bool { return s.ID == id })
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
		return st
	})
}

func (ns *NetworkStore) SelectSite(id string) {
	ns.update(func(st NetworkState) NetworkState {
		st.Selected = nil
		if s, ok := store.FindByID(st.Sites, id, siteID); ok {
			st.Selected = &s
		}
		return st
	})
}

func (ns *NetworkStore) SetFilters(patch SiteFiltersPatch) {
	ns.update(func(st NetworkState) NetworkState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (ns *NetworkStore) ClearFilters() {
	ns.update(func(st NetworkState) NetworkState {
		st.Filters = SiteFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (ns *NetworkStore) SetPage(page int) {
	ns.update(func(st NetworkState) NetworkState {
		st.Pagination.Page = page
		return st
	})
}

func (ns *NetworkStore) SetLoading(loading bool) {
	ns.update(func(st NetworkState) NetworkState {
		st.Loading = loading
		return st
	})
}

func (ns *NetworkStore) SetError(msg string) {
	ns.update(func(st NetworkState) NetworkState {
		st.Error = msg
		st.Loading = false
		return st
	})
}

func (ns *NetworkStore) Summary() NetworkSummary {
	var sum NetworkSummary
	for _, s := range ns.s.Get().Sites {
		sum.Sites++
		sum.Devices += s.Devices
		sum.Clients += s.Clients
		switch s.Status {
		case SiteOnline:
			sum.Online++
		case SiteDegraded:
			sum.Degraded++
		case SiteOffline:
			sum.Offline++
		}
	}
	return sum
}
