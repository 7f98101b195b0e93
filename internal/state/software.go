package state

import (
	"log/slog"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type SoftwareStatus string

const (
	SoftwareActive  SoftwareStatus = "active"
	SoftwareTrial   SoftwareStatus = "trial"
	SoftwareExpired SoftwareStatus = "expired"
	SoftwareRetired SoftwareStatus = "retired"
)

// Software is a licensed application. AssignedUserIDs are DirectoryUser ids;
// nothing removes them when a user is deleted.
type Software struct {
	ID              string         `json:"id" toml:"id"`
	Name            string         `json:"name" toml:"name"`
	Vendor          string         `json:"vendor,omitempty" toml:"vendor"`
	Category        string         `json:"category,omitempty" toml:"category"`
	Version         string         `json:"version,omitempty" toml:"version"`
	LatestVersion   string         `json:"latestVersion,omitempty" toml:"latest_version"`
	Status          SoftwareStatus `json:"status" toml:"status"`
	LicenseType     string         `json:"licenseType,omitempty" toml:"license_type"`
	TotalLicenses   int            `json:"totalLicenses" toml:"total_licenses"`
	AssignedUserIDs []string       `json:"assignedUserIds" toml:"assigned_user_ids"`
	CostPerLicense  float64        `json:"costPerLicense,omitempty" toml:"cost_per_license"`
	RenewalDate     time.Time      `json:"renewalDate" toml:"renewal_date"`
}

// AvailableLicenses never goes below zero.
func (sw Software) AvailableLicenses() int {
	n := sw.TotalLicenses - len(sw.AssignedUserIDs)
	if n < 0 {
		return 0
	}
	return n
}

// NeedsUpdate reports whether LatestVersion is a newer semantic version than
// Version. Unparseable versions never need an update.
func (sw Software) NeedsUpdate() bool {
	if sw.Version == "" || sw.LatestVersion == "" {
		return false
	}
	current, err := semver.NewVersion(sw.Version)
	if err != nil {
		return false
	}
	latest, err := semver.NewVersion(sw.LatestVersion)
	if err != nil {
		return false
	}
	return latest.GreaterThan(current)
}

type SoftwarePatch struct {
	Name           *string         `json:"name"`
	Vendor         *string         `json:"vendor"`
	Category       *string         `json:"category"`
	Version        *string         `json:"version"`
	LatestVersion  *string         `json:"latestVersion"`
	Status         *SoftwareStatus `json:"status"`
	LicenseType    *string         `json:"licenseType"`
	TotalLicenses  *int            `json:"totalLicenses"`
	CostPerLicense *float64        `json:"costPerLicense"`
	RenewalDate    *time.Time      `json:"renewalDate"`
}

func (p SoftwarePatch) apply(sw Software) Software {
	set(&sw.Name, p.Name)
	set(&sw.Vendor, p.Vendor)
	set(&sw.Category, p.Category)
	set(&sw.Version, p.Version)
	set(&sw.LatestVersion, p.LatestVersion)
	set(&sw.Status, p.Status)
	set(&sw.LicenseType, p.LicenseType)
	set(&sw.TotalLicenses, p.TotalLicenses)
	set(&sw.CostPerLicense, p.CostPerLicense)
	set(&sw.RenewalDate, p.RenewalDate)
	return sw
}

type SoftwareFilters struct {
	Search   string `json:"search"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Vendor   string `json:"vendor"`
}

type SoftwareFiltersPatch struct {
	Search   *string `json:"search"`
	Status   *string `json:"status"`
	Category *string `json:"category"`
	Vendor   *string `json:"vendor"`
}

func (p SoftwareFiltersPatch) apply(f SoftwareFilters) SoftwareFilters {
	set(&f.Search, p.Search)
	set(&f.Status, p.Status)
	set(&f.Category, p.Category)
	set(&f.Vendor, p.Vendor)
	return f
}

func (f SoftwareFilters) matches(sw Software) bool {
	return store.MatchesSearch(f.Search, sw.Name, sw.Vendor, sw.Category) &&
		store.MatchesEqual(f.Status, string(sw.Status)) &&
		store.MatchesEqual(f.Category, sw.Category) &&
		store.MatchesEqual(f.Vendor, sw.Vendor)
}

type SoftwareState struct {
	Software   []Software       `json:"software"`
	Selected   *Software        `json:"selected"`
	Filters    SoftwareFilters  `json:"filters"`
	Pagination store.Pagination `json:"pagination"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
}

func (st SoftwareState) Filtered() []Software {
	out := make([]Software, 0, len(st.Software))
	for _, sw := range st.Software {
		if st.Filters.matches(sw) {
			out = append(out, sw)
		}
	}
	return out
}

func (st SoftwareState) Page() []Software {
	return store.PageOf(st.Filtered(), st.Pagination)
}

func (st SoftwareState) normalize() SoftwareState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.Selected != nil {
		if sw, ok := store.FindByID(st.Software, st.Selected.ID, softwareID); ok {
			st.Selected = &sw
		} else {
			st.Selected = nil
		}
	}
	return st
}

func softwareID(sw Software) string { return sw.ID }

type softwarePersisted struct {
	Software []Software `json:"software"`
}

type SoftwareStore struct {
	s *store.Store[SoftwareState]
}

func NewSoftwareStore(storage kv.Storage, logger *slog.Logger) *SoftwareStore {
	ss := &SoftwareStore{s: store.New(SoftwareState{Software: []Software{}, Pagination: store.DefaultPagination()})}
	attach(ss.s, storage, KeySoftware,
		func(st SoftwareState) softwarePersisted { return softwarePersisted{Software: st.Software} },
		func(cur SoftwareState, p softwarePersisted) SoftwareState {
			cur.Software = store.Clone(p.Software)
			return cur.normalize()
		},
		logger,
	)
	return ss
}

func (ss *SoftwareStore) State() SoftwareState { return ss.s.Get() }

func (ss *SoftwareStore) Subscribe(fn store.Listener[SoftwareState]) func() { return ss.s.Subscribe(fn) }

func (ss *SoftwareStore) update(fn func(SoftwareState) SoftwareState) SoftwareState {
	return mutate(ss.s, "software", func(st SoftwareState) SoftwareState { return fn(st).normalize() })
}

func (ss *SoftwareStore) SetSoftware(items []Software) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Software = store.Unique(items, softwareID)
		return st
	})
}

func (ss *SoftwareStore) AddSoftware(sw Software) bool {
	sw.AssignedUserIDs = cloneStrings(sw.AssignedUserIDs)
	var added bool
	ss.update(func(st SoftwareState) SoftwareState {
		st.Software, added = store.AppendUnique(st.Software, sw, softwareID)
		return st
	})
	return added
}

func (ss *SoftwareStore) UpdateSoftware(id string, patch SoftwarePatch) {
	ss.modify(id, patch.apply)
}

func (ss *SoftwareStore) modify(id string, fn func(Software) Software) {
	ss.update(func(st SoftwareState) SoftwareState {
		items, updated, ok := store.UpdateByID(st.Software, id, softwareID, fn)
		if !ok {
			return st
		}
		st.Software = items
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
}

func (ss *SoftwareStore) RemoveSoftware(id string) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Software = store.RemoveWhere(st.Software, func(sw Software) bool { return sw.ID == id })
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
		return st
	})
}

// AssignUser adds userID to the software's assignees once.
func (ss *SoftwareStore) AssignUser(id, userID string) {
	if userID == "" {
		return
	}
	ss.modify(id, func(sw Software) Software {
		if slices.Contains(sw.AssignedUserIDs, userID) {
			return sw
		}
		sw.AssignedUserIDs = append(cloneStrings(sw.AssignedUserIDs), userID)
		return sw
	})
}

func (ss *SoftwareStore) UnassignUser(id, userID string) {
	ss.modify(id, func(sw Software) Software {
		sw.AssignedUserIDs = store.RemoveWhere(sw.AssignedUserIDs, func(u string) bool { return u == userID })
		return sw
	})
}

func (ss *SoftwareStore) SelectSoftware(id string) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Selected = nil
		if sw, ok := store.FindByID(st.Software, id, softwareID); ok {
			st.Selected = &sw
		}
		return st
	})
}

func (ss *SoftwareStore) SetFilters(patch SoftwareFiltersPatch) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (ss *SoftwareStore) ClearFilters() {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Filters = SoftwareFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (ss *SoftwareStore) SetPage(page int) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Pagination.Page = page
		return st
	})
}

func (ss *SoftwareStore) SetPageSize(size int) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Pagination.PageSize = size
		st.Pagination.Page = 1
		return st
	})
}

func (ss *SoftwareStore) SetLoading(loading bool) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Loading = loading
		return st
	})
}

func (ss *SoftwareStore) SetError(msg string) {
	ss.update(func(st SoftwareState) SoftwareState {
		st.Error = msg
		st.Loading = false
		return st
	})
}

func (ss *SoftwareStore) Get(id string) (Software, bool) {
	return store.FindByID(ss.s.Get().Software, id, softwareID)
}

// AssignedTo lists software assigned to userID.
func (ss *SoftwareStore) AssignedTo(userID string) []Software {
	var out []Software
	for _, sw := range ss.s.Get().Software {
		if slices.Contains(sw.AssignedUserIDs, userID) {
			out = append(out, sw)
		}
	}
	return out
}

func (ss *SoftwareStore) Outdated() []Software {
	var out []Software
	for _, sw := range ss.s.Get().Software {
		if sw.NeedsUpdate() {
			out = append(out, sw)
		}
	}
	return out
}

// ExpiringWithin lists active or trial software renewing in (now, now+d].
func (ss *SoftwareStore) ExpiringWithin(now time.Time, d time.Duration) []Software {
	limit := now.Add(d)
	var out []Software
	for _, sw := range ss.s.Get().Software {
		if sw.RenewalDate.IsZero() || (sw.Status != SoftwareActive && sw.Status != SoftwareTrial) {
			continue
		}
		if sw.RenewalDate.After(now) && !sw.RenewalDate.After(limit) {
			out = append(out, sw)
		}
	}
	return out
}
