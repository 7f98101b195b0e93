package state

import (
	"log/slog"
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type AdminStatus string

const (
	AdminActive   AdminStatus = "active"
	AdminDisabled AdminStatus = "disabled"
)

// DashboardAdmin is an account allowed to sign in to the dashboard.
type DashboardAdmin struct {
	ID           string          `json:"id" toml:"id"`
	Email        string          `json:"email" toml:"email"`
	DisplayName  string          `json:"displayName" toml:"display_name"`
	Role         Role            `json:"role" toml:"role"`
	Status       AdminStatus     `json:"status" toml:"status"`
	Permissions  map[string]bool `json:"permissions,omitempty" toml:"permissions"`
	AllowedPages []string        `json:"allowedPages,omitempty" toml:"allowed_pages"`
	PasswordHash string          `json:"-" toml:"-"`
	LastLogin    time.Time       `json:"lastLogin" toml:"-"`
}

// ToUser builds the session identity for a.
func (a DashboardAdmin) ToUser() User {
	return User{
		ID:           a.ID,
		Email:        a.Email,
		DisplayName:  a.DisplayName,
		Role:         a.Role,
		Permissions:  cloneMap(a.Permissions),
		AllowedPages: cloneStrings(a.AllowedPages),
	}
}

type AdminPatch struct {
	Email        *string          `json:"email"`
	DisplayName  *string          `json:"displayName"`
	Role         *Role            `json:"role"`
	Status       *AdminStatus     `json:"status"`
	Permissions  *map[string]bool `json:"permissions"`
	AllowedPages *[]string        `json:"allowedPages"`
	PasswordHash *string          `json:"-"`
}

func (p AdminPatch) apply(a DashboardAdmin) DashboardAdmin {
	set(&a.Email, p.Email)
	set(&a.DisplayName, p.DisplayName)
	if p.Role != nil && p.Role.Valid() {
		a.Role = *p.Role
	}
	set(&a.Status, p.Status)
	if p.Permissions != nil {
		a.Permissions = cloneMap(*p.Permissions)
	}
	if p.AllowedPages != nil {
		a.AllowedPages = cloneStrings(*p.AllowedPages)
	}
	set(&a.PasswordHash, p.PasswordHash)
	return a
}

// GroupMapping binds a role to an external directory group.
type GroupMapping struct {
	Role      Role   `json:"role"`
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
	AutoSync  bool   `json:"autoSync"`
}

type GroupMappingPatch struct {
	GroupID   *string `json:"groupId"`
	GroupName *string `json:"groupName"`
	AutoSync  *bool   `json:"autoSync"`
}

func (p GroupMappingPatch) apply(m GroupMapping) GroupMapping {
	set(&m.GroupID, p.GroupID)
	set(&m.GroupName, p.GroupName)
	set(&m.AutoSync, p.AutoSync)
	return m
}

func defaultGroupMappings() []GroupMapping {
	out := make([]GroupMapping, 0, len(Roles))
	for _, r := range Roles {
		out = append(out, GroupMapping{Role: r})
	}
	return out
}

// normalizeGroupMappings keeps exactly one mapping per role, in Roles order.
func normalizeGroupMappings(in []GroupMapping) []GroupMapping {
	out := defaultGroupMappings()
	seen := make(map[Role]bool, len(Roles))
	for _, m := range in {
		if seen[m.Role] {
			continue
		}
		for i := range out {
			if out[i].Role == m.Role {
				out[i] = m
				seen[m.Role] = true
				break
			}
		}
	}
	return out
}

type AdminFilters struct {
	Search string `json:"search"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type AdminFiltersPatch struct {
	Search *string `json:"search"`
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

func (p AdminFiltersPatch) apply(f AdminFilters) AdminFilters {
	set(&f.Search, p.Search)
	set(&f.Role, p.Role)
	set(&f.Status, p.Status)
	return f
}

func (f AdminFilters) matches(a DashboardAdmin) bool {
	return store.MatchesSearch(f.Search, a.Email, a.DisplayName) &&
		store.MatchesEqual(f.Role, string(a.Role)) &&
		store.MatchesEqual(f.Status, string(a.Status))
}

type AdminState struct {
	Admins        []DashboardAdmin `json:"admins"`
	Selected      *DashboardAdmin  `json:"selected"`
	Filters       AdminFilters     `json:"filters"`
	Pagination    store.Pagination `json:"pagination"`
	GroupMappings []GroupMapping   `json:"groupMappings"`
	Loading       bool             `json:"loading"`
	Error         string           `json:"error,omitempty"`
}

func (st AdminState) Filtered() []DashboardAdmin {
	out := make([]DashboardAdmin, 0, len(st.Admins))
	for _, a := range st.Admins {
		if st.Filters.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

func (st AdminState) Page() []DashboardAdmin {
	return store.PageOf(st.Filtered(), st.Pagination)
}

func (st AdminState) normalize() AdminState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.Selected != nil {
		if a, ok := store.FindByID(st.Admins, st.Selected.ID, adminID); ok {
			st.Selected = &a
		} else {
			st.Selected = nil
		}
	}
	return st
}

func adminID(a DashboardAdmin) string { return a.ID }

// storedAdmin adds the password hash, which DashboardAdmin never encodes.
type storedAdmin struct {
	DashboardAdmin
	PasswordHash string `json:"passwordHash,omitempty"`
}

type adminPersisted struct {
	Admins        []storedAdmin  `json:"admins"`
	GroupMappings []GroupMapping `json:"groupMappings"`
}

type AdminStore struct {
	s *store.Store[AdminState]
}

func NewAdminStore(storage kv.Storage, logger *slog.Logger) *AdminStore {
	as := &AdminStore{s: store.New(AdminState{
		Admins:        []DashboardAdmin{},
		Pagination:    store.DefaultPagination(),
		GroupMappings: defaultGroupMappings(),
	})}
	attach(as.s, storage, KeyAdmin,
		func(st AdminState) adminPersisted {
			admins := make([]storedAdmin, 0, len(st.Admins))
			for _, a := range st.Admins {
				admins = append(admins, storedAdmin{DashboardAdmin: a, PasswordHash: a.PasswordHash})
			}
			return adminPersisted{Admins: admins, GroupMappings: st.GroupMappings}
		},
		func(cur AdminState, p adminPersisted) AdminState {
			admins := make([]DashboardAdmin, 0, len(p.Admins))
			for _, sa := range p.Admins {
				a := sa.DashboardAdmin
				a.PasswordHash = sa.PasswordHash
				admins = append(admins, a)
			}
			cur.Admins = admins
			cur.GroupMappings = normalizeGroupMappings(p.GroupMappings)
			return cur.normalize()
		},
		logger,
	)
	return as
}

func (as *AdminStore) State() AdminState { return as.s.Get() }

func (as *AdminStore) Subscribe(fn store.Listener[AdminState]) func() { return as.s.Subscribe(fn) }

func (as *AdminStore) update(fn func(AdminState) AdminState) AdminState {
	return mutate(as.s, "admin", func(st AdminState) AdminState { return fn(st).normalize() })
}

func (as *AdminStore) SetAdmins(admins []DashboardAdmin) {
	as.update(func(st AdminState) AdminState {
		st.Admins = store.Unique(admins, adminID)
		return st
	})
}

func (as *AdminStore) AddAdmin(a DashboardAdmin) bool {
	var added bool
	as.update(func(st AdminState) AdminState {
		st.Admins, added = store.AppendUnique(st.Admins, a, adminID)
		return st
	})
	return added
}

func (as *AdminStore) UpdateAdmin(id string, patch AdminPatch) {
	as.update(func(st AdminState) AdminState {
		admins, updated, ok := store.UpdateByID(st.Admins, id, adminID, patch.apply)
		if !ok {
			return st
		}
		st.Admins = admins
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
}

// RecordLogin stamps the admin's last login time.
func (as *AdminStore) RecordLogin(id string, at time.Time) {
	as.update(func(st AdminState) AdminState {
		admins, updated, ok := store.UpdateByID(st.Admins, id, adminID, func(a DashboardAdmin) DashboardAdmin {
			a.LastLogin = at
			return a
		})
		if !ok {
			return st
		}
		st.Admins = admins
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
}

func (as *AdminStore) RemoveAdmin(id string) {
	as.update(func(st AdminState) AdminState {
		st.Admins = store.RemoveWhere(st.Admins, func(a DashboardAdmin) bool { return a.ID == id })
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
		return st
	})
}

func (as *AdminStore) SelectAdmin(id string) {
	as.update(func(st AdminState) AdminState {
		st.Selected = nil
		if a, ok := store.FindByID(st.Admins, id, adminID); ok {
			st.Selected = &a
		}
		return st
	})
}

func (as *AdminStore) SetFilters(patch AdminFiltersPatch) {
	as.update(func(st AdminState) AdminState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (as *AdminStore) ClearFilters() {
	as.update(func(st AdminState) AdminState {
		st.Filters = AdminFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (as *AdminStore) SetPage(page int) {
	as.update(func(st AdminState) AdminState {
		st.Pagination.Page = page
		return st
	})
}

func (as *AdminStore) SetPageSize(size int) {
	as.update(func(st AdminState) AdminState {
		st.Pagination.PageSize = size
		st.Pagination.Page = 1
		return st
	})
}

func (as *AdminStore) SetLoading(loading bool) {
	as.update(func(st AdminState) AdminState {
		st.Loading = loading
		return st
	})
}

func (as *AdminStore) SetError(msg string) {
	as.update(func(st AdminState) AdminState {
		st.Error = msg
		st.Loading = false
		return st
	})
}

// UpdateGroupMapping merges patch into the mapping for role. Unknown roles
// are ignored.
func (as *AdminStore) UpdateGroupMapping(role Role, patch GroupMappingPatch) {
	as.update(func(st AdminState) AdminState {
		for i, m := range st.GroupMappings {
			if m.Role != role {
				continue
			}
			mappings := store.Clone(st.GroupMappings)
			mappings[i] = patch.apply(m)
			st.GroupMappings = mappings
			break
		}
		return st
	})
}

func (as *AdminStore) GroupMapping(role Role) (GroupMapping, bool) {
	for _, m := range as.s.Get().GroupMappings {
		if m.Role == role {
			return m, true
		}
	}
	return GroupMapping{}, false
}

// ResolveRole returns the highest-tier role whose auto-synced group appears
// in groups. Groups match a mapping by id, or by name ignoring case.
func (as *AdminStore) ResolveRole(groups []string) (Role, bool) {
	mappings := as.s.Get().GroupMappings
	for _, r := range Roles {
		for _, m := range mappings {
			if m.Role != r || !m.AutoSync || (m.GroupID == "" && m.GroupName == "") {
				continue
			}
			for _, g := range groups {
				g = strings.TrimSpace(g)
				if g == "" {
					continue
				}
				if g == m.GroupID || (m.GroupName != "" && strings.EqualFold(g, m.GroupName)) {
					return r, true
				}
			}
		}
	}
	return "", false
}

func (as *AdminStore) Get(id string) (DashboardAdmin, bool) {
	return store.FindByID(as.s.Get().Admins, id, adminID)
}

// FindByEmail matches email case-insensitively.
func (as *AdminStore) FindByEmail(email string) (DashboardAdmin, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return DashboardAdmin{}, false
	}
	for _, a := range as.s.Get().Admins {
		if strings.EqualFold(a.Email, email) {
			return a, true
		}
	}
	return DashboardAdmin{}, false
}
