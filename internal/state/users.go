package state

import (
	"log/slog"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
	UserPending  UserStatus = "pending"
)

// Directory sources.
const (
	SourceM365            = "m365"
	SourceGoogleWorkspace = "google_workspace"
	SourceManual          = "manual"
)

// DirectoryUser is an account from Microsoft 365, Google Workspace or
// entered by hand.
type DirectoryUser struct {
	ID                string     `json:"id"`
	DisplayName       string     `json:"displayName"`
	Email             string     `json:"email"`
	UserPrincipalName string     `json:"userPrincipalName,omitempty"`
	Department        string     `json:"department,omitempty"`
	JobTitle          string     `json:"jobTitle,omitempty"`
	Status            UserStatus `json:"status"`
	Source            string     `json:"source"`
	Licenses          []string   `json:"licenses,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type UserPatch struct {
	DisplayName       *string     `json:"displayName"`
	Email             *string     `json:"email"`
	UserPrincipalName *string     `json:"userPrincipalName"`
	Department        *string     `json:"department"`
	JobTitle          *string     `json:"jobTitle"`
	Status            *UserStatus `json:"status"`
	Licenses          *[]string   `json:"licenses"`
}

func (p UserPatch) apply(u DirectoryUser) DirectoryUser {
	set(&u.DisplayName, p.DisplayName)
	set(&u.Email, p.Email)
	set(&u.UserPrincipalName, p.UserPrincipalName)
	set(&u.Department, p.Department)
	set(&u.JobTitle, p.JobTitle)
	set(&u.Status, p.Status)
	if p.Licenses != nil {
		u.Licenses = cloneStrings(*p.Licenses)
	}
	return u
}

type UserFilters struct {
	Search     string `json:"search"`
	Status     string `json:"status"`
	Department string `json:"department"`
	Source     string `json:"source"`
}

type UserFiltersPatch struct {
	Search     *string `json:"search"`
	Status     *string `json:"status"`
	Department *string `json:"department"`
	Source     *string `json:"source"`
}

func (p UserFiltersPatch) apply(f UserFilters) UserFilters {
	set(&f.Search, p.Search)
	set(&f.Status, p.Status)
	set(&f.Department, p.Department)
	set(&f.Source, p.Source)
	return f
}

func (f UserFilters) matches(u DirectoryUser) bool {
	return store.MatchesSearch(f.Search, u.DisplayName, u.Email, u.UserPrincipalName, u.JobTitle) &&
		store.MatchesEqual(f.Status, string(u.Status)) &&
		store.MatchesEqual(f.Department, u.Department) &&
		store.MatchesEqual(f.Source, u.Source)
}

type UserState struct {
	Users      []DirectoryUser  `json:"users"`
	Selected   *DirectoryUser   `json:"selected"`
	Filters    UserFilters      `json:"filters"`
	Pagination store.Pagination `json:"pagination"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
	LastSync   time.Time        `json:"lastSync"`
}

// Filtered returns the users matching the current filters.
func (st UserState) Filtered() []DirectoryUser {
	out := make([]DirectoryUser, 0, len(st.Users))
	for _, u := range st.Users {
		if st.Filters.matches(u) {
			out = append(out, u)
		}
	}
	return out
}

// Page returns the current page of filtered users.
func (st UserState) Page() []DirectoryUser {
	return store.PageOf(st.Filtered(), st.Pagination)
}

func (st UserState) normalize() UserState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.Selected != nil {
		if u, ok := store.FindByID(st.Users, st.Selected.ID, userID); ok {
			st.Selected = &u
		} else {
			st.Selected = nil
		}
	}
	return st
}

func userID(u DirectoryUser) string { return u.ID }

type UserStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Disabled   int `json:"disabled"`
	Pending    int `json:"pending"`
	Unlicensed int `json:"unlicensed"`
}

type usersPersisted struct {
	Users    []DirectoryUser `json:"users"`
	LastSync time.Time       `json:"lastSync"`
}

type UserStore struct {
	s *store.Store[UserState]
}

func defaultUserState() UserState {
	return UserState{Users: []DirectoryUser{}, Pagination: store.DefaultPagination()}
}

func NewUserStore(storage kv.Storage, logger *slog.Logger) *UserStore {
	us := &UserStore{s: store.New(defaultUserState())}
	attach(us.s, storage, KeyUsers,
		func(st UserState) usersPersisted { return usersPersisted{Users: st.Users, LastSync: st.LastSync} },
		func(cur UserState, p usersPersisted) UserState {
			cur.Users = store.Clone(p.Users)
			cur.LastSync = p.LastSync
			return cur.normalize()
		},
		logger,
	)
	return us
}

func (us *UserStore) State() UserState { return us.s.Get() }

func (us *UserStore) Subscribe(fn store.Listener[UserState]) func() { return us.s.Subscribe(fn) }

func (us *UserStore) update(fn func(UserState) UserState) UserState {
	return mutate(us.s, "users", func(st UserState) UserState { return fn(st).normalize() })
}

func (us *UserStore) SetUsers(users []DirectoryUser) {
	us.update(func(st UserState) UserState {
		st.Users = store.Unique(users, userID)
		return st
	})
}

// ReplaceSource swaps every user of source for users, keeping other sources.
func (us *UserStore) ReplaceSource(source string, users []DirectoryUser, syncedAt time.Time) {
	us.update(func(st UserState) UserState {
		kept := store.RemoveWhere(st.Users, func(u DirectoryUser) bool { return u.Source == source })
		for _, u := range users {
			u.Source = source
			kept = append(kept, u)
		}
		st.Users = store.Unique(kept, userID)
		st.LastSync = syncedAt
		return st
	})
}

func (us *UserStore) AddUser(u DirectoryUser) bool {
	var added bool
	us.update(func(st UserState) UserState {
		st.Users, added = store.AppendUnique(st.Users, u, userID)
		return st
	})
	return added
}

func (us *UserStore) UpdateUser(id string, patch UserPatch) {
	us.update(func(st UserState) UserState {
		users, updated, ok := store.UpdateByID(st.Users, id, userID, patch.apply)
		if !ok {
			return st
		}
		st.Users = users
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
}

func (us *UserStore) RemoveUser(id string) {
	us.update(func(st UserState) UserState {
		st.Users = store.RemoveWhere(st.Users, func(u DirectoryUser) bool { return u.ID == id })
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = nil
		}
		return st
	})
}

// SelectUser selects id, or clears the selection when id is empty or unknown.
func (us *UserStore) SelectUser(id string) {
	us.update(func(st UserState) UserState {
		st.Selected = nil
		if u, ok := store.FindByID(st.Users, id, userID); ok {
			st.Selected = &u
		}
		return st
	})
}

func (us *UserStore) SetFilters(patch UserFiltersPatch) {
	us.update(func(st UserState) UserState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (us *UserStore) ClearFilters() {
	us.update(func(st UserState) UserState {
		st.Filters = UserFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (us *UserStore) SetPage(page int) {
	us.update(func(st UserState) UserState {
		st.Pagination.Page = page
		return st
	})
}

func (us *UserStore) SetPageSize(size int) {
	us.update(func(st UserState) UserState {
		st.Pagination.PageSize = size
		st.Pagination.Page = 1
		return st
	})
}

func (us *UserStore) SetLoading(loading bool) {
	us.update(func(st UserState) UserState {
		st.Loading = loading
		return st
	})
}

func (us *UserStore) SetError(msg string) {
	us.update(func(st UserState) UserState {
		st.Error = msg
		st.Loading = false
		return st
	})
}

func (us *UserStore) Get(id string) (DirectoryUser, bool) {
	return store.FindByID(us.s.Get().Users, id, userID)
}

func (us *UserStore) Stats() UserStats {
	var stats UserStats
	for _, u := range us.s.Get().Users {
		stats.Total++
		switch u.Status {
		case UserActive:
			stats.Active++
		case UserDisabled:
			stats.Disabled++
		case UserPending:
			stats.Pending++
		}
		if len(u.Licenses) == 0 {
			stats.Unlicensed++
		}
	}
	return stats
}
