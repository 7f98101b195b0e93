package state

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

type NotificationKind string

const (
	NotificationInfo    NotificationKind = "info"
	NotificationSuccess NotificationKind = "success"
	NotificationWarning NotificationKind = "warning"
	NotificationError   NotificationKind = "error"
)

// MaxNotifications bounds the notification list; the oldest are dropped.
const MaxNotifications = 100

type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}

// UIState is the dashboard chrome. UnreadCount always equals the number of
// notifications with Read false.
type UIState struct {
	SidebarOpen   bool           `json:"sidebarOpen"`
	Theme         Theme          `json:"theme"`
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	ActiveModal   string         `json:"activeModal,omitempty"`
	ModalData     any            `json:"modalData,omitempty"`
}

type uiPersisted struct {
	SidebarOpen bool  `json:"sidebarOpen"`
	Theme       Theme `json:"theme"`
}

type UIStore struct {
	s *store.Store[UIState]
}

func NewUIStore(storage kv.Storage, logger *slog.Logger) *UIStore {
	us := &UIStore{s: store.New(UIState{
		SidebarOpen:   true,
		Theme:         ThemeSystem,
		Notifications: []Notification{},
	})}
	attach(us.s, storage, KeyUI,
		func(st UIState) uiPersisted { return uiPersisted{SidebarOpen: st.SidebarOpen, Theme: st.Theme} },
		func(cur UIState, p uiPersisted) UIState {
			cur.SidebarOpen = p.SidebarOpen
			if p.Theme.valid() {
				cur.Theme = p.Theme
			}
			return cur
		},
		logger,
	)
	return us
}

func (t Theme) valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

func (us *UIStore) State() UIState { return us.s.Get() }

func (us *UIStore) Subscribe(fn store.Listener[UIState]) func() { return us.s.Subscribe(fn) }

func (us *UIStore) update(fn func(UIState) UIState) UIState {
	return mutate(us.s, "ui", fn)
}

func (us *UIStore) ToggleSidebar() {
	us.update(func(st UIState) UIState {
		st.SidebarOpen = !st.SidebarOpen
		return st
	})
}

func (us *UIStore) SetSidebarOpen(open bool) {
	us.update(func(st UIState) UIState {
		st.SidebarOpen = open
		return st
	})
}

// SetTheme ignores unknown themes.
func (us *UIStore) SetTheme(theme Theme) {
	if !theme.valid() {
		return
	}
	us.update(func(st UIState) UIState {
		st.Theme = theme
		return st
	})
}

// AddNotification prepends n, filling in id, kind and timestamp when unset.
// It returns the stored notification.
func (us *UIStore) AddNotification(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Kind == "" {
		n.Kind = NotificationInfo
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	us.update(func(st UIState) UIState {
		list := store.Prepend(st.Notifications, n)
		if !n.Read {
			st.UnreadCount++
		}
		for len(list) > MaxNotifications {
			if !list[len(list)-1].Read {
				st.UnreadCount--
			}
			list = list[:len(list)-1]
		}
		st.Notifications = list
		return st
	})
	return n
}

func (us *UIStore) MarkRead(id string) {
	us.update(func(st UIState) UIState {
		for i, n := range st.Notifications {
			if n.ID != id {
				continue
			}
			if !n.Read {
				list := store.Clone(st.Notifications)
				list[i].Read = true
				st.Notifications = list
				st.UnreadCount--
			}
			break
		}
		return st
	})
}

func (us *UIStore) MarkAllRead() {
	us.update(func(st UIState) UIState {
		list := make([]Notification, len(st.Notifications))
		for i, n := range st.Notifications {
			n.Read = true
			list[i] = n
		}
		st.Notifications = list
		st.UnreadCount = 0
		return st
	})
}

func (us *UIStore) RemoveNotification(id string) {
	us.update(func(st UIState) UIState {
		out := make([]Notification, 0, len(st.Notifications))
		for _, n := range st.Notifications {
			if n.ID == id {
				if !n.Read {
					st.UnreadCount--
				}
				continue
			}
			out = append(out, n)
		}
		st.Notifications = out
		return st
	})
}

func (us *UIStore) ClearNotifications() {
	us.update(func(st UIState) UIState {
		st.Notifications = []Notification{}
		st.UnreadCount = 0
		return st
	})
}

// OpenModal replaces any open modal.
func (us *UIStore) OpenModal(id string, data any) {
	us.update(func(st UIState) UIState {
		st.ActiveModal = id
		st.ModalData = data
		return st
	})
}

func (us *UIStore) CloseModal() {
	us.update(func(st UIState) UIState {
		st.ActiveModal = ""
		st.ModalData = nil
		return st
	})
}
