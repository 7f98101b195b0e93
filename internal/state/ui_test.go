package state

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/opsboard/opsboard/internal/kv"
)

func unreadIn(st UIState) int {
	n := 0
	for _, note := range st.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

func TestUnreadCountNeverDrifts(t *testing.T) {
	t.Parallel()

	us := NewUIStore(nil, testLogger())
	rng := rand.New(rand.NewPCG(1, 2))
	var ids []string

	for i := range 2000 {
		switch op := rng.IntN(6); {
		case op <= 1 || len(ids) == 0:
			n := us.AddNotification(Notification{Title: "n" + strconv.Itoa(i), Read: rng.IntN(4) == 0})
			ids = append(ids, n.ID)
		case op == 2:
			us.MarkRead(ids[rng.IntN(len(ids))])
		case op == 3:
			us.RemoveNotification(ids[rng.IntN(len(ids))])
		case op == 4:
			if rng.IntN(10) == 0 {
				us.MarkAllRead()
			} else {
				us.MarkRead("missing")
			}
		default:
			if rng.IntN(50) == 0 {
				us.ClearNotifications()
			}
		}

		st := us.State()
		if st.UnreadCount != unreadIn(st) {
			t.Fatalf("step %d: UnreadCount = %d, want %d", i, st.UnreadCount, unreadIn(st))
		}
		if len(st.Notifications) > MaxNotifications {
			t.Fatalf("step %d: %d notifications, cap %d", i, len(st.Notifications), MaxNotifications)
		}
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	t.Parallel()

	us := NewUIStore(nil, testLogger())
	us.AddNotification(Notification{ID: "1"})
	us.AddNotification(Notification{ID: "2"})
	st := us.State()
	if st.Notifications[0].ID != "2" || st.UnreadCount != 2 {
		t.Fatalf("notifications = %+v unread=%d", st.Notifications, st.UnreadCount)
	}
	if st.Notifications[0].Kind != NotificationInfo || st.Notifications[0].Timestamp.IsZero() {
		t.Fatalf("defaults not applied: %+v", st.Notifications[0])
	}

	us.MarkRead("2")
	us.MarkRead("2")
	if got := us.State().UnreadCount; got != 1 {
		t.Fatalf("UnreadCount after double MarkRead = %d, want 1", got)
	}
}

func TestModalReplacesPrevious(t *testing.T) {
	t.Parallel()

	us := NewUIStore(nil, testLogger())
	us.OpenModal("edit-asset", map[string]string{"id": "a1"})
	us.OpenModal("confirm-delete", "u1")
	st := us.State()
	if st.ActiveModal != "confirm-delete" || st.ModalData != "u1" {
		t.Fatalf("modal = %q %v, want confirm-delete u1", st.ActiveModal, st.ModalData)
	}
	us.CloseModal()
	if st := us.State(); st.ActiveModal != "" || st.ModalData != nil {
		t.Fatalf("modal after close = %q %v", st.ActiveModal, st.ModalData)
	}
}

func TestUIStorePersistsChromeOnly(t *testing.T) {
	t.Parallel()

	storage := kv.NewMemory()
	first := NewUIStore(storage, testLogger())
	first.SetTheme(ThemeDark)
	first.ToggleSidebar()
	first.SetTheme(Theme("neon"))
	first.AddNotification(Notification{Title: "hello"})
	first.OpenModal("x", nil)

	second := NewUIStore(storage, testLogger())
	st := second.State()
	if st.Theme != ThemeDark || st.SidebarOpen {
		t.Fatalf("rehydrated theme=%s sidebar=%v, want dark closed", st.Theme, st.SidebarOpen)
	}
	if len(st.Notifications) != 0 || st.UnreadCount != 0 || st.ActiveModal != "" {
		t.Fatalf("non-persisted fields rehydrated: %+v", st)
	}
}
