package handlers

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/http/authn"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/store"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = wsPongWait * 9 / 10
	wsReadLimit    = 4 << 10
)

// The zero Upgrader rejects cross-origin handshakes.
var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}

// StoreMessage is one frame on the live state stream.
type StoreMessage struct {
	Store string `json:"store"`
	State any    `json:"state"`
}

// stream is a store the websocket endpoint can mirror. Page is the dashboard
// page whose access gates the stream; empty means any signed-in user.
type stream struct {
	name      string
	page      string
	snapshot  func() any
	subscribe func(notify func()) func()
}

func watch[S any](subscribe func(store.Listener[S]) func()) func(func()) func() {
	return func(notify func()) func() {
		return subscribe(func(S, S) { notify() })
	}
}

func (h *Handlers) streams() []stream {
	app := h.App
	return []stream{
		{name: "admin", page: state.AdminManagementPath, snapshot: func() any { return app.Admin.State() }, subscribe: watch(app.Admin.Subscribe)},
		{name: "assets", page: "/assets", snapshot: func() any { return app.Assets.State() }, subscribe: watch(app.Assets.Subscribe)},
		{name: "network", page: "/network", snapshot: func() any { return app.Network.State() }, subscribe: watch(app.Network.Subscribe)},
		{name: "patch", page: "/security", snapshot: func() any { return app.Patch.State() }, subscribe: watch(app.Patch.Subscribe)},
		{name: "proxmox", page: "/proxmox", snapshot: func() any { return app.Proxmox.State() }, subscribe: watch(app.Proxmox.Subscribe)},
		{name: "software", page: "/software", snapshot: func() any { return app.Software.State() }, subscribe: watch(app.Software.Subscribe)},
		{name: "ui", snapshot: func() any { return app.UI.State() }, subscribe: watch(app.UI.Subscribe)},
		{name: "users", page: "/users", snapshot: func() any { return app.Users.State() }, subscribe: watch(app.Users.Subscribe)},
	}
}

// selectStreams resolves the comma separated stores parameter against what
// u may see. An empty parameter selects every permitted stream.
func (h *Handlers) selectStreams(u state.User, raw string) ([]stream, string) {
	all := h.streams()
	var wanted []string
	for name := range strings.SplitSeq(raw, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" && !slices.Contains(wanted, name) {
			wanted = append(wanted, name)
		}
	}

	var out []stream
	if len(wanted) == 0 {
		for _, s := range all {
			if s.page == "" || state.CanAccessPage(&u, s.page) {
				out = append(out, s)
			}
		}
		return out, ""
	}
	for _, name := range wanted {
		i := slices.IndexFunc(all, func(s stream) bool { return s.name == name })
		if i < 0 {
			return nil, "unknown store " + name
		}
		s := all[i]
		if s.page != "" && !state.CanAccessPage(&u, s.page) {
			return nil, "access to store " + name + " is not allowed"
		}
		out = append(out, s)
	}
	return out, ""
}

// HandleStateStream upgrades to a websocket and pushes a StoreMessage for
// each selected store, first as a snapshot and then after every change.
// Bursts of changes to one store collapse into a single frame.
func (h *Handlers) HandleStateStream(c *echo.Context) error {
	u, ok := authn.PrincipalFromContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "authentication required")
	}
	streams, problem := h.selectStreams(u, c.QueryParam("stores"))
	if problem != "" {
		status := http.StatusBadRequest
		if strings.HasPrefix(problem, "access") {
			status = http.StatusForbidden
		}
		return jsonError(c, status, problem)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		c.Logger().Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	var (
		mu    sync.Mutex
		dirty = make(map[string]bool, len(streams))
		wake  = make(chan struct{}, 1)
	)
	// Listeners run under the store's write lock and must not block.
	for _, s := range streams {
		name := s.name
		unsubscribe := s.subscribe(func() {
			mu.Lock()
			dirty[name] = true
			mu.Unlock()
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.Logger().Debug("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	send := func(s stream) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(StoreMessage{Store: s.name, State: s.snapshot()})
	}
	for _, s := range streams {
		if err := send(s); err != nil {
			return nil
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return nil
			}
		case <-wake:
			mu.Lock()
			changed := dirty
			dirty = make(map[string]bool, len(streams))
			mu.Unlock()
			for _, s := range streams {
				if !changed[s.name] {
					continue
				}
				if err := send(s); err != nil {
					return nil
				}
			}
		}
	}
}
