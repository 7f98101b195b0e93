package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/opsboard/opsboard/internal/auth/providers"
	"github.com/opsboard/opsboard/internal/http/authn"
	"github.com/opsboard/opsboard/internal/http/handlers"
	"github.com/opsboard/opsboard/internal/state"
)

const (
	sessionLifetime    = 12 * time.Hour
	sessionIdleTimeout = 2 * time.Hour
	headerRequestID    = "X-Request-ID"
	streamPath         = "/api/ws"
)

// Options carries the collaborators the HTTP layer needs besides the stores.
type Options struct {
	Logger   *slog.Logger
	Sessions *scs.SessionManager
	Password providers.Provider
	OIDC     *providers.OIDC
	Syncer   handlers.SyncRunner
}

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h      *handlers.Handlers
	e      *echo.Echo
	srv    *http.Server
	logger *slog.Logger
}

// NewSessionManager builds the cookie session manager. Sessions live in
// PostgreSQL when pool is non-nil and in memory otherwise.
func NewSessionManager(pool *pgxpool.Pool, secureCookie bool) *scs.SessionManager {
	sm := scs.New()
	if pool != nil {
		sm.Store = pgxstore.New(pool)
	}
	sm.Lifetime = sessionLifetime
	sm.IdleTimeout = sessionIdleTimeout
	sm.Cookie.Name = "opsboard_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secureCookie
	return sm
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(app *state.App, opts Options) *EchoServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewSessionManager(nil, false)
	}
	h := &handlers.Handlers{
		App:      app,
		Sessions: sessions,
		Password: opts.Password,
		OIDC:     opts.OIDC,
		Syncer:   opts.Syncer,
	}
	if h.Password == nil {
		h.Password = providers.NewPasswordProvider(app.Admin)
	}

	e := echo.New()
	e.Logger = logger
	es := &EchoServer{h: h, e: e, logger: logger}
	e.HTTPErrorHandler = es.httpErrorHandler
	e.Use(middleware.Recover())
	e.Use(requestID)
	e.Use(es.requestLogger)
	es.registerRoutes()
	return es
}

func (es *EchoServer) registerRoutes() {
	h := es.h
	es.e.GET("/healthz", h.HandleHealthz)

	es.e.POST("/api/session/login", h.HandleLogin)
	es.e.GET("/auth/oidc/login", h.HandleOIDCLogin)
	es.e.GET("/auth/oidc/callback", h.HandleOIDCCallback)

	requireAuth := authn.RequireAuth(h.Sessions, h.App.Admin)
	page := authn.RequirePage

	reports := es.e.Group("/reports", requireAuth)
	reports.GET("/security", h.HandleSecurityReport, page("/reports"))

	api := es.e.Group("/api", requireAuth)
	api.GET("/session", h.HandleSession)
	api.POST("/session/logout", h.HandleLogout)

	api.GET("/assets/stats", h.HandleAssetStats, page("/assets"))
	api.GET("/assets/expiring", h.HandleAssetsExpiring, page("/assets"))
	h.Assets().Register(api, "/assets", page("/assets"))

	api.GET("/users/stats", h.HandleUserStats, page("/users"))
	api.POST("/users/sync", h.HandleSync, page("/users"))
	h.Users().Register(api, "/users", page("/users"))

	api.GET("/software/outdated", h.HandleSoftwareOutdated, page("/software"))
	api.POST("/software/:id/assign/:userID", h.HandleSoftwareAssign, page("/software"))
	api.DELETE("/software/:id/assign/:userID", h.HandleSoftwareUnassign, page("/software"))
	h.Software().Register(api, "/software", page("/software"))

	api.GET("/network/summary", h.HandleNetworkSummary, page("/network"))
	h.NetworkSites().Register(api, "/network/sites", page("/network"))

	h.ProxmoxNodes().Register(api, "/proxmox/nodes", page("/proxmox"))
	h.ProxmoxVMs().Register(api, "/proxmox/vms", page("/proxmox"))

	api.GET("/patch", h.HandlePatch, page("/security"))
	api.POST("/patch/scan", h.HandlePatchScan, page("/security"))
	api.PATCH("/patch/:id", h.HandleVulnerabilityStatus, page("/security"))

	admins := h.Admins()
	adminPage := page(state.AdminManagementPath)
	api.GET("/admins", admins.List, adminPage)
	api.POST("/admins", h.HandleAdminCreate, adminPage)
	api.GET("/admins/:id", admins.Show, adminPage)
	api.PATCH("/admins/:id", h.HandleAdminPatch, adminPage)
	api.DELETE("/admins/:id", h.HandleAdminDelete, adminPage)
	api.GET("/admin/group-mappings", h.HandleGroupMappings, adminPage)
	api.GET("/admin/group-mappings/:role", h.HandleGroupMappingGet, adminPage)
	api.PATCH("/admin/group-mappings/:role", h.HandleGroupMappingPatch, adminPage)

	api.GET("/notifications", h.HandleNotifications)
	api.POST("/notifications/read-all", h.HandleNotificationsReadAll)
	api.POST("/notifications/:id/read", h.HandleNotificationRead)
	api.DELETE("/notifications/:id", h.HandleNotificationDelete)

	api.GET(strings.TrimPrefix(streamPath, "/api"), h.HandleStateStream)
}

// requestID propagates or assigns X-Request-ID.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func (es *EchoServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		if req.URL.Path == "/healthz" {
			return err
		}
		requestID, _ := c.Get(handlers.ContextKeyRequestID).(string)
		es.logger.Debug("http request",
			"request_id", requestID,
			"method", req.Method,
			"path", req.URL.Path,
			"ip", c.RealIP(),
			"duration", time.Since(start),
		)
		return err
	}
}

// httpStatusFromError maps err to a response status; anything without a
// status is an internal error.
func httpStatusFromError(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != 0 {
		return he.Code
	}
	var coder interface{ StatusCode() int }
	if errors.As(err, &coder) {
		if code := coder.StatusCode(); code != 0 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// httpErrorHandler never echoes error details to the client.
func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	status := httpStatusFromError(err)
	if status >= http.StatusInternalServerError {
		_ = es.h.RenderError(c, err)
		return
	}

	text := http.StatusText(status)
	if status == http.StatusNotFound {
		text = "404 page not found"
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		_ = c.JSON(status, map[string]string{"error": text})
		return
	}
	_ = c.String(status, text)
}

// Handler is the root handler with session loading applied. The state
// stream only reads the session and needs the raw writer to hijack the
// connection, so it bypasses LoadAndSave.
func (es *EchoServer) Handler() http.Handler {
	withSessions := es.h.Sessions.LoadAndSave(es.e)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == streamPath {
			es.serveStream(w, r)
			return
		}
		withSessions.ServeHTTP(w, r)
	})
}

func (es *EchoServer) serveStream(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(es.h.Sessions.Cookie.Name); err == nil {
		token = cookie.Value
	}
	ctx, err := es.h.Sessions.Load(r.Context(), token)
	if err != nil {
		es.logger.Error("load session", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	es.e.ServeHTTP(w, r.WithContext(ctx))
}

// Start serves on addr until Shutdown. It returns http.ErrServerClosed after
// a graceful shutdown.
func (es *EchoServer) Start(addr string) error {
	es.srv = &http.Server{
		Addr:              addr,
		Handler:           es.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	es.logger.Info("http server listening", "addr", addr)
	return es.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	if es.srv == nil {
		return nil
	}
	return es.srv.Shutdown(ctx)
}
