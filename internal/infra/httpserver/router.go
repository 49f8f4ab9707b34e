package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/codesight/internal/application/ai"
	appauth "github.com/bryanwahyu/codesight/internal/application/auth"
	apphistory "github.com/bryanwahyu/codesight/internal/application/history"
	domai "github.com/bryanwahyu/codesight/internal/domain/ai"
	domauth "github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
	"github.com/bryanwahyu/codesight/internal/middleware"
)

const (
	DefaultCookieName = "codesight_session"
	loginPath         = "/login"
	dashboardPath     = "/dashboard"
)

// MarkdownRenderer turns analysis text into safe HTML for the pages.
type MarkdownRenderer interface {
	HTML(src []byte) (template.HTML, error)
}

// Deps are the services the router dispatches to. Metrics, Limiter,
// Markdown and the health checkers are optional.
type Deps struct {
	Auth     *appauth.Service
	AI       *appai.Service
	History  *apphistory.Service
	Lister   apphistory.Lister
	Feed     history.ChangeFeed
	Metrics  *middleware.Metrics
	Limiter  *middleware.RateLimiter
	Markdown MarkdownRenderer
	Health   map[string]middleware.HealthChecker
	Ready    middleware.HealthChecker
	Log      *slog.Logger
}

// Options are the HTTP-facing knobs from config.
type Options struct {
	CookieName   string
	SecureCookie bool
	CORSOrigins  []string
	// Capacity is the item count of a mounted history view.
	Capacity int
	Version  string
}

type Router struct {
	auth     *appauth.Service
	aiSvc    *appai.Service
	history  *apphistory.Service
	lister   apphistory.Lister
	feed     history.ChangeFeed
	metrics  *middleware.Metrics
	limiter  *middleware.RateLimiter
	markdown MarkdownRenderer
	pages    *pages
	log      *slog.Logger
	opts     Options
}

func NewRouter(d Deps, opts Options) http.Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Capacity <= 0 {
		opts.Capacity = history.DefaultCapacity
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		auth:     d.Auth,
		aiSvc:    d.AI,
		history:  d.History,
		lister:   d.Lister,
		feed:     d.Feed,
		metrics:  d.Metrics,
		limiter:  d.Limiter,
		markdown: d.Markdown,
		pages:    newPages(opts.Version),
		log:      log,
		opts:     opts,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if d.Metrics != nil {
		mux.Use(d.Metrics.Middleware)
	}
	mux.Use(middleware.SessionAuth(d.Auth, opts.CookieName))
	mux.Use(middleware.Logging(log))

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler(d.Ready))
	mux.Get("/live", middleware.LivenessHandler)
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	mux.Get("/", r.wrap(r.handleHome))
	mux.With(middleware.RedirectIfSession(dashboardPath)).Get(loginPath, r.wrap(r.handleLoginPage))
	mux.Post(loginPath, r.wrap(r.handleLogin))
	mux.Post("/signup", r.wrap(r.handleSignUp))
	mux.Post("/logout", r.wrap(r.handleLogout))
	mux.Get("/auth/callback", r.handleCallback)
	mux.Get("/share/{id}", r.wrap(r.handleShare))
	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.RequirePageSession(loginPath))
		rt.Get(dashboardPath, r.wrap(r.handleDashboard))
		rt.Get("/profile", r.wrap(r.handleProfile))
	})

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.RequireSession)

		analyze := rt.With()
		if d.Limiter != nil {
			analyze = rt.With(d.Limiter.Middleware)
		}
		analyze.Post("/analyses", r.wrap(r.handleAnalyze))
		rt.Post("/analyses/language-check", r.wrap(r.handleLanguageCheck))

		rt.Get("/history", r.wrap(r.handleHistoryList))
		rt.Get("/history/stream", r.handleStream)
		rt.Route("/history/{id}", func(rt chi.Router) {
			rt.Get("/", r.wrap(r.handleHistoryGet))
			rt.Patch("/", r.wrap(r.handleHistoryPatch))
			rt.Delete("/", r.wrap(r.handleHistoryDelete))
			rt.Post("/favorite", r.wrap(r.handleFavorite))
			rt.Put("/notes", r.wrap(r.handleNotes))
			if d.Limiter != nil {
				rt.With(d.Limiter.Middleware).Post("/export", r.wrap(r.handleExport))
			} else {
				rt.Post("/export", r.wrap(r.handleExport))
			}
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errBadRequest marks malformed input that never reached a service.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(msg string) error { return errBadRequest{msg: msg} }

// wrap maps service errors to HTTP status codes. Browser pages get the
// error page; API and JSON callers get {"error": ...}.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, body := r.classify(err)
		if status >= http.StatusInternalServerError {
			middleware.LoggerFrom(req.Context()).Error("request failed", "error", err)
		}
		if status == http.StatusUnauthorized && wantsHTML(req) {
			http.Redirect(w, req, loginPath, http.StatusSeeOther)
			return
		}
		if wantsHTML(req) {
			r.pages.renderError(w, status, body["error"].(string))
			return
		}
		writeJSON(w, status, body)
	}
}

func (r *Router) classify(err error) (int, map[string]any) {
	var verr *domai.ValidationError
	var bad errBadRequest
	var failure *appai.FailureError
	var limited *middleware.RateLimitError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": verr.Fields}
	case errors.As(err, &bad):
		return http.StatusBadRequest, map[string]any{"error": bad.msg}
	case errors.Is(err, domauth.ErrUnauthenticated):
		return http.StatusUnauthorized, map[string]any{"error": domauth.ErrUnauthenticated.Error()}
	case errors.Is(err, domauth.ErrInvalidCredentials), errors.Is(err, domauth.ErrEmailNotConfirmed), errors.Is(err, domauth.ErrInvalidCode):
		return http.StatusUnauthorized, map[string]any{"error": err.Error()}
	case errors.Is(err, domauth.ErrEmailTaken):
		return http.StatusConflict, map[string]any{"error": domauth.ErrEmailTaken.Error()}
	case errors.Is(err, history.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, map[string]any{"error": "not found"}
	case errors.Is(err, history.ErrEmptyPatch):
		return http.StatusBadRequest, map[string]any{"error": history.ErrEmptyPatch.Error()}
	case errors.Is(err, domai.ErrBusy):
		return http.StatusConflict, map[string]any{"error": domai.ErrBusy.Error()}
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, map[string]any{"error": limited.Error(), "retry_after": limited.RetryAfter()}
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests, map[string]any{"error": "ai quota exceeded"}
	case errors.Is(err, apphistory.ErrExportDisabled):
		return http.StatusNotImplemented, map[string]any{"error": apphistory.ErrExportDisabled.Error()}
	case errors.As(err, &failure), errors.Is(err, domai.ErrInvalidResponse):
		return http.StatusBadGateway, map[string]any{"error": err.Error()}
	}
	return http.StatusInternalServerError, map[string]any{"error": "internal server error"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// wantsHTML is true for browser navigation outside the JSON API.
func wantsHTML(req *http.Request) bool {
	if strings.HasPrefix(req.URL.Path, "/v1/") {
		return false
	}
	accept := req.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return false
	}
	return strings.Contains(accept, "text/html")
}

func (r *Router) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
