package httpserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appauth "github.com/bryanwahyu/codesight/internal/application/auth"
	domai "github.com/bryanwahyu/codesight/internal/domain/ai"
	domauth "github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
	"github.com/bryanwahyu/codesight/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	appName          = "CodeSight"
	dashboardRecent  = 5
	callbackErrorURL = loginPath + "?error=auth_callback_failed"
)

// PageData holds the fields every page template uses.
type PageData struct {
	Title   string `json:"title"`
	Version string `json:"version,omitempty"`
	User    string `json:"user,omitempty"`
}

type HomePage struct {
	PageData
	Description string                   `json:"description"`
	Languages   []history.Language       `json:"languages"`
	Levels      []domai.ExplanationLevel `json:"explanation_levels"`
}

type LoginPage struct {
	PageData
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type HistoryPage struct {
	PageData
	Email     string          `json:"email"`
	Items     []*history.Item `json:"items"`
	Language  string          `json:"language,omitempty"`
	Favorites bool            `json:"favorites_only,omitempty"`
}

type SharePage struct {
	PageData
	Item        *history.Item `json:"item"`
	Explanation template.HTML `json:"-"`
}

type ErrorPage struct {
	PageData
	StatusCode int
	Message    string
}

type pages struct {
	templates map[string]*template.Template
	version   string
}

func newPages(version string) *pages {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("template sub-FS: %v", err))
	}
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
		"label":      history.LanguageLabel,
	}
	layout := template.Must(template.New("layout").Funcs(funcs).ParseFS(sub, "layout.html"))

	files := map[string]string{
		"home":      "home.html",
		"login":     "login.html",
		"dashboard": "dashboard.html",
		"profile":   "profile.html",
		"share":     "share.html",
		"error":     "error.html",
	}
	out := make(map[string]*template.Template, len(files))
	for name, file := range files {
		t := template.Must(layout.Clone())
		template.Must(t.ParseFS(sub, file))
		out[name] = t
	}
	return &pages{templates: out, version: version}
}

func (p *pages) render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := p.templates[name]
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (p *pages) renderError(w http.ResponseWriter, status int, msg string) {
	p.render(w, status, "error", ErrorPage{
		PageData:   PageData{Title: fmt.Sprintf("Error %d", status), Version: p.version},
		StatusCode: status,
		Message:    msg,
	})
}

// respond renders HTML for browsers and the same data as JSON otherwise.
func (r *Router) respond(w http.ResponseWriter, req *http.Request, status int, page string, data any) {
	if wantsHTML(req) {
		r.pages.render(w, status, page, data)
		return
	}
	writeJSON(w, status, data)
}

func (r *Router) pageData(req *http.Request, title string) PageData {
	pd := PageData{Title: title, Version: r.opts.Version}
	if p, ok := domauth.PrincipalFrom(req.Context()); ok {
		pd.User = p.Email
	}
	return pd
}

// GET /
func (r *Router) handleHome(w http.ResponseWriter, req *http.Request) error {
	r.respond(w, req, http.StatusOK, "home", HomePage{
		PageData:    r.pageData(req, appName),
		Description: "Paste a code snippet and get an AI explanation with time and space complexity and suggestions for improvement.",
		Languages:   history.Languages,
		Levels:      domai.ExplanationLevels,
	})
	return nil
}

// GET /login
func (r *Router) handleLoginPage(w http.ResponseWriter, req *http.Request) error {
	page := LoginPage{PageData: r.pageData(req, "Sign in")}
	if req.URL.Query().Get("error") == "auth_callback_failed" {
		page.Error = "Authentication failed. The link may have expired, please sign in or request a new one."
	}
	r.respond(w, req, http.StatusOK, "login", page)
	return nil
}

// credentials reads email/password from a JSON body or a form post.
func credentials(w http.ResponseWriter, req *http.Request) (appauth.Credentials, error) {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, req, &body); err != nil {
			return appauth.Credentials{}, err
		}
		return appauth.Credentials{Email: body.Email, Password: body.Password}, nil
	}
	if err := req.ParseForm(); err != nil {
		return appauth.Credentials{}, badRequest("invalid form body")
	}
	return appauth.Credentials{Email: req.PostFormValue("email"), Password: req.PostFormValue("password")}, nil
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *Router) startSession(w http.ResponseWriter, req *http.Request, sess *domauth.Session) {
	r.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	if isFormPost(req) || wantsHTML(req) {
		http.Redirect(w, req, dashboardPath, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func isFormPost(req *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

// POST /login
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	c, err := credentials(w, req)
	if err != nil {
		return err
	}
	sess, err := r.auth.SignIn(req.Context(), c)
	if err != nil {
		if isFormPost(req) {
			status, body := r.classify(err)
			r.pages.render(w, status, "login", LoginPage{
				PageData: r.pageData(req, "Sign in"),
				Error:    body["error"].(string),
			})
			return nil
		}
		return err
	}
	middleware.LoggerFrom(req.Context()).Info("user signed in", "user_id", sess.UserID)
	r.startSession(w, req, sess)
	return nil
}

// POST /signup
func (r *Router) handleSignUp(w http.ResponseWriter, req *http.Request) error {
	c, err := credentials(w, req)
	if err != nil {
		return err
	}
	sess, err := r.auth.SignUp(req.Context(), c)
	if err != nil {
		return err
	}
	if sess != nil {
		r.startSession(w, req, sess)
		return nil
	}
	page := LoginPage{
		PageData: r.pageData(req, "Check your email"),
		Message:  "Check your email for the confirmation link.",
	}
	if isFormPost(req) {
		r.pages.render(w, http.StatusOK, "login", page)
		return nil
	}
	writeJSON(w, http.StatusOK, page)
	return nil
}

// POST /logout
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	if p, ok := domauth.PrincipalFrom(req.Context()); ok {
		if err := r.auth.SignOut(req.Context(), p.Token); err != nil {
			return err
		}
	}
	r.clearSessionCookie(w)
	http.Redirect(w, req, loginPath, http.StatusSeeOther)
	return nil
}

// GET /auth/callback?code=
func (r *Router) handleCallback(w http.ResponseWriter, req *http.Request) {
	code := req.URL.Query().Get("code")
	sess, err := r.auth.ExchangeCode(req.Context(), code)
	if err != nil {
		middleware.LoggerFrom(req.Context()).Warn("auth callback failed", "error", err)
		http.Redirect(w, req, callbackErrorURL, http.StatusSeeOther)
		return
	}
	r.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	http.Redirect(w, req, dashboardPath, http.StatusSeeOther)
}

// GET /dashboard
func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) error {
	p, _ := domauth.PrincipalFrom(req.Context())
	items, err := r.history.List(req.Context(), dashboardRecent, history.NewestFirst, history.Filter{})
	if err != nil {
		return err
	}
	r.respond(w, req, http.StatusOK, "dashboard", HistoryPage{
		PageData: r.pageData(req, "Dashboard"),
		Email:    p.Email,
		Items:    items,
	})
	return nil
}

// GET /profile?language=&favorites=
func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) error {
	p, _ := domauth.PrincipalFrom(req.Context())
	favorites, _ := strconv.ParseBool(req.URL.Query().Get("favorites"))
	f := history.Filter{Language: req.URL.Query().Get("language"), FavoritesOnly: favorites}

	items, err := r.history.List(req.Context(), r.opts.Capacity, history.NewestFirst, f)
	if err != nil {
		return err
	}
	r.respond(w, req, http.StatusOK, "profile", HistoryPage{
		PageData:  r.pageData(req, "Profile"),
		Email:     p.Email,
		Items:     items,
		Language:  f.Language,
		Favorites: f.FavoritesOnly,
	})
	return nil
}

// GET /share/{id}
func (r *Router) handleShare(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateItemID(id); err != nil {
		return history.ErrNotFound
	}
	it, err := r.history.GetShared(req.Context(), history.ItemID(id))
	if err != nil {
		return err
	}
	page := SharePage{PageData: r.pageData(req, it.Title), Item: it}
	if r.markdown != nil && wantsHTML(req) {
		html, err := r.markdown.HTML([]byte(it.Explanation))
		if err != nil {
			return err
		}
		page.Explanation = html
	}
	r.respond(w, req, http.StatusOK, "share", page)
	return nil
}
