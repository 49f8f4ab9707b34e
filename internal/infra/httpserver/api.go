package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appai "github.com/bryanwahyu/codesight/internal/application/ai"
	domai "github.com/bryanwahyu/codesight/internal/domain/ai"
	"github.com/bryanwahyu/codesight/internal/domain/history"
	"github.com/bryanwahyu/codesight/internal/middleware"
)

// POST /v1/analyses
// Body: {"title","language","code","explanation_level"}
// Invalid language and save failures still answer 200; see outcome/error.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var cmd appai.SubmitCommand
	if err := decodeJSON(w, req, &cmd); err != nil {
		return err
	}
	cmd.Title = middleware.SanitizeString(cmd.Title)

	res, err := r.aiSvc.Submit(req.Context(), cmd)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// POST /v1/analyses/language-check
func (r *Router) handleLanguageCheck(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Language string `json:"language"`
		Code     string `json:"code"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		return err
	}
	res, err := r.aiSvc.CheckLanguage(req.Context(), domai.LanguageCheckRequest{
		ExpectedLanguage: body.Language,
		Code:             body.Code,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// GET /v1/history?limit=&order=&language=&favorites=
func (r *Router) handleHistoryList(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	favorites, _ := strconv.ParseBool(q.Get("favorites"))

	items, err := r.history.List(req.Context(),
		middleware.ValidateLimit(limit),
		middleware.ParseOrder(q.Get("order")),
		history.Filter{Language: q.Get("language"), FavoritesOnly: favorites},
	)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, items)
	return nil
}

func itemID(req *http.Request) (history.ItemID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateItemID(id); err != nil {
		return "", badRequest(err.Error())
	}
	return history.ItemID(id), nil
}

// GET /v1/history/{id}
func (r *Router) handleHistoryGet(w http.ResponseWriter, req *http.Request) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	it, err := r.history.Get(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, it)
	return nil
}

// PATCH /v1/history/{id}
// Body: any of {"title","language","code_snippet","is_favorite","user_notes"}.
// The analysis is not re-run when code changes.
func (r *Router) handleHistoryPatch(w http.ResponseWriter, req *http.Request) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	var p history.Patch
	if err := decodeJSON(w, req, &p); err != nil {
		return err
	}
	if p.Title != nil {
		t := middleware.SanitizeString(*p.Title)
		p.Title = &t
	}
	it, err := r.history.Update(req.Context(), id, p)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, it)
	return nil
}

// POST /v1/history/{id}/favorite flips the stored flag.
func (r *Router) handleFavorite(w http.ResponseWriter, req *http.Request) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	current, err := r.history.Get(req.Context(), id)
	if err != nil {
		return err
	}
	it, err := r.history.ToggleFavorite(req.Context(), id, current.IsFavorite)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, it)
	return nil
}

// PUT /v1/history/{id}/notes
// Body: {"user_notes": "..."}
func (r *Router) handleNotes(w http.ResponseWriter, req *http.Request) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	var body struct {
		Notes string `json:"user_notes"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		return err
	}
	it, err := r.history.UpdateNotes(req.Context(), id, body.Notes)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, it)
	return nil
}

// DELETE /v1/history/{id}
func (r *Router) handleHistoryDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	if err := r.history.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/history/{id}/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	res, err := r.history.Export(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}
