package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/agritutor/agritutor/internal/errors"
	"github.com/agritutor/agritutor/internal/metrics"
	"github.com/agritutor/agritutor/internal/prompt"
)

// CatalogHandler serves the prompt catalog and template filling.
type CatalogHandler struct {
	Catalog      *prompt.Catalog
	MaxBodyBytes int64
}

// CategoriesResponse lists categories in display order.
type CategoriesResponse struct {
	Source     string            `json:"source"`
	Categories []prompt.Category `json:"categories"`
}

// TemplatesResponse lists templates in catalog order.
type TemplatesResponse struct {
	Category  string            `json:"category,omitempty"`
	Templates []prompt.Template `json:"templates"`
}

// FillRequest carries placeholder values in document order.
type FillRequest struct {
	Template string        `json:"template,omitempty"`
	Values   prompt.Values `json:"values"`
}

// FillResponse is a filled prompt. Complete and Missing are advisory.
type FillResponse struct {
	TemplateID string   `json:"template_id,omitempty"`
	Prompt     string   `json:"prompt"`
	Complete   *bool    `json:"complete,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

// ListCategories handles GET /v1/categories.
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CategoriesResponse{
		Source:     h.Catalog.Source(),
		Categories: h.Catalog.Categories(),
	})
}

// ListTemplates handles GET /v1/templates with an optional ?category filter.
func (h *CatalogHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category != "" {
		writeJSON(w, http.StatusOK, TemplatesResponse{Category: category, Templates: h.Catalog.InCategory(category)})
		return
	}
	writeJSON(w, http.StatusOK, TemplatesResponse{Templates: h.Catalog.Templates()})
}

// CategoryTemplates handles GET /v1/categories/{id}/templates. Unknown
// categories yield an empty list.
func (h *CatalogHandler) CategoryTemplates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, TemplatesResponse{Category: id, Templates: h.Catalog.InCategory(id)})
}

// GetTemplate handles GET /v1/templates/{id}.
func (h *CatalogHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "template not found"))
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// FillTemplate handles POST /v1/templates/{id}/fill.
func (h *CatalogHandler) FillTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "template not found"))
		return
	}

	var req FillRequest
	if !decodeJSON(w, r, h.MaxBodyBytes, &req) {
		return
	}

	missing := prompt.Missing(tmpl.Variables, req.Values)
	complete := len(missing) == 0
	metrics.RecordFill(tmpl.ID, complete)

	writeJSON(w, http.StatusOK, FillResponse{
		TemplateID: tmpl.ID,
		Prompt:     tmpl.Fill(req.Values),
		Complete:   &complete,
		Missing:    missing,
	})
}

// Fill handles POST /v1/fill for an arbitrary template body.
func (h *CatalogHandler) Fill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if !decodeJSON(w, r, h.MaxBodyBytes, &req) {
		return
	}
	writeJSON(w, http.StatusOK, FillResponse{Prompt: prompt.Fill(req.Template, req.Values)})
}

// ListPurposes handles GET /v1/purposes.
func (h *CatalogHandler) ListPurposes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]prompt.Purpose{"purposes": prompt.Purposes()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v. It writes the error response
// and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodePayloadTooLarge, err, "request body too large"))
			return false
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid JSON body"))
		return false
	}
	return true
}
