package web

import (
	"net/http"

	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/host"
	"github.com/techidiots/webaibridge/internal/token"
)

// Handlers holds dependencies for the web UI handlers.
type Handlers struct {
	host      *host.Server
	estimator *token.Estimator
	renderer  *Renderer
}

// HandleStatus renders the bridge status page.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	chips := h.host.Chips().List()

	views := make([]ChipView, len(chips))
	total := 0
	for i, c := range chips {
		tokens := h.estimator.EstimateQuick(c.Text)
		total += tokens
		views[i] = ChipView{
			ID:        c.ID,
			Kind:      c.Kind,
			Label:     c.Label,
			Language:  c.LanguageID,
			Tokens:    tokens,
			Timestamp: c.Timestamp,
		}
	}

	data := StatusPageData{
		PageData: PageData{
			Title:   "Bridge Status",
			Version: h.renderer.version,
			Nav:     "status",
		},
		Port:        h.host.Port(),
		Chips:       views,
		TotalTokens: total,
		HasResponse: h.host.LastResponse() != nil,
	}
	if info := h.host.Identity(); info != nil {
		data.WorkspaceName = info.WorkspaceName
		data.WorkspacePath = info.WorkspacePath
	}

	h.renderer.renderPage(w, "status", data)
}

// HandleResponse renders the most recent captured AI response.
func (h *Handlers) HandleResponse(w http.ResponseWriter, r *http.Request) {
	data := ResponsePageData{
		PageData: PageData{
			Title:   "Captured Response",
			Version: h.renderer.version,
			Nav:     "response",
		},
	}

	if resp := h.host.LastResponse(); resp != nil {
		data.HasResponse = true
		data.Site = resp.Site
		data.IsCode = resp.IsCode
		data.Timestamp = resp.Timestamp
		data.RenderedHTML = renderMarkdown(resp.Text)
	}

	h.renderer.renderPage(w, "response", data)
}

// HandleChipsJSON returns the chip set as JSON.
func (h *Handlers) HandleChipsJSON(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"chips": h.host.Chips().List()})
}

// HandleChipDelete removes one chip by id.
func (h *Handlers) HandleChipDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.host.Chips().Remove(id) {
		h.renderer.renderError(w, r, errors.NewNotFound(id))
		return
	}
	h.host.BroadcastChips()
	renderJSON(w, http.StatusOK, map[string]any{"removed": id})
}

// HandleChipsClear removes every chip.
func (h *Handlers) HandleChipsClear(w http.ResponseWriter, r *http.Request) {
	h.host.Chips().Clear()
	h.host.BroadcastChips()
	renderJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
