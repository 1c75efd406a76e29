package api

import (
	"net/http"

	"github.com/skridlevsky/panel-vote/internal/panel"
)

// PanelHandler exposes the voting actor over HTTP. Every route runs behind
// AuthMiddleware, so the caller is always a resolved panelist.
type PanelHandler struct {
	actor   *panel.Actor
	metrics *Metrics
}

// NewPanelHandler creates a new panel handler
func NewPanelHandler(actor *panel.Actor, metrics *Metrics) *PanelHandler {
	return &PanelHandler{
		actor:   actor,
		metrics: metrics,
	}
}

type slugRequest struct {
	Slug string `json:"slug"`
}

type favoritesRequest struct {
	Favorites  *[]string `json:"favorites"`
	Submitting bool      `json:"submitting"`
}

type removePanelistRequest struct {
	Panelist string `json:"panelist"`
}

// PanelistsResponse lists panelists
type PanelistsResponse struct {
	Panelists []panel.Panelist `json:"panelists"`
}

// ProjectsResponse lists projects in ranking order
type ProjectsResponse struct {
	Projects []panel.Project `json:"projects"`
	Total    int             `json:"total"`
}

// Auth handles GET /auth
func (h *PanelHandler) Auth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, panelistFrom(r.Context()))
}

// Approve handles POST /approve
func (h *PanelHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req slugRequest
	if err := parseJSON(w, r, &req); err != nil {
		respondError(w, r, panel.InvalidRequest("must send slug as a body param"))
		return
	}

	err := h.actor.Approve(r.Context(), panelistFrom(r.Context()).ID, req.Slug)
	h.metrics.observe("approve", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// Unapprove handles POST /unapprove
func (h *PanelHandler) Unapprove(w http.ResponseWriter, r *http.Request) {
	var req slugRequest
	if err := parseJSON(w, r, &req); err != nil {
		respondError(w, r, panel.InvalidRequest("must send slug as a body param"))
		return
	}

	err := h.actor.Unapprove(r.Context(), panelistFrom(r.Context()).ID, req.Slug)
	h.metrics.observe("unapprove", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// Favorites handles POST /favorites. With submitting set, the favorites are
// submitted as the ballot in the same step.
func (h *PanelHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	var req favoritesRequest
	if err := parseJSON(w, r, &req); err != nil || req.Favorites == nil {
		respondError(w, r, panel.InvalidRequest("Must send favorites in the body of the request"))
		return
	}

	var (
		favorites []panel.ProjectInfo
		err       error
	)
	id := panelistFrom(r.Context()).ID
	if req.Submitting {
		favorites, err = h.actor.SubmitFavorites(r.Context(), id, *req.Favorites)
		h.metrics.observe("submit", err)
	} else {
		favorites, err = h.actor.SetFavorites(r.Context(), id, *req.Favorites)
		h.metrics.observe("favorites", err)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, favorites)
}

// Submit handles POST /submit
func (h *PanelHandler) Submit(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.actor.SubmitBallot(r.Context(), panelistFrom(r.Context()).ID)
	h.metrics.observe("submit", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, favorites)
}

// Panelists handles GET /panelists
func (h *PanelHandler) Panelists(w http.ResponseWriter, r *http.Request) {
	panelists, err := h.actor.ListPanelists(r.Context(), panelistFrom(r.Context()).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, PanelistsResponse{Panelists: panelists})
}

// RemovePanelist handles POST /remove-panelist
func (h *PanelHandler) RemovePanelist(w http.ResponseWriter, r *http.Request) {
	var req removePanelistRequest
	if err := parseJSON(w, r, &req); err != nil {
		respondError(w, r, panel.InvalidRequest("must send panelist as a body param"))
		return
	}

	panelists, err := h.actor.RemovePanelist(r.Context(), panelistFrom(r.Context()).ID, req.Panelist)
	h.metrics.observe("remove_panelist", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, PanelistsResponse{Panelists: panelists})
}

// Projects handles GET /projects
func (h *PanelHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.actor.ListProjects(r.Context(), panelistFrom(r.Context()).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ProjectsResponse{Projects: projects, Total: len(projects)})
}

// SyncProjects handles GET /projects/sync
func (h *PanelHandler) SyncProjects(w http.ResponseWriter, r *http.Request) {
	_, err := h.actor.SyncCatalog(r.Context(), panelistFrom(r.Context()).ID)
	h.metrics.observe("sync", err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}
