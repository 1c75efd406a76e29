package api

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/skridlevsky/panel-vote/internal/panel"
)

var panelistColumns = []string{
	"id", "username", "email", "approved_count", "voted",
	"favorite_1", "favorite_2", "favorite_3",
}

var projectColumns = []string{
	"id", "slug", "name", "description", "site", "logo_url", "score", "approved_count",
}

// PanelistsCSV handles GET /panelists/csv
func (h *PanelHandler) PanelistsCSV(w http.ResponseWriter, r *http.Request) {
	panelists, err := h.actor.ListPanelists(r.Context(), panelistFrom(r.Context()).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rows := make([][]string, 0, len(panelists))
	for _, p := range panelists {
		row := []string{
			p.ID,
			p.Username,
			p.Email,
			strconv.Itoa(len(p.Approved)),
			strconv.FormatBool(p.Voted),
		}
		for i := 0; i < panel.MaxFavorites; i++ {
			name := ""
			if i < len(p.Favorites) {
				name = p.Favorites[i].Name
			}
			row = append(row, name)
		}
		rows = append(rows, row)
	}

	writeCSV(w, "panelists.csv", panelistColumns, rows)
}

// ProjectsCSV handles GET /projects/csv
func (h *PanelHandler) ProjectsCSV(w http.ResponseWriter, r *http.Request) {
	projects, err := h.actor.ListProjects(r.Context(), panelistFrom(r.Context()).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.ID,
			p.Slug,
			p.Name,
			p.Description,
			p.Site,
			p.LogoURL,
			strconv.Itoa(p.Score),
			strconv.Itoa(p.ApprovedCount),
		})
	}

	writeCSV(w, "projects.csv", projectColumns, rows)
}

func writeCSV(w http.ResponseWriter, filename string, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		slog.Error("Failed to write CSV header", "file", filename, "error", err)
		return
	}
	if err := cw.WriteAll(rows); err != nil {
		slog.Error("Failed to write CSV rows", "file", filename, "error", err)
	}
}
