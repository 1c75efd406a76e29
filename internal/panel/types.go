package panel

import (
	"sort"
	"strings"
)

// MaxFavorites is the size of a complete ballot.
const MaxFavorites = 3

// ProjectInfo is the denormalized reference a panelist keeps to a project.
type ProjectInfo struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Project is a candidate in the active round
type Project struct {
	ID            string `json:"id"`
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Site          string `json:"site"`
	LogoURL       string `json:"logoUrl"`
	Score         int    `json:"score"`
	ApprovedCount int    `json:"approved_count"`
}

func (p *Project) info() ProjectInfo {
	return ProjectInfo{Slug: p.Slug, Name: p.Name}
}

// Panelist is an authenticated reviewer and their ballot state
type Panelist struct {
	ID            string        `json:"id"`
	Username      string        `json:"username"`
	Discriminator string        `json:"discriminator"`
	Avatar        string        `json:"avatar"`
	Email         string        `json:"email"`
	IsAdmin       bool          `json:"isAdmin"`
	Voted         bool          `json:"voted"`
	Approved      []ProjectInfo `json:"approved"`
	Favorites     []ProjectInfo `json:"favorites"`
}

// clone returns a deep copy safe to hand out of the actor.
func (p *Panelist) clone() Panelist {
	c := *p
	c.Approved = append([]ProjectInfo{}, p.Approved...)
	c.Favorites = append([]ProjectInfo{}, p.Favorites...)
	return c
}

func (p *Panelist) hasApproved(slug string) bool {
	return indexOf(p.Approved, slug) >= 0
}

func indexOf(infos []ProjectInfo, slug string) int {
	for i, info := range infos {
		if info.Slug == slug {
			return i
		}
	}
	return -1
}

func without(infos []ProjectInfo, slug string) []ProjectInfo {
	out := make([]ProjectInfo, 0, len(infos))
	for _, info := range infos {
		if info.Slug != slug {
			out = append(out, info)
		}
	}
	return out
}

// rankPoints is the score a favorite at zero-based position rank receives
// on a ballot of size n: the first listed favorite gets n points, the last gets 1.
func rankPoints(rank, n int) int {
	return n - rank
}

// SortProjects orders projects by approvals, then score, both descending.
// Slug breaks remaining ties so listings are stable.
func SortProjects(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		if a.ApprovedCount != b.ApprovedCount {
			return a.ApprovedCount > b.ApprovedCount
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Slug < b.Slug
	})
}

// SortPanelists orders panelists by username, case-insensitively, then id.
func SortPanelists(panelists []Panelist) {
	sort.SliceStable(panelists, func(i, j int) bool {
		a, b := strings.ToLower(panelists[i].Username), strings.ToLower(panelists[j].Username)
		if a != b {
			return a < b
		}
		return panelists[i].ID < panelists[j].ID
	})
}

// Stats summarizes the actor's state for health and metrics.
type Stats struct {
	Loaded    bool `json:"loaded"`
	Panelists int  `json:"panelists"`
	Voted     int  `json:"voted"`
	Projects  int  `json:"projects"`
}

// SyncReport describes the outcome of a catalog reconciliation.
type SyncReport struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
