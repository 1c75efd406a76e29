package panel

import (
	"context"
	"strings"

	"github.com/skridlevsky/panel-vote/internal/kv"
)

// Approve adds slug to the panelist's approvals and bumps the project's approval count.
func (a *Actor) Approve(ctx context.Context, panelistID, slug string) error {
	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	panelist, err := a.votingPanelist(panelistID)
	if err != nil {
		return err
	}

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return InvalidRequest("must send slug as a body param")
	}
	project, ok := a.projects[kv.ProjectKey(slug)]
	if !ok {
		return ErrProjectNotFound
	}
	if panelist.hasApproved(slug) {
		return ErrAlreadyApproved
	}

	project.ApprovedCount++
	panelist.Approved = append(panelist.Approved, project.info())

	a.logger.Debug("Project approved", "panelist", panelist.ID, "project", slug, "approved_count", project.ApprovedCount)

	return firstErr(a.putProject(ctx, project), a.putPanelist(ctx, panelist))
}

// Unapprove withdraws an approval. The project is also dropped from favorites.
func (a *Actor) Unapprove(ctx context.Context, panelistID, slug string) error {
	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	panelist, err := a.votingPanelist(panelistID)
	if err != nil {
		return err
	}

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return InvalidRequest("must send slug as a body param")
	}
	project, ok := a.projects[kv.ProjectKey(slug)]
	if !ok {
		return ErrProjectNotFound
	}
	if !panelist.hasApproved(slug) {
		return ErrNotApproved
	}

	if project.ApprovedCount > 0 {
		project.ApprovedCount--
	}
	panelist.Approved = without(panelist.Approved, slug)
	panelist.Favorites = without(panelist.Favorites, slug)

	a.logger.Debug("Project unapproved", "panelist", panelist.ID, "project", slug, "approved_count", project.ApprovedCount)

	return firstErr(a.putProject(ctx, project), a.putPanelist(ctx, panelist))
}

// SetFavorites replaces the panelist's ranked favorites. The first slug ranks highest.
func (a *Actor) SetFavorites(ctx context.Context, panelistID string, slugs []string) ([]ProjectInfo, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	panelist, err := a.votingPanelist(panelistID)
	if err != nil {
		return nil, err
	}
	if len(slugs) > MaxFavorites {
		return nil, ErrTooManyFavorites
	}
	favorites, err := a.resolveFavorites(slugs)
	if err != nil {
		return nil, err
	}

	panelist.Favorites = favorites
	if err := a.putPanelist(ctx, panelist); err != nil {
		return nil, err
	}
	return append([]ProjectInfo{}, favorites...), nil
}

// SubmitBallot scores the panelist's current favorites and locks their ballot.
func (a *Actor) SubmitBallot(ctx context.Context, panelistID string) ([]ProjectInfo, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	panelist, err := a.votingPanelist(panelistID)
	if err != nil {
		return nil, err
	}

	slugs := make([]string, len(panelist.Favorites))
	for i, info := range panelist.Favorites {
		slugs[i] = info.Slug
	}
	return a.submit(ctx, panelist, slugs)
}

// SubmitFavorites sets favorites and submits them as the ballot in one step.
func (a *Actor) SubmitFavorites(ctx context.Context, panelistID string, slugs []string) ([]ProjectInfo, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	panelist, err := a.votingPanelist(panelistID)
	if err != nil {
		return nil, err
	}
	return a.submit(ctx, panelist, slugs)
}

// submit validates a complete ballot, awards rank points and marks the panelist voted.
// Caller holds a.mu.
func (a *Actor) submit(ctx context.Context, panelist *Panelist, slugs []string) ([]ProjectInfo, error) {
	if len(slugs) != MaxFavorites {
		return nil, ErrIncompleteBallot
	}
	favorites, err := a.resolveFavorites(slugs)
	if err != nil {
		if KindOf(err) == KindDuplicateSlug {
			return nil, ErrIncompleteBallot
		}
		return nil, err
	}

	scored := make([]*Project, len(favorites))
	for rank, info := range favorites {
		project := a.projects[kv.ProjectKey(info.Slug)]
		project.Score += rankPoints(rank, len(favorites))
		scored[rank] = project
	}
	panelist.Favorites = favorites
	panelist.Voted = true

	a.logger.Info("Ballot submitted", "panelist", panelist.ID, "favorites", len(favorites))

	errs := make([]error, 0, len(scored)+1)
	for _, project := range scored {
		errs = append(errs, a.putProject(ctx, project))
	}
	errs = append(errs, a.putPanelist(ctx, panelist))
	if err := firstErr(errs...); err != nil {
		return nil, err
	}
	return append([]ProjectInfo{}, favorites...), nil
}

// resolveFavorites maps slugs to project references, rejecting repeats and unknown slugs.
// Caller holds a.mu.
func (a *Actor) resolveFavorites(slugs []string) ([]ProjectInfo, error) {
	seen := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		if seen[slug] {
			return nil, ErrDuplicateSlug
		}
		seen[slug] = true
	}

	favorites := make([]ProjectInfo, 0, len(slugs))
	for _, slug := range slugs {
		project, ok := a.projects[kv.ProjectKey(slug)]
		if !ok {
			return nil, ErrProjectNotFound
		}
		favorites = append(favorites, project.info())
	}
	return favorites, nil
}

// votingPanelist returns the live panelist record if it can still change its ballot.
// Caller holds a.mu.
func (a *Actor) votingPanelist(id string) (*Panelist, error) {
	panelist, ok := a.panelists[kv.PanelistKey(id)]
	if !ok {
		return nil, ErrPanelistNotFound
	}
	if panelist.Voted {
		return nil, ErrAlreadyVoted
	}
	return panelist, nil
}

// requireAdmin fails with ErrNotAdmin unless id names an admin panelist.
// Caller holds a.mu.
func (a *Actor) requireAdmin(id string) error {
	panelist, ok := a.panelists[kv.PanelistKey(id)]
	if !ok || !panelist.IsAdmin {
		return ErrNotAdmin
	}
	return nil
}

// RemovePanelist deletes a panelist and returns the remaining ones. Approval counts
// they contributed are withdrawn; ballot points stay.
func (a *Actor) RemovePanelist(ctx context.Context, callerID, targetID string) ([]Panelist, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAdmin(callerID); err != nil {
		return nil, err
	}

	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, InvalidRequest("must send panelist as a body param")
	}
	key := kv.PanelistKey(targetID)
	target, ok := a.panelists[key]
	if !ok {
		return nil, ErrPanelistNotFound
	}

	var errs []error
	for _, info := range target.Approved {
		project, ok := a.projects[kv.ProjectKey(info.Slug)]
		if !ok || project.ApprovedCount == 0 {
			continue
		}
		project.ApprovedCount--
		errs = append(errs, a.putProject(ctx, project))
	}
	delete(a.panelists, key)

	a.logger.Info("Panelist removed", "panelist", targetID, "by", callerID, "approvals_withdrawn", len(target.Approved))

	if err := a.store.Delete(ctx, key); err != nil {
		a.logger.Error("Failed to delete panelist", "key", key, "error", err)
		errs = append(errs, withCause(ErrPersistenceFailed, err))
	}
	if err := firstErr(errs...); err != nil {
		return nil, err
	}
	return a.panelistList(), nil
}

// ListPanelists returns every panelist, sorted by username.
func (a *Actor) ListPanelists(ctx context.Context, callerID string) ([]Panelist, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAdmin(callerID); err != nil {
		return nil, err
	}
	return a.panelistList(), nil
}

// ListProjects returns every project ranked by approvals then score.
func (a *Actor) ListProjects(ctx context.Context, callerID string) ([]Project, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAdmin(callerID); err != nil {
		return nil, err
	}

	projects := make([]Project, 0, len(a.projects))
	for _, p := range a.projects {
		projects = append(projects, *p)
	}
	SortProjects(projects)
	return projects, nil
}

// panelistList snapshots panelists. Caller holds a.mu.
func (a *Actor) panelistList() []Panelist {
	panelists := make([]Panelist, 0, len(a.panelists))
	for _, p := range a.panelists {
		panelists = append(panelists, p.clone())
	}
	SortPanelists(panelists)
	return panelists
}
