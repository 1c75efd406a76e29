package panel

import (
	"context"
	"errors"
	"strings"

	"github.com/skridlevsky/panel-vote/internal/kv"
	"github.com/skridlevsky/panel-vote/internal/webflow"
)

var errNoCatalog = errors.New("no catalog source configured")

// SyncCatalog is the admin-triggered form of Sync.
func (a *Actor) SyncCatalog(ctx context.Context, callerID string) (SyncReport, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return SyncReport{}, err
	}

	a.mu.Lock()
	err := a.requireAdmin(callerID)
	a.mu.Unlock()
	if err != nil {
		return SyncReport{}, err
	}

	return a.Sync(ctx)
}

// Sync pulls the catalog and reconciles it into the project set. New projects start at
// zero; existing ones get fresh descriptive fields while score and approval count are
// preserved. Projects missing from the catalog are left alone. A failed fetch leaves
// state untouched.
func (a *Actor) Sync(ctx context.Context) (SyncReport, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return SyncReport{}, err
	}
	if a.catalog == nil {
		return SyncReport{}, withCause(ErrSyncFailed, errNoCatalog)
	}

	items, err := a.catalog.FetchProjects(ctx)
	if err != nil {
		a.logger.Error("Catalog fetch failed", "error", err)
		return SyncReport{}, withCause(ErrSyncFailed, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	report := SyncReport{Fetched: len(items)}
	var errs []error
	for _, item := range items {
		slug := strings.TrimSpace(item.Slug)
		if slug == "" {
			report.Skipped++
			continue
		}

		key := kv.ProjectKey(slug)
		project, exists := a.projects[key]
		switch {
		case !exists:
			project = &Project{Slug: slug}
			project.refresh(item)
			a.projects[key] = project
			report.Created++
		case project.refresh(item):
			report.Updated++
		default:
			continue
		}
		errs = append(errs, a.putProject(ctx, project))
	}

	a.logger.Info("Catalog synced",
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
	)

	return report, firstErr(errs...)
}

// refresh copies descriptive fields from item and reports whether anything changed.
func (p *Project) refresh(item webflow.CatalogItem) bool {
	before := *p
	p.ID = item.ID
	p.Name = item.Name
	p.Description = item.Description
	p.Site = item.Site
	p.LogoURL = item.LogoURL
	return before != *p
}
