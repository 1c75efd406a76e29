package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skridlevsky/panel-vote/internal/api"
	"github.com/skridlevsky/panel-vote/internal/auth"
	"github.com/skridlevsky/panel-vote/internal/discord"
	"github.com/skridlevsky/panel-vote/internal/kv"
	"github.com/skridlevsky/panel-vote/internal/panel"
	"github.com/skridlevsky/panel-vote/internal/webflow"
)

type stubIdentities map[string]*discord.Identity

func (s stubIdentities) Verify(_ context.Context, token string) (*discord.Identity, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return nil, discord.ErrInvalidToken
}

type stubCatalog struct {
	mu    sync.Mutex
	items []webflow.CatalogItem
}

func (s *stubCatalog) set(items ...webflow.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func (s *stubCatalog) FetchProjects(context.Context) ([]webflow.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webflow.CatalogItem{}, s.items...), nil
}

type panelServer struct {
	url     string
	store   *kv.Memory
	actor   *panel.Actor
	catalog *stubCatalog
}

func newPanelServer(t *testing.T) *panelServer {
	t.Helper()

	ids := stubIdentities{
		"admin-token":  {User: discord.User{ID: "100", Username: "root", Verified: true}, Roles: []string{"admin"}},
		"member-token": {User: discord.User{ID: "200", Username: "ada", Verified: true}, Roles: []string{"verified"}},
	}
	ps := &panelServer{store: kv.NewMemory(), catalog: &stubCatalog{}}
	ps.catalog.set(
		webflow.CatalogItem{ID: "1", Slug: "a", Name: "Alpha"},
		webflow.CatalogItem{ID: "2", Slug: "b", Name: "Beta"},
	)
	ps.actor = panel.NewActor(panel.Options{
		Store:      ps.store,
		Identities: ids,
		Catalog:    ps.catalog,
		Policy: auth.Policy{
			Roles:                  auth.Roles{Admin: "admin", Verified: "verified"},
			RequireVerifiedEmail:   true,
			RequireVerifiedRole:    true,
			AdminsBypassRoleChecks: true,
		},
	})
	_, err := ps.actor.Sync(context.Background())
	require.NoError(t, err)

	result := api.NewRouter(&api.RouterConfig{Actor: ps.actor})
	t.Cleanup(result.RateLimiters.Stop)
	srv := httptest.NewServer(result.Router)
	t.Cleanup(srv.Close)
	ps.url = srv.URL
	return ps
}

func (ps *panelServer) storedProject(t *testing.T, slug string) panel.Project {
	t.Helper()
	data, ok, err := ps.store.Get(context.Background(), kv.ProjectKey(slug))
	require.NoError(t, err)
	require.True(t, ok)
	var p panel.Project
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func TestTriggerSync_KeepsCommittedApprovals(t *testing.T) {
	ps := newPanelServer(t)
	ctx := context.Background()

	_, err := ps.actor.Authenticate(ctx, "Bearer member-token")
	require.NoError(t, err)
	_, err = ps.actor.Authenticate(ctx, "Bearer admin-token")
	require.NoError(t, err)
	require.NoError(t, ps.actor.Approve(ctx, "200", "a"))

	ps.catalog.set(
		webflow.CatalogItem{ID: "1", Slug: "a", Name: "Alpha Renamed"},
		webflow.CatalogItem{ID: "2", Slug: "b", Name: "Beta"},
		webflow.CatalogItem{ID: "3", Slug: "c", Name: "Gamma"},
	)

	require.NoError(t, triggerSync(ctx, http.DefaultClient, ps.url, "admin-token"))

	a := ps.storedProject(t, "a")
	assert.Equal(t, "Alpha Renamed", a.Name)
	assert.Equal(t, 1, a.ApprovedCount, "approval committed before the sync survives in the store")

	// The server's own view sees the new project without a reload
	require.NoError(t, ps.actor.Approve(ctx, "200", "c"))
	assert.Equal(t, 1, ps.storedProject(t, "c").ApprovedCount)

	total, err := countProjects(ctx, http.DefaultClient, ps.url, "admin-token")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestTriggerSync_ReportsServerErrors(t *testing.T) {
	ps := newPanelServer(t)
	ctx := context.Background()

	_, err := ps.actor.Authenticate(ctx, "Bearer member-token")
	require.NoError(t, err)

	err = triggerSync(ctx, http.DefaultClient, ps.url, "member-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), panel.ErrNotAdmin.Message)

	err = triggerSync(ctx, http.DefaultClient, ps.url, "unknown-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
