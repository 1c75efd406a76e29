// Package panel implements the voting actor: the single owner of a round's
// projects and panelists. Every operation runs to completion under one lock,
// updates the in-memory view and writes the change through to the kv store
// before returning.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skridlevsky/panel-vote/internal/auth"
	"github.com/skridlevsky/panel-vote/internal/discord"
	"github.com/skridlevsky/panel-vote/internal/kv"
	"github.com/skridlevsky/panel-vote/internal/webflow"
)

// IdentityProvider verifies a bearer token and returns the caller's identity and roles
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*discord.Identity, error)
}

// CatalogSource returns the current candidate projects for the round
type CatalogSource interface {
	FetchProjects(ctx context.Context) ([]webflow.CatalogItem, error)
}

// Actor owns the round's state
type Actor struct {
	store      kv.Store
	identities IdentityProvider
	catalog    CatalogSource
	policy     auth.Policy
	logger     *slog.Logger

	loadGroup singleflight.Group
	loaded    atomic.Bool

	mu        sync.Mutex
	projects  map[string]*Project  // kv.ProjectKey(slug) → project
	panelists map[string]*Panelist // kv.PanelistKey(id) → panelist
}

// Options configures an Actor
type Options struct {
	Store      kv.Store
	Identities IdentityProvider
	Catalog    CatalogSource
	Policy     auth.Policy
	Logger     *slog.Logger
}

// NewActor creates an actor. State is hydrated lazily on first use.
func NewActor(opts Options) *Actor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		store:      opts.Store,
		identities: opts.Identities,
		catalog:    opts.Catalog,
		policy:     opts.Policy,
		logger:     logger.With("component", "panel"),
		projects:   make(map[string]*Project),
		panelists:  make(map[string]*Panelist),
	}
}

// Load hydrates the actor eagerly. Operations call it implicitly.
func (a *Actor) Load(ctx context.Context) error {
	return a.ensureLoaded(ctx)
}

// loadTimeout bounds a shared load, which outlives the request that started it.
const loadTimeout = 30 * time.Second

// ensureLoaded blocks until projects and panelists are in memory. Concurrent
// callers share one in-flight load; a failed load leaves the actor unloaded so
// the next caller starts over. The load is detached from the first caller's
// cancellation, while each caller still stops waiting when its own ctx is done.
func (a *Actor) ensureLoaded(ctx context.Context) error {
	if a.loaded.Load() {
		return nil
	}

	ch := a.loadGroup.DoChan("load", func() (interface{}, error) {
		if a.loaded.Load() {
			return nil, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		projects, err := loadEntities[Project](loadCtx, a.store, kv.ProjectsPrefix)
		if err != nil {
			return nil, err
		}
		panelists, err := loadEntities[Panelist](loadCtx, a.store, kv.PanelistsPrefix)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.projects = projects
		a.panelists = panelists
		a.mu.Unlock()
		a.loaded.Store(true)

		a.logger.Info("Voting state loaded", "projects", len(projects), "panelists", len(panelists))
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			a.logger.Error("Failed to load voting state", "error", res.Err)
			return withCause(ErrUnavailable, res.Err)
		}
		return nil
	case <-ctx.Done():
		return withCause(ErrUnavailable, ctx.Err())
	}
}

// loadEntities decodes every entry under prefix into a fresh map keyed by storage key.
func loadEntities[T any](ctx context.Context, store kv.Store, prefix string) (map[string]*T, error) {
	entries, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	out := make(map[string]*T, len(entries))
	for _, entry := range entries {
		v := new(T)
		if err := json.Unmarshal(entry.Value, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", entry.Key, err)
		}
		out[entry.Key] = v
	}
	return out, nil
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" unless the scheme is Bearer and a token follows.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the caller behind an Authorization header to a panelist,
// registering them on first contact.
func (a *Actor) Authenticate(ctx context.Context, authorization string) (Panelist, error) {
	token := BearerToken(authorization)
	if token == "" {
		return Panelist{}, ErrUnauthorized
	}

	if err := a.ensureLoaded(ctx); err != nil {
		return Panelist{}, err
	}

	identity, err := a.identities.Verify(ctx, token)
	if err != nil {
		a.logger.Warn("Identity verification failed", "error", err)
		return Panelist{}, withCause(ErrAuthenticationFailed, err)
	}
	if identity == nil || identity.ID == "" {
		return Panelist{}, ErrAuthenticationFailed
	}

	caps, err := a.policy.Authorize(auth.Subject{
		ID:            identity.ID,
		EmailVerified: identity.Verified,
		Roles:         identity.Roles,
	})
	if err != nil {
		var denied *auth.DeniedError
		if errors.As(err, &denied) {
			return Panelist{}, newError(KindAuthenticationFailed, denied.Reason, err)
		}
		return Panelist{}, withCause(ErrAuthenticationFailed, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := kv.PanelistKey(identity.ID)
	if existing, ok := a.panelists[key]; ok {
		return existing.clone(), nil
	}

	panelist := &Panelist{
		ID:            identity.ID,
		Username:      identity.Username,
		Discriminator: identity.Discriminator,
		Avatar:        identity.Avatar,
		Email:         identity.Email,
		IsAdmin:       caps.Has(auth.CapAdmin),
		Approved:      []ProjectInfo{},
		Favorites:     []ProjectInfo{},
	}
	a.panelists[key] = panelist

	a.logger.Info("Panelist registered", "panelist", panelist.ID, "admin", panelist.IsAdmin, "capabilities", caps.String())

	if err := a.putPanelist(ctx, panelist); err != nil {
		return Panelist{}, err
	}
	return panelist.clone(), nil
}

// Stats returns counts for health checks and metrics
func (a *Actor) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		Loaded:    a.loaded.Load(),
		Panelists: len(a.panelists),
		Projects:  len(a.projects),
	}
	for _, p := range a.panelists {
		if p.Voted {
			stats.Voted++
		}
	}
	return stats
}

// Health reports whether the backing store is reachable
func (a *Actor) Health(ctx context.Context) error {
	return a.store.Health(ctx)
}

// putProject writes p through to the store. Caller holds a.mu.
func (a *Actor) putProject(ctx context.Context, p *Project) error {
	return a.put(ctx, kv.ProjectKey(p.Slug), p)
}

// putPanelist writes p through to the store. Caller holds a.mu.
func (a *Actor) putPanelist(ctx context.Context, p *Panelist) error {
	return a.put(ctx, kv.PanelistKey(p.ID), p)
}

func (a *Actor) put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return withCause(ErrPersistenceFailed, fmt.Errorf("failed to encode %s: %w", key, err))
	}
	if err := a.store.Put(ctx, key, data); err != nil {
		a.logger.Error("Failed to persist entry", "key", key, "error", err)
		return withCause(ErrPersistenceFailed, err)
	}
	return nil
}

// firstErr returns the first non-nil error
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
