package webflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the Webflow v1 API base
const DefaultAPIURL = "https://api.webflow.com"

// maxPages caps pagination so a misbehaving upstream cannot loop forever
const maxPages = 100

// Item is a raw collection item as returned by the Webflow CMS
type Item struct {
	ID              string   `json:"_id"`
	Slug            string   `json:"slug"`
	Name            string   `json:"name"`
	Description     string   `json:"quick-description"`
	Site            string   `json:"customer-interface-if-featured"`
	Logo            *Image   `json:"logo,omitempty"`
	CandidateRounds []string `json:"candidate-rounds,omitempty"`
	Round           string   `json:"round,omitempty"`
}

// Image is a Webflow image field
type Image struct {
	URL string `json:"url"`
}

// Collection is one page of collection items
type Collection struct {
	Items  []Item `json:"items"`
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Total  int    `json:"total"`
}

// CatalogItem is a flattened catalog record for the active round
type CatalogItem struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Site        string
	LogoURL     string
}

// Config configures a Client
type Config struct {
	APIURL       string
	APIKey       string
	CollectionID string
	// RoundTag selects items whose candidate-rounds (or legacy round field)
	// contains it. Empty keeps every item.
	RoundTag string
}

// Client reads the project catalog from a Webflow collection
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new Webflow API client
func NewClient(cfg Config) *Client {
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetCollectionPage fetches one page of items starting at offset
func (c *Client) GetCollectionPage(ctx context.Context, offset int) (*Collection, error) {
	u, err := url.Parse(fmt.Sprintf("%s/collections/%s/items", c.cfg.APIURL, c.cfg.CollectionID))
	if err != nil {
		return nil, fmt.Errorf("failed to build collection URL: %w", err)
	}
	if offset > 0 {
		q := u.Query()
		q.Set("offset", strconv.Itoa(offset))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("webflow API error %d: %s", resp.StatusCode, string(body))
	}

	var page Collection
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &page, nil
}

// GetAllItems follows offset pagination until every item has been read
func (c *Client) GetAllItems(ctx context.Context) ([]Item, error) {
	page, err := c.GetCollectionPage(ctx, 0)
	if err != nil {
		return nil, err
	}

	items := page.Items
	count, offset, total := page.Count, page.Offset, page.Total

	for pages := 1; count > 0 && count+offset < total; pages++ {
		if pages >= maxPages {
			return nil, fmt.Errorf("webflow pagination exceeded %d pages", maxPages)
		}
		offset += count
		next, err := c.GetCollectionPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		items = append(items, next.Items...)
		count = next.Count
	}

	return items, nil
}

// FetchProjects returns the active round's catalog, flattened
func (c *Client) FetchProjects(ctx context.Context) ([]CatalogItem, error) {
	items, err := c.GetAllItems(ctx)
	if err != nil {
		return nil, err
	}

	projects := make([]CatalogItem, 0, len(items))
	for _, item := range items {
		if !c.inRound(item) {
			continue
		}
		projects = append(projects, item.flatten())
	}

	slog.Info("Webflow catalog fetched",
		"collection", c.cfg.CollectionID,
		"items", len(items),
		"in_round", len(projects),
	)
	return projects, nil
}

func (c *Client) inRound(item Item) bool {
	tag := c.cfg.RoundTag
	return tag == "" || item.Round == tag || slices.Contains(item.CandidateRounds, tag)
}

func (i Item) flatten() CatalogItem {
	logo := ""
	if i.Logo != nil {
		logo = i.Logo.URL
	}
	return CatalogItem{
		ID:          i.ID,
		Slug:        i.Slug,
		Name:        i.Name,
		Description: i.Description,
		Site:        i.Site,
		LogoURL:     logo,
	}
}
