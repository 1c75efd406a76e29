package discord

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultAPIURL is Discord's REST API base
const DefaultAPIURL = "https://discord.com/api"

var (
	// ErrInvalidToken is returned when Discord rejects the caller's bearer token.
	ErrInvalidToken = errors.New("discord rejected the access token")
	// ErrNotMember is returned when the user is not in the community guild.
	ErrNotMember = errors.New("discord user is not a member of the guild")
)

// User is the subset of Discord's /users/@me object the panel uses
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email"`
	Verified      bool   `json:"verified"`
}

// GuildMember is the subset of a guild member object the panel uses
type GuildMember struct {
	Roles []string `json:"roles"`
}

// Identity is a verified user together with their guild roles
type Identity struct {
	User
	Roles []string `json:"roles"`
}

// clone copies the identity so cached entries are never shared with callers
func (i *Identity) clone() *Identity {
	c := *i
	c.Roles = append([]string{}, i.Roles...)
	return &c
}

// Config configures a Client
type Config struct {
	APIURL   string
	GuildID  string
	BotToken string
	// CacheTTL is how long a verified identity is reused for the same token.
	// Zero disables caching.
	CacheTTL time.Duration
}

// Client resolves bearer tokens to Discord identities
type Client struct {
	apiURL     string
	guildID    string
	botToken   string
	httpClient *http.Client
	cache      *ttlcache.Cache[string, *Identity]
}

// NewClient creates a new Discord API client.
// Call Stop to release the cache's expiry goroutine.
func NewClient(cfg Config) *Client {
	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	c := &Client{
		apiURL:   apiURL,
		guildID:  cfg.GuildID,
		botToken: cfg.BotToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	if cfg.CacheTTL > 0 {
		c.cache = ttlcache.New(
			ttlcache.WithTTL[string, *Identity](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, *Identity](),
		)
		go c.cache.Start()
	}

	return c
}

// Stop stops the identity cache's cleanup loop
func (c *Client) Stop() {
	if c.cache != nil {
		c.cache.Stop()
	}
}

// Verify exchanges a user's OAuth bearer token for their identity and guild roles.
func (c *Client) Verify(ctx context.Context, token string) (*Identity, error) {
	key := cacheKey(token)
	if c.cache != nil {
		if item := c.cache.Get(key); item != nil {
			return item.Value().clone(), nil
		}
	}

	var user User
	if err := c.get(ctx, c.apiURL+"/users/@me", "Bearer "+token, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch discord user: %w", err)
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}

	var member GuildMember
	url := fmt.Sprintf("%s/guilds/%s/members/%s", c.apiURL, c.guildID, user.ID)
	if err := c.get(ctx, url, "Bot "+c.botToken, &member); err != nil {
		return nil, fmt.Errorf("failed to fetch guild member %s: %w", user.ID, err)
	}

	identity := &Identity{User: user, Roles: member.Roles}
	if identity.Roles == nil {
		identity.Roles = []string{}
	}

	if c.cache != nil {
		c.cache.Set(key, identity.clone(), ttlcache.DefaultTTL)
	}

	slog.Debug("Discord identity verified", "user_id", user.ID, "roles", len(identity.Roles))
	return identity, nil
}

// get performs an authorized GET and decodes the JSON body into target
func (c *Client) get(ctx context.Context, url, authorization string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "panel-vote (https://github.com/skridlevsky/panel-vote, 1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case http.StatusUnauthorized:
		return ErrInvalidToken
	case http.StatusNotFound:
		return ErrNotMember
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discord API error %d: %s", resp.StatusCode, string(body))
	}
}

// cacheKey avoids keeping raw access tokens in memory as map keys
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
