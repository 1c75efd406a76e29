package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skridlevsky/panel-vote/internal/auth"
	"github.com/skridlevsky/panel-vote/internal/discord"
	"github.com/skridlevsky/panel-vote/internal/kv"
	"github.com/skridlevsky/panel-vote/internal/webflow"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	// Key-value store
	StoreBackend   string
	DatabaseURL    string
	RedisURL       string
	RedisNamespace string

	Discord discord.Config
	Webflow webflow.Config
	Policy  auth.Policy

	// CatalogSyncInterval enables the background catalog syncer when positive
	CatalogSyncInterval time.Duration

	CORSOrigins        []string
	RateLimitPerMinute int
}

// Load reads configuration from environment variables, then overlays the
// optional POLICY_FILE. Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getLevel("LOG_LEVEL", slog.LevelInfo),

		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", kv.BackendPostgres)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisNamespace: getEnv("REDIS_NAMESPACE", "panel"),

		Discord: discord.Config{
			APIURL:   getEnv("DISCORD_API_URL", discord.DefaultAPIURL),
			GuildID:  getEnv("DISCORD_GUILD_ID", "831188872536784947"),
			BotToken: os.Getenv("DISCORD_BOT_TOKEN"),
			CacheTTL: getDuration("DISCORD_IDENTITY_TTL", 5*time.Minute),
		},
		Webflow: webflowFromEnv(),
		Policy: auth.Policy{
			Roles: auth.Roles{
				Admin:     getEnv("ROLE_ADMIN", "845026552286937119"),
				Verified:  getEnv("ROLE_VERIFIED", "831189270344630293"),
				Voter:     getEnv("ROLE_VOTER", "887005159606079489"),
				Submitter: getEnv("ROLE_SUBMITTER", "879828995833724948"),
			},
			AdminIDs:               getList("ADMIN_IDS"),
			RequireVerifiedEmail:   getBool("REQUIRE_VERIFIED_EMAIL", true),
			RequireVerifiedRole:    getBool("REQUIRE_VERIFIED_ROLE", true),
			RequireVoterRole:       getBool("REQUIRE_VOTER_ROLE", false),
			ExcludeSubmitters:      getBool("EXCLUDE_SUBMITTERS", true),
			AdminsBypassRoleChecks: getBool("ADMINS_BYPASS_ROLE_CHECKS", true),
		},

		CatalogSyncInterval: getDuration("CATALOG_SYNC_INTERVAL", 0),
		CORSOrigins:         getList("CORS_ORIGINS"),
		RateLimitPerMinute:  getInt("RATE_LIMIT_PER_MINUTE", 300),
	}

	if path := os.Getenv("POLICY_FILE"); path != "" {
		policy, err := auth.LoadFile(path, cfg.Policy)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SyncClient configures cmd/sync, which never opens the store itself: writes go
// through the running server so one actor owns the round.
type SyncClient struct {
	LogLevel   slog.Level
	ServerURL  string
	AdminToken string
	Webflow    webflow.Config
}

// LoadSyncClient reads the sync CLI's settings. Nothing is required here; the CLI
// checks what its chosen mode needs.
func LoadSyncClient() *SyncClient {
	return &SyncClient{
		LogLevel:   getLevel("LOG_LEVEL", slog.LevelInfo),
		ServerURL:  strings.TrimRight(getEnv("PANEL_SERVER_URL", "http://localhost:"+getEnv("PORT", "8080")), "/"),
		AdminToken: os.Getenv("PANEL_ADMIN_TOKEN"),
		Webflow:    webflowFromEnv(),
	}
}

func webflowFromEnv() webflow.Config {
	return webflow.Config{
		APIURL:       getEnv("WEBFLOW_API_URL", webflow.DefaultAPIURL),
		APIKey:       os.Getenv("WEBFLOW_API_KEY"),
		CollectionID: getEnv("WEBFLOW_COLLECTION_ID", "629e269eb4ffa3312c44af8e"),
		RoundTag:     getEnv("WEBFLOW_ROUND_TAG", "629e269eb4ffa3824144aff2"),
	}
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case kv.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case kv.BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case kv.BackendMemory:
		if c.Env == "production" {
			return fmt.Errorf("the memory store is not durable and cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (use postgres, redis or memory)", c.StoreBackend)
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs
func (c *Config) ValidateServer() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if c.CatalogSyncInterval > 0 && c.Webflow.APIKey == "" {
		return fmt.Errorf("WEBFLOW_API_KEY is required when CATALOG_SYNC_INTERVAL is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getList splits a comma-separated variable, dropping blanks
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getLevel(key string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return defaultValue
	}
	return level
}
