// Command sync asks the running panel server to reconcile the round's project
// catalog. It never writes to the store itself: the server's actor is the only
// writer, so approvals and ballots committed meanwhile are never overwritten.
//
// Usage:
//
//	sync [--server URL] [--token TOKEN] [--timeout 2m]
//	sync --dry-run [--round TAG]
//
// The token is an admin panelist's Discord OAuth token (PANEL_ADMIN_TOKEN).
// --dry-run fetches the catalog straight from Webflow and prints it; it needs
// WEBFLOW_API_KEY and no server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/skridlevsky/panel-vote/internal/api"
	"github.com/skridlevsky/panel-vote/internal/config"
	"github.com/skridlevsky/panel-vote/internal/webflow"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := config.LoadSyncClient()

	var (
		dryRun   bool
		roundTag string
		timeout  time.Duration
	)
	pflag.BoolVar(&dryRun, "dry-run", false, "Fetch and print the catalog from Webflow without contacting the server")
	pflag.StringVar(&roundTag, "round", "", "Round tag to filter on in --dry-run (defaults to WEBFLOW_ROUND_TAG)")
	pflag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Base URL of the running panel server (PANEL_SERVER_URL)")
	pflag.StringVar(&cfg.AdminToken, "token", cfg.AdminToken, "Admin panelist bearer token (PANEL_ADMIN_TOKEN)")
	pflag.DurationVar(&timeout, "timeout", 2*time.Minute, "Abort if the sync takes longer than this")
	pflag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if dryRun {
		if cfg.Webflow.APIKey == "" {
			log.Fatalf("Configuration error: WEBFLOW_API_KEY is required for --dry-run")
		}
		if roundTag != "" {
			cfg.Webflow.RoundTag = roundTag
		}
		if err := printCatalog(ctx, webflow.NewClient(cfg.Webflow), os.Stdout); err != nil {
			log.Fatalf("Dry run failed: %v", err)
		}
		return
	}

	if cfg.AdminToken == "" {
		log.Fatalf("Configuration error: PANEL_ADMIN_TOKEN (or --token) is required")
	}

	client := &http.Client{Timeout: timeout}

	log.Printf("Requesting catalog sync from %s...", cfg.ServerURL)
	if err := triggerSync(ctx, client, cfg.ServerURL, cfg.AdminToken); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	total, err := countProjects(ctx, client, cfg.ServerURL, cfg.AdminToken)
	if err != nil {
		log.Printf("Sync complete (project count unavailable: %v)", err)
		return
	}
	log.Printf("Sync complete: %d projects in the round", total)
}

func printCatalog(ctx context.Context, source *webflow.Client, out io.Writer) error {
	items, err := source.FetchProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to print catalog: %w", err)
	}
	slog.Info("Dry run complete, nothing written", "projects", len(items))
	return nil
}

// triggerSync calls GET /projects/sync as the admin behind token.
func triggerSync(ctx context.Context, client *http.Client, serverURL, token string) error {
	return getJSON(ctx, client, serverURL+"/projects/sync", token, nil)
}

// countProjects reads the project total the server reports after a sync.
func countProjects(ctx context.Context, client *http.Client, serverURL, token string) (int, error) {
	var resp api.ProjectsResponse
	if err := getJSON(ctx, client, serverURL+"/projects", token, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

func getJSON(ctx context.Context, client *http.Client, url, token string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope api.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, envelope.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
