package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/doomclock/internal/api"
	"github.com/kalambet/doomclock/internal/config"
	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/session"
	"github.com/kalambet/doomclock/internal/storage"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server and the agent are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}
		showStatus(cmd.Context(), cfg, &http.Client{Timeout: 2 * time.Second})
		return nil
	},
}

func showStatus(ctx context.Context, cfg config.Config, client *http.Client) {
	serverURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	if code, err := probe(ctx, client, serverURL); err != nil {
		printStatus("Server", "stopped")
	} else if code == http.StatusOK {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "error (HTTP %d)", code)
	}

	if cfg.Agent.Provider == "ollama" {
		if _, err := probe(ctx, client, cfg.Agent.BaseURL+"/api/tags"); err != nil {
			printWarning("ollama not running at %s", cfg.Agent.BaseURL)
		} else {
			printStatus("Agent", "ollama at %s", cfg.Agent.BaseURL)
		}
	} else {
		printStatus("Agent", "%s", cfg.Agent.Provider)
	}
	printStatus("Model", "%s", cfg.Agent.Model)
	printStatus("Guestbook", "%s", cfg.Storage.GuestbookBackend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
}

func probe(ctx context.Context, client *http.Client, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// --- result ---

var resultCmd = &cobra.Command{
	Use:   "result <session-id>",
	Short: "Show the analysis result of a session",
	Long: `Show the analysis result of a session.

Examples:
  doomclock result 3f0c2a
  doomclock result 3f0c2a --wait 2m
  doomclock result 3f0c2a --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if wait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
		}

		out, err := awaitResult(ctx, client, args[0], resultPollInterval, wait > 0)
		if err != nil {
			return err
		}
		return printResult(os.Stdout, out, asJSON)
	},
}

const resultPollInterval = 2 * time.Second

func init() {
	resultCmd.Flags().Duration("wait", 0, "poll until the analysis finishes or this long has passed")
	resultCmd.Flags().Bool("json", false, "print raw JSON")
}

func fetchResult(ctx context.Context, c *apiClient, sid string) (session.Outcome, error) {
	resp, err := c.get(ctx, "/result/"+url.PathEscape(sid))
	if err != nil {
		return session.Outcome{}, err
	}
	var out session.Outcome
	if err := decodeJSON(resp, &out); err != nil {
		return session.Outcome{}, err
	}
	return out, nil
}

// awaitResult fetches once, or keeps polling while the session is analyzing
// when wait is set. A deadline on ctx returns the last analyzing outcome.
func awaitResult(ctx context.Context, c *apiClient, sid string, interval time.Duration, wait bool) (session.Outcome, error) {
	var last *session.Outcome
	for {
		out, err := fetchResult(ctx, c, sid)
		if err != nil {
			if last != nil && ctx.Err() != nil {
				return *last, nil
			}
			return session.Outcome{}, err
		}
		if !wait || out.Status != storage.StatusAnalyzing {
			return out, nil
		}
		last = &out
		select {
		case <-ctx.Done():
			return out, nil
		case <-time.After(interval):
		}
	}
}

func printResult(w io.Writer, out session.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if out.Status == storage.StatusAnalyzing {
		fmt.Fprintf(w, "Session %s is still analyzing.\n", out.SessionID)
		return nil
	}
	renderOutcome(w, out)
	return nil
}

// --- guestbook ---

var guestbookCmd = &cobra.Command{
	Use:   "guestbook",
	Short: "Read and react to the guestbook",
}

var guestbookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List guestbook entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		page, err := listGuestbook(cmd.Context(), client, limit, cursor)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		}
		renderPage(os.Stdout, page)
		return nil
	},
}

var guestbookReactCmd = &cobra.Command{
	Use:   "react <entry-id> <created-at> <emoji>",
	Short: "Add an emoji reaction to an entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		reactions, err := react(cmd.Context(), client, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		printSuccess("Reactions: %s", formatReactions(reactions))
		return nil
	},
}

func init() {
	guestbookListCmd.Flags().Int("limit", guestbook.DefaultLimit, "entries per page (1-100)")
	guestbookListCmd.Flags().String("cursor", "", "next cursor from a previous page")
	guestbookListCmd.Flags().Bool("json", false, "print raw JSON")

	guestbookCmd.AddCommand(guestbookListCmd)
	guestbookCmd.AddCommand(guestbookReactCmd)
}

func listGuestbook(ctx context.Context, c *apiClient, limit int, cursor string) (guestbook.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	resp, err := c.get(ctx, "/guestbook?"+q.Encode())
	if err != nil {
		return guestbook.Page{}, err
	}
	var page guestbook.Page
	if err := decodeJSON(resp, &page); err != nil {
		return guestbook.Page{}, err
	}
	return page, nil
}

func react(ctx context.Context, c *apiClient, entryID, createdAt, emoji string) (map[string]int64, error) {
	resp, err := c.post(ctx, "/guestbook/"+url.PathEscape(entryID)+"/reaction", api.ReactionRequest{
		Emoji:     emoji,
		CreatedAt: createdAt,
	})
	if err != nil {
		return nil, err
	}
	var out api.ReactionResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Reactions, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
