package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// statusResponse mirrors the modcheck GET /status model.
type statusResponse struct {
	Value         string `json:"value"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason"`
	Strategy      string `json:"strategy"`
	Engine        string `json:"engine"`
	UpdatedAt     string `json:"updated_at"`
	Age           string `json:"age"`
	Drift         int    `json:"drift"`
	DriftDetected bool   `json:"drift_detected"`
	Uptime        string `json:"uptime"`
}

func main() {
	apiURL := strings.TrimRight(os.Getenv("MODCHECK_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:5000"
	}
	// Only needed when the server protects /force-update.
	apiKey := os.Getenv("MODCHECK_API_KEY")

	s := server.NewMCPServer(
		"modcheck",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	modsTool := mcp.NewTool("mods_online",
		mcp.WithDescription("List the moderators currently online on gtid.site, one per line. Served from cache, so the answer may be up to a minute old."),
	)
	s.AddTool(modsTool, handleText(apiURL, "", "/", 10*time.Second))

	forceTool := mcp.NewTool("force_update",
		mcp.WithDescription("Re-scrape gtid.site now and return the fresh list of online moderators. Slower than mods_online and rate limited."),
	)
	s.AddTool(forceTool, handleText(apiURL, apiKey, "/force-update", 60*time.Second))

	statusTool := mcp.NewTool("scrape_status",
		mcp.WithDescription("Show how the last scrape went: outcome, failure reason, extraction strategy, engine, time of the attempt and whether the page layout changed."),
	)
	s.AddTool(statusTool, handleStatus(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiGet sends a GET request to the modcheck API and returns the response
// body. Non-200 responses are returned as errors carrying the body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func handleText(apiURL, apiKey, path string, timeout time.Duration) server.ToolHandlerFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := apiGet(ctx, client, apiURL, apiKey, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func handleStatus(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := apiGet(ctx, client, apiURL, "", "/status")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var st statusResponse
		if err := json.Unmarshal(body, &st); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Outcome: %s\n", st.Outcome)
		if st.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", st.Reason)
		}
		if st.Strategy != "" {
			fmt.Fprintf(&b, "Strategy: %s\n", st.Strategy)
		}
		if st.Engine != "" {
			fmt.Fprintf(&b, "Engine: %s\n", st.Engine)
		}
		updated := st.UpdatedAt
		if updated == "" {
			updated = "never"
		}
		if st.Age != "" {
			updated += " (" + st.Age + " ago)"
		}
		fmt.Fprintf(&b, "Updated: %s\n", updated)
		if st.DriftDetected {
			fmt.Fprintf(&b, "Layout changed: yes (distance %d)\n", st.Drift)
		}
		fmt.Fprintf(&b, "Uptime: %s\n\n%s", st.Uptime, st.Value)

		return mcp.NewToolResultText(b.String()), nil
	}
}
