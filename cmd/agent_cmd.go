package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobrunner/internal/appconfig"
)

// agentCmd talks to a running `serve` process over its HTTP API, since the
// agent registry lives only in that process's memory — unlike job_cmd,
// which opens the durable store directly.
func agentCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agent",
		Short: "Inspect registered execution agents on a running server",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List agents known to the running server's registry",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			body, err := apiGet(c, cfg, "/api/agents")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}

	connections := &cobra.Command{
		Use:   "connections",
		Short: "List registered SQL connections on the running server",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			body, err := apiGet(c, cfg, "/api/connections")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}

	root.AddCommand(list, connections)
	return root
}

// apiGet issues an authenticated GET against the local API server and
// returns the pretty-printed response body.
func apiGet(c *cobra.Command, cfg *appconfig.Config, path string) ([]byte, error) {
	addr := cfg.ListenAddr
	if addr[0] == ':' {
		addr = "http://127.0.0.1" + addr
	} else if len(addr) < 4 || addr[:4] != "http" {
		addr = "http://" + addr
	}

	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, addr+path, nil)
	if err != nil {
		return nil, err
	}
	if cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %s: %s", path, resp.Status, raw)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw, nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw, nil
	}
	return pretty, nil
}
