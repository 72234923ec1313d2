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

	"github.com/spf13/cobra"
)

type options struct {
	server     string
	token      string
	jsonOutput bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "sandboxctl",
		Short:         "Operate a MedSSI sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("MEDSSI_URL", "http://localhost:8080"), "Sandbox base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("MEDSSI_ISSUER_TOKEN"), "Issuer bearer token")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print the raw JSON response")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	root.AddCommand(newResetCmd(opts), newHealthCmd(opts))
	return root
}

func newResetCmd(opts *options) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear every credential, session and result",
		Long:  "Clears all sandbox tables. Requires --yes because the data cannot be recovered.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to reset without --yes")
			}
			var res struct {
				Timestamp time.Time `json:"timestamp"`
			}
			raw, err := call(cmd.Context(), opts, http.MethodPost, "/v2/api/system/reset", &res)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sandbox reset at %s\n", res.Timestamp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the reset")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe sandbox readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			raw, err := call(cmd.Context(), opts, http.MethodGet, "/health/ready", &res)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Status)
			for name, state := range res.Checks {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, state)
			}
			return nil
		},
	}
}

// call performs one request and decodes a 2xx body into out. Error bodies
// are reported with their status.
func call(ctx context.Context, opts *options, method, path string, out any) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(opts.server, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
