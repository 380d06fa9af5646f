package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// errIMSINotDigits rejects subscriber identifiers with non-digit characters
// before they reach the wire.
var errIMSINotDigits = errors.New("imsi must contain only digits")

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check pgwd liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := adminGet(cmd.Context(), "/health", nil)
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			fmt.Println(body)
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <imsi>",
		Short: "Check whether a subscriber session is active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imsi := args[0]
			if !isDigits(imsi) {
				return fmt.Errorf("%q: %w", imsi, errIMSINotDigits)
			}

			body, err := adminGet(cmd.Context(), "/check_subscriber", url.Values{"imsi": {imsi}})
			if err != nil {
				return fmt.Errorf("check subscriber: %w", err)
			}
			fmt.Println(body)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	var rate int

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Start a graceful session offload on pgwd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := url.Values{}
			if rate > 0 {
				params.Set("rate", strconv.Itoa(rate))
			}

			body, err := adminPost(cmd.Context(), "/stop", params)
			if err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			fmt.Println(body)
			return nil
		},
	}

	cmd.Flags().IntVar(&rate, "rate", 0,
		"sessions offloaded per second (0 uses the server default)")

	return cmd
}

// adminGet issues a GET against the admin plane and returns the body text.
func adminGet(ctx context.Context, path string, params url.Values) (string, error) {
	return adminDo(ctx, http.MethodGet, path, params)
}

// adminPost issues a POST against the admin plane and returns the body text.
func adminPost(ctx context.Context, path string, params url.Values) (string, error) {
	return adminDo(ctx, http.MethodPost, path, params)
}

func adminDo(ctx context.Context, method, path string, params url.Values) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := url.URL{
		Scheme:   "http",
		Host:     adminAddr,
		Path:     path,
		RawQuery: params.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, u.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(body))
	}
	return string(body), nil
}

// isDigits reports whether s is non-empty ASCII digits only.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
