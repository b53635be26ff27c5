package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:8080"
	checkTimeout = 2 * time.Second
)

// health mirrors the fields of GET /api/v1/health the check relies on.
type health struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

func main() {
	if err := check(context.Background(), normalizeAddr(os.Getenv("TGVAULT_LISTEN_ADDR"))); err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		os.Exit(1)
	}
}

// check succeeds when the server answers 200 with status "ok". The vault
// state is reported but any state counts as healthy.
func check(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		return err
	}

	resp, err := (&http.Client{Timeout: checkTimeout}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var h health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if h.Status != "ok" {
		return fmt.Errorf("server reports status %q (vault %s)", h.Status, h.State)
	}
	return nil
}

// normalizeAddr points the probe at loopback when the server binds all
// interfaces, since the probe runs inside the same container.
func normalizeAddr(raw string) string {
	host, port, err := net.SplitHostPort(raw)
	if raw == "" || err != nil {
		return defaultAddr
	}

	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
