// Command healthcheck probes the bot's HTTP server for container health checks.
// It exits 0 when the probed endpoint answers 200. HEALTHCHECK_PATH selects the
// endpoint (default /healthz; use /readyz to also require a joined channel).
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	url := probeURL(os.Getenv("HTTP_ADDR"), os.Getenv("HEALTHCHECK_PATH"))
	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// probeURL turns a listen address such as ":8080" or "0.0.0.0:8080" into a
// loopback URL.
func probeURL(addr, path string) string {
	if addr == "" || addr == "off" {
		addr = ":8080"
	}
	if path == "" {
		path = "/healthz"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080" + path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + path
}
