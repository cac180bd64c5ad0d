package smoke

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HealthTimeout bounds a single health probe.
const HealthTimeout = 5 * time.Second

// HealthURL is the probe target for a relay listening on port.
func HealthURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// Health returns nil when url answers 200. It is meant for container health
// checks, so it uses its own timeout regardless of ctx.
func Health(ctx context.Context, client *http.Client, url string) error {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	resp, _, err := get(ctx, client, url, nil)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	return nil
}
