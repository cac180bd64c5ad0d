// Package smoke checks a running relay from the outside.
package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	reachTimeout = 2 * time.Second
	sampleLimit  = 200
)

var (
	// ErrChecksFailed is returned by Run when at least one check did not pass.
	ErrChecksFailed = errors.New("smoke checks failed")
	// ErrUnreachable is returned by Run when the relay does not answer at all.
	ErrUnreachable = errors.New("server is not running")
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
)

// Options configures a smoke run.
type Options struct {
	BaseURL string
	Origin  string
	Client  *http.Client
	Out     io.Writer
}

// Result is the outcome of one check. Sample holds the start of the
// response body for endpoint checks that passed.
type Result struct {
	Name   string
	Passed bool
	Detail string
	Sample string
}

type check struct {
	name string
	run  func(ctx context.Context) (Result, error)
}

// Run first makes sure the relay answers, then executes the checks in order,
// printing one line per check followed by a summary.
func Run(ctx context.Context, opts Options) ([]Result, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	if err := reachable(ctx, opts.Client, base); err != nil {
		_, _ = fmt.Fprintf(opts.Out, "%s server is not running at %s (%v)\n", failStyle.Render("FAIL"), base, err)
		_, _ = fmt.Fprintln(opts.Out, warnStyle.Render("Start the relay with `spotify-relay serve` and run this again."))
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	_, _ = fmt.Fprintln(opts.Out, titleStyle.Render("Smoke testing "+base))

	checks := []check{
		{name: "Health Check", run: func(ctx context.Context) (Result, error) {
			return expectStatus(ctx, opts.Client, base+"/", http.StatusOK)
		}},
		{name: "Spotify Current Track", run: func(ctx context.Context) (Result, error) {
			return expectStatus(ctx, opts.Client, base+"/api/spotify/current-track", http.StatusOK)
		}},
		{name: "CORS Configuration", run: func(ctx context.Context) (Result, error) {
			resp, _, err := get(ctx, opts.Client, base+"/", http.Header{"Origin": {opts.Origin}})
			if err != nil {
				return Result{}, err
			}
			got := resp.Header.Get("Access-Control-Allow-Credentials")
			if got != "true" {
				return Result{}, fmt.Errorf("missing credentials header for %s, got %q", opts.Origin, got)
			}
			return Result{Detail: "Access-Control-Allow-Credentials: true"}, nil
		}},
	}

	results := make([]Result, 0, len(checks))
	passed := 0
	for _, c := range checks {
		res, err := c.run(ctx)
		res.Name = c.name
		res.Passed = err == nil
		if err != nil {
			res.Detail = err.Error()
			res.Sample = ""
		} else {
			passed++
		}
		results = append(results, res)
		printResult(opts.Out, res)
	}

	summary := fmt.Sprintf("%d/%d checks passed", passed, len(checks))
	if passed < len(checks) {
		_, _ = fmt.Fprintln(opts.Out, warnStyle.Render(summary))
		return results, ErrChecksFailed
	}
	_, _ = fmt.Fprintln(opts.Out, passStyle.Render(summary))
	return results, nil
}

func reachable(ctx context.Context, client *http.Client, base string) error {
	ctx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()
	_, _, err := get(ctx, client, base+"/", nil)
	return err
}

func printResult(w io.Writer, res Result) {
	label := passStyle.Render("PASS")
	if !res.Passed {
		label = failStyle.Render("FAIL")
	}
	_, _ = fmt.Fprintf(w, "%s %s (%s)\n", label, res.Name, res.Detail)
	if res.Sample != "" {
		_, _ = fmt.Fprintf(w, "   Sample response: %s...\n", res.Sample)
	}
}

func expectStatus(ctx context.Context, client *http.Client, url string, want int) (Result, error) {
	resp, body, err := get(ctx, client, url, nil)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode != want {
		return Result{}, fmt.Errorf("expected %d, got %s", want, resp.Status)
	}
	return Result{Detail: resp.Status, Sample: sample(body)}, nil
}

// sample pretty-prints a JSON body and cuts it to sampleLimit runes.
func sample(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err == nil {
		body = buf.Bytes()
	}
	runes := []rune(strings.TrimSpace(string(body)))
	if len(runes) > sampleLimit {
		runes = runes[:sampleLimit]
	}
	return string(runes)
}

// get performs a GET and returns the response with its body read and closed.
func get(ctx context.Context, client *http.Client, url string, header http.Header) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, body, nil
}
