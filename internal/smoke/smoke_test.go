package smoke

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relay(trackStatus int, cors bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		if cors && r.Header.Get("Origin") != "" {
			w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		_, _ = w.Write([]byte(`{"status":"Server is running"}`))
	})
	mux.HandleFunc("/api/spotify/current-track", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(trackStatus)
		_, _ = w.Write([]byte(`{"name":"` + strings.Repeat("a", 300) + `"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func TestRun(t *testing.T) {
	t.Run("All Pass", func(t *testing.T) {
		srv := httptest.NewServer(relay(http.StatusOK, true))
		defer srv.Close()

		var out bytes.Buffer
		results, err := Run(context.Background(), Options{BaseURL: srv.URL + "/", Origin: "http://localhost:3000", Out: &out})
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.True(t, r.Passed, r.Name)
		}
		assert.Equal(t, 3, strings.Count(out.String(), "PASS"))
		assert.Contains(t, out.String(), "3/3 checks passed")

		assert.Equal(t, "{\n  \"status\": \"Server is running\"\n}", results[0].Sample)
		assert.Len(t, []rune(results[1].Sample), sampleLimit)
		assert.Empty(t, results[2].Sample)
		assert.Contains(t, out.String(), "Sample response: {")
	})

	t.Run("Track And CORS Fail", func(t *testing.T) {
		srv := httptest.NewServer(relay(http.StatusNotFound, false))
		defer srv.Close()

		var out bytes.Buffer
		results, err := Run(context.Background(), Options{BaseURL: srv.URL, Origin: "http://localhost:3000", Out: &out})
		require.ErrorIs(t, err, ErrChecksFailed)
		require.Len(t, results, 3)

		assert.True(t, results[0].Passed)
		assert.False(t, results[1].Passed)
		assert.Contains(t, results[1].Detail, "404")
		assert.Empty(t, results[1].Sample)
		assert.False(t, results[2].Passed)
		assert.Contains(t, out.String(), "1/3 checks passed")
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(relay(http.StatusOK, true))
		url := srv.URL
		srv.Close()

		var out bytes.Buffer
		results, err := Run(context.Background(), Options{BaseURL: url, Origin: "http://localhost:3000", Out: &out})
		require.ErrorIs(t, err, ErrUnreachable)
		assert.Empty(t, results)
		assert.Contains(t, out.String(), "server is not running")
		assert.NotContains(t, out.String(), "checks passed")
	})
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(relay(http.StatusOK, false))
	defer srv.Close()

	assert.NoError(t, Health(context.Background(), srv.Client(), srv.URL+"/health"))

	err := Health(context.Background(), srv.Client(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200")

	assert.Equal(t, "http://localhost:3001/health", HealthURL("3001"))
}
