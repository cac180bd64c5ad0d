package spotify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	api "github.com/zmb3/spotify"
	"golang.org/x/oauth2"
)

const maxErrorBody = 64 << 10

// ErrNoRefreshToken is returned when an access token is needed but no refresh token is configured.
var ErrNoRefreshToken = errors.New("no refresh token available")

// APIError is a non-2xx response from the Spotify Web API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify api: status %d: %s", e.StatusCode, e.Message)
}

// newAPIError reads the error object Spotify sends with failed requests,
// falling back to the status text when the body is not in that shape.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       body,
	}

	var payload struct {
		Error api.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
	}
	return apiErr
}

// ErrorMessage extracts the provider's explanation from err when there is one,
// otherwise it returns the error text as is.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
	}

	return err.Error()
}
