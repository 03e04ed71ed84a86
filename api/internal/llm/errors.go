package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mathsnap/api/internal/errs"
)

var ErrNoAPIKey = errors.New("llm: API key required")

// APIError is a non-success answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsModelLoading() bool { return e.StatusCode == http.StatusServiceUnavailable }

// Classify maps a provider failure onto the user-facing taxonomy.
func Classify(err error) errs.Kind {
	if err == nil {
		return ""
	}
	var ce *errs.Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrNoAPIKey) {
		return errs.Unauthorized
	}
	var ae *APIError
	if errors.As(err, &ae) {
		switch {
		case ae.IsUnauthorized():
			return errs.Unauthorized
		case ae.IsRateLimited():
			return errs.RateLimited
		case ae.IsModelLoading():
			return errs.ModelLoading
		}
	}
	return errs.TransportUnknown
}

// AsError converts err into a classified *errs.Error.
func AsError(err error) *errs.Error {
	if err == nil {
		return nil
	}
	var ce *errs.Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := Classify(err)
	e := errs.Wrap(kind, err)
	if kind == errs.TransportUnknown {
		var ae *APIError
		switch {
		case errors.As(err, &ae) && ae.Message != "":
			e.Detail = ae.Message
		case errors.Is(err, context.DeadlineExceeded):
			e.Detail = "request timed out"
		case errors.Is(err, context.Canceled):
			e.Detail = "request cancelled"
		}
	}
	return e
}
