package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FetchErrorKind enumerates the fetch-stage failure classes.
type FetchErrorKind string

// Fetch-stage failure classes.
const (
	KindNetwork   FetchErrorKind = "network"
	KindTimeout   FetchErrorKind = "timeout"
	KindTooLarge  FetchErrorKind = "too_large"
	KindHTTPError FetchErrorKind = "http_error"
)

var (
	// ErrExtractionFailed means no extraction strategy produced acceptable output.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrUnsupportedContent means the content type has no extraction chain.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrStorage wraps any artifact or metadata write failure.
	ErrStorage = errors.New("storage error")
	// ErrInvalidURL marks a task URL that can never be fetched.
	ErrInvalidURL = errors.New("invalid url")
	// ErrArtifactExists means an artifact is already stored at the target
	// location. Stores return the existing location alongside it.
	ErrArtifactExists = errors.New("artifact already exists")
)

// FetchError is the typed failure returned by the fetch client.
type FetchError struct {
	Kind   FetchErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPError:
		return fmt.Sprintf("http error: status %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewHTTPError builds a FetchError for a non-2xx status.
func NewHTTPError(status int) *FetchError {
	return &FetchError{Kind: KindHTTPError, Status: status}
}

// IsRetryable reports whether a fetch failure is transient: timeouts, network
// errors and 5xx responses. TooLarge and 4xx are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidURL) {
		return false
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPError:
		return fe.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// OutcomeFor maps a fetch error to the attempt outcome used for diagnostics.
func OutcomeFor(err error) AttemptOutcome {
	if err == nil {
		return OutcomeSuccess
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return OutcomeNetworkError
	}
	switch fe.Kind {
	case KindTimeout:
		return OutcomeTimeout
	case KindTooLarge:
		return OutcomeSizeExceeded
	case KindHTTPError:
		return OutcomeHTTPError
	default:
		return OutcomeNetworkError
	}
}

// StatusForFetchError maps a terminal fetch failure to a task status.
func StatusForFetchError(err error) Status {
	switch OutcomeFor(err) {
	case OutcomeTimeout:
		return StatusTimeout
	case OutcomeHTTPError:
		return StatusHTTPError
	default:
		return StatusFetchSkipped
	}
}
