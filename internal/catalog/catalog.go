// Package catalog defines the contract between the query executor and a
// remote imagery catalog, and the error taxonomy every backend reports in.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/robert-malhotra/planet-overlap/internal/filter"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// Page is one page of validated scenes.
type Page struct {
	Scenes []scene.Scene
	// Skipped counts records dropped by schema validation.
	Skipped int
	// Next is an opaque continuation cursor; empty on the last page.
	Next string
}

// Client is a paginated catalog search backend.
type Client interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Search issues the first request for a predicate.
	Search(ctx context.Context, pred *filter.Predicate) (*Page, error)

	// FetchNext follows a continuation cursor returned in Page.Next.
	FetchNext(ctx context.Context, cursor string) (*Page, error)
}

// Kind classifies a catalog failure by how the caller should react.
type Kind int

const (
	// KindTransient failures are retried with backoff.
	KindTransient Kind = iota
	// KindPermanent failures fail the partition without retrying.
	KindPermanent
	// KindFatal failures abort the whole run.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors matched by errors.Is against an *Error.
var (
	ErrTransient = errors.New("transient catalog error")
	ErrPermanent = errors.New("permanent catalog error")
	ErrFatal     = errors.New("fatal catalog error")
)

// Error is a classified catalog failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s catalog error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s catalog error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrPermanent:
		return e.Kind == KindPermanent
	case ErrFatal:
		return e.Kind == KindFatal
	}
	return false
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(status int, body string) *Error {
	kind := KindPermanent
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindFatal
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		kind = KindTransient
	case status >= 500:
		kind = KindTransient
	}
	return &Error{Kind: kind, StatusCode: status, Message: body}
}

// FromTransport classifies an error returned by http.Client.Do or while
// reading a response body. Timeouts, resets and other network failures are
// transient. Cancellation of the caller's context is returned unchanged so
// it is never retried.
func FromTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := "request failed"
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		msg = "request timed out"
	}
	return &Error{Kind: KindTransient, Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}

// KindOf returns the kind of a classified error, or false when err is not one.
func KindOf(err error) (Kind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return 0, false
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
