// Package artifact resolves screenshot artifact keys into retrievable URLs.
// Resolution is per-key and best effort; a failed key is skipped by callers,
// never fatal.
package artifact

import (
	"net/url"
	"strings"

	"github.com/testflow/testflow/errors"
)

// Resolver turns an opaque artifact key into a retrievable URL
type Resolver interface {
	Resolve(key string) (string, error)
}

// BaseURLResolver joins artifact keys onto a configured base URL
type BaseURLResolver struct {
	baseURL string
}

var _ Resolver = (*BaseURLResolver)(nil)

// NewBaseURLResolver creates a resolver rooted at baseURL
func NewBaseURLResolver(baseURL string) *BaseURLResolver {
	return &BaseURLResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve returns the retrievable URL for an artifact key
func (r *BaseURLResolver) Resolve(key string) (string, error) {
	if key == "" {
		return "", errors.NewInvalidRequestError("artifact key cannot be empty")
	}
	if r.baseURL == "" {
		return "", errors.New("artifact base URL not configured")
	}

	escaped := url.PathEscape(key)
	// Keys are slash-separated paths; keep the separators readable
	escaped = strings.ReplaceAll(escaped, "%2F", "/")

	return r.baseURL + "/" + escaped, nil
}
