// Package fetch implements the resource fetch primitives used to retrieve
// descriptor units and binary artifacts.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	billy "gopkg.in/src-d/go-billy.v4"
)

// Fetcher retrieves the full contents of the resource at an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, u *url.URL) ([]byte, error)

func (f Func) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	return f(ctx, u)
}

// StatusError means an HTTP fetch returned a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// UnsupportedSchemeError means no fetcher handles the URL scheme.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("fetch: unsupported url scheme %q", e.Scheme)
}

// HTTP fetches http and https URLs.
type HTTP struct {
	Client *http.Client
}

// NewHTTP returns an HTTP fetcher whose requests give up after timeout.
// A zero timeout leaves requests bounded only by ctx.
func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{Client: &http.Client{Timeout: timeout}}
}

func (h *HTTP) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return body, nil
}

// FS fetches file URLs from a billy filesystem. The URL path is taken
// relative to the filesystem root.
type FS struct {
	Root billy.Filesystem
}

func (f *FS) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	file, err := f.Root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", u, err)
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return body, nil
}

// Mux dispatches fetches by URL scheme.
type Mux struct {
	mu      sync.RWMutex
	schemes map[string]Fetcher
}

func NewMux() *Mux {
	return &Mux{schemes: make(map[string]Fetcher)}
}

// Handle registers f for each scheme, replacing any previous registration.
func (m *Mux) Handle(f Fetcher, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, scheme := range schemes {
		m.schemes[strings.ToLower(scheme)] = f
	}
}

func (m *Mux) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	scheme := strings.ToLower(u.Scheme)
	m.mu.RLock()
	f, ok := m.schemes[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, UnsupportedSchemeError{Scheme: scheme}
	}
	return f.Fetch(ctx, u)
}

// Counting records how many fetches went through to the wrapped Fetcher.
type Counting struct {
	Fetcher Fetcher

	calls atomic.Int64
	mu    sync.Mutex
	byURL map[string]int
}

func (c *Counting) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	c.calls.Add(1)
	c.mu.Lock()
	if c.byURL == nil {
		c.byURL = make(map[string]int)
	}
	c.byURL[u.String()]++
	c.mu.Unlock()
	return c.Fetcher.Fetch(ctx, u)
}

// Calls returns the total number of fetches.
func (c *Counting) Calls() int64 {
	return c.calls.Load()
}

// CallsFor returns the number of fetches of one URL.
func (c *Counting) CallsFor(u string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byURL[u]
}
