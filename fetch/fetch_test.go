package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-billy.v4/memfs"
	"gopkg.in/src-d/go-billy.v4/util"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app/mods/foo.js":
			_, _ = w.Write([]byte("export default function init() {}"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewHTTP(5 * time.Second)
	body, err := h.Fetch(context.Background(), mustURL(t, srv.URL+"/app/mods/foo.js"))
	require.NoError(t, err)
	assert.Equal(t, "export default function init() {}", string(body))

	_, err = h.Fetch(context.Background(), mustURL(t, srv.URL+"/app/mods/missing.js"))
	var statusErr StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHTTPFetchHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := (&HTTP{}).Fetch(ctx, mustURL(t, srv.URL+"/slow.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFSFetch(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "app/mods/foo_bg.wasm", []byte{0x00, 0x61, 0x73, 0x6d}, 0o644))

	f := &FS{Root: fs}
	body, err := f.Fetch(context.Background(), mustURL(t, "file:///app/mods/foo_bg.wasm"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, body)

	body, err = f.Fetch(context.Background(), mustURL(t, "file:///../../app/mods/foo_bg.wasm"))
	require.NoError(t, err, "paths are confined to the filesystem root")
	assert.Len(t, body, 4)

	_, err = f.Fetch(context.Background(), mustURL(t, "file:///app/mods/missing.wasm"))
	assert.Error(t, err)
}

func TestMuxDispatch(t *testing.T) {
	var hits []string
	record := func(name string) Fetcher {
		return Func(func(_ context.Context, u *url.URL) ([]byte, error) {
			hits = append(hits, name+":"+u.String())
			return []byte(name), nil
		})
	}

	m := NewMux()
	m.Handle(record("web"), "http", "https")
	m.Handle(record("disk"), "file")

	ctx := context.Background()
	_, err := m.Fetch(ctx, mustURL(t, "HTTPS://example.test/a.js"))
	require.NoError(t, err)
	_, err = m.Fetch(ctx, mustURL(t, "file:///a.js"))
	require.NoError(t, err)
	assert.Equal(t, []string{"web:https://example.test/a.js", "disk:file:///a.js"}, hits)

	_, err = m.Fetch(ctx, mustURL(t, "ftp://example.test/a.js"))
	var schemeErr UnsupportedSchemeError
	require.True(t, errors.As(err, &schemeErr))
	assert.Equal(t, "ftp", schemeErr.Scheme)
}

func TestCounting(t *testing.T) {
	c := &Counting{Fetcher: Func(func(context.Context, *url.URL) ([]byte, error) {
		return nil, nil
	})}
	ctx := context.Background()
	_, _ = c.Fetch(ctx, mustURL(t, "https://example.test/a.js"))
	_, _ = c.Fetch(ctx, mustURL(t, "https://example.test/a.js"))
	_, _ = c.Fetch(ctx, mustURL(t, "https://example.test/b.js"))

	assert.Equal(t, int64(3), c.Calls())
	assert.Equal(t, 2, c.CallsFor("https://example.test/a.js"))
	assert.Equal(t, 0, c.CallsFor("https://example.test/c.js"))
}
