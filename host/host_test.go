package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	interop "github.com/dev-cetera/df-wasm-interop"
	"github.com/dev-cetera/df-wasm-interop/internal/config"
)

var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

const addGlue = "export function add(a, b) { return wasm.add(a, b); }\nexport default __wbg_init;\n"

func testConfig(base, root string) config.Config {
	return config.Config{
		BaseURL:     base,
		Root:        root,
		HTTPTimeout: 5 * time.Second,
		LogLevel:    "error",
		LogFormat:   "text",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, name string, body []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, body, 0o644))
}

func TestInteropFromDisk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/mods/foo.js", []byte(addGlue))
	writeFile(t, root, "app/mods/foo_bg.wasm", addWasm)

	ctx := context.Background()
	h, err := New(ctx, testConfig("file:///app/", root), quietLogger())
	require.NoError(t, err)
	defer h.Close(ctx)

	_, ok := h.GetModule("mods/foo.js")
	assert.False(t, ok)

	require.NoError(t, h.LoadModule(ctx, "mods/foo.js"))
	mod, ok := h.GetModule("mods/foo.js")
	require.True(t, ok)
	res, err := mod.Call(ctx, "add", api.EncodeI32(40), api.EncodeI32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(42), api.DecodeI32(res[0]))
	assert.Equal(t, []string{"mods/foo.js"}, h.Loader().Loaded())

	err = h.LoadModule(ctx, "mods/bad.js")
	var loadErr interop.LoadFailure
	require.True(t, errors.As(err, &loadErr))
	_, ok = h.GetModule("mods/bad.js")
	assert.False(t, ok)

	err = h.LoadModule(ctx, "mods/foo.wat")
	var notFound interop.ImporterNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestInteropDescriptorFormats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/mods/calc.json", []byte(`{"name": "calc", "exports": ["add"]}`))
	writeFile(t, root, "app/mods/calc.yaml", []byte("exports:\n  - add\n"))
	writeFile(t, root, "app/mods/glue.mjs", []byte(addGlue))
	writeFile(t, root, "app/mods/calc_bg.wasm", addWasm)
	writeFile(t, root, "app/mods/glue_bg.wasm", addWasm)

	ctx := context.Background()
	h, err := New(ctx, testConfig("file:///app/", root), quietLogger())
	require.NoError(t, err)
	defer h.Close(ctx)

	for _, path := range []string{"mods/calc.json", "mods/calc.yaml", "mods/glue.mjs"} {
		require.NoError(t, h.LoadModule(ctx, path), path)
		mod, ok := h.GetModule(path)
		require.True(t, ok, path)
		assert.Equal(t, []string{"add"}, mod.Exports(), path)

		res, err := mod.Call(ctx, "add", api.EncodeI32(1), api.EncodeI32(2))
		require.NoError(t, err, path)
		assert.Equal(t, int32(3), api.DecodeI32(res[0]), path)
	}

	calc, _ := h.GetModule("mods/calc.yaml")
	assert.Equal(t, "file:///app/mods/calc_bg.wasm", calc.Artifact())
}

func TestInteropOverHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/app/mods/foo.js":
			_, _ = io.WriteString(w, addGlue)
		case "/app/mods/foo_bg.wasm":
			w.Header().Set("Content-Type", "application/wasm")
			_, _ = w.Write(addWasm)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	h, err := New(ctx, testConfig(srv.URL+"/app/", t.TempDir()), quietLogger())
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, h.LoadModule(ctx, "mods/foo.js"))
	require.NoError(t, h.LoadModule(ctx, "mods/foo.js"))
	assert.Equal(t, int32(2), hits.Load())

	mod, ok := h.GetModule("mods/foo.js")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/app/mods/foo_bg.wasm", mod.Artifact())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), testConfig("relative/", t.TempDir()), quietLogger())
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mods/foo.js", []byte(addGlue))
	writeFile(t, root, "mods/foo_bg.wasm", addWasm)
	t.Setenv("DF_WASM_ROOT", root)
	t.Setenv("DF_WASM_LOG_LEVEL", "error")

	h, err := Default()
	require.NoError(t, err)
	again, err := Default()
	require.NoError(t, err)
	assert.True(t, h == again, "default interop is a process singleton")

	require.NoError(t, h.LoadModule(context.Background(), "mods/foo.js"))
	_, ok := again.GetModule("mods/foo.js")
	assert.True(t, ok)
}
