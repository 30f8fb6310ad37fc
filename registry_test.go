package interop

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatchByExtension(t *testing.T) {
	js := &testImporter{importFn: func(*url.URL) (Unit[*testExports], error) {
		return &testUnit{exports: &testExports{name: "glue"}}, nil
	}}
	manifest := &testImporter{importFn: func(*url.URL) (Unit[*testExports], error) {
		return &testUnit{exports: &testExports{name: "manifest"}}, nil
	}}

	reg := NewRegistry[*testExports]()
	require.NoError(t, reg.Register(".js", js))
	require.NoError(t, reg.Register("JSON", manifest))
	assert.ElementsMatch(t, []string{".js", ".json"}, reg.Extensions())

	l := newTestLoader(t, reg, WithArtifactNamer(func(descriptor string) (string, error) {
		return descriptor + ".wasm", nil
	}))
	ctx := context.Background()
	require.NoError(t, l.Load(ctx, "mods/a.js"))
	require.NoError(t, l.Load(ctx, "mods/b.json"))

	a, _ := l.Get("mods/a.js")
	b, _ := l.Get("mods/b.json")
	assert.Equal(t, "glue", a.name)
	assert.Equal(t, "manifest", b.name)
	assert.Equal(t, int32(1), js.callCount())
	assert.Equal(t, int32(1), manifest.callCount())

	err := l.Load(ctx, "mods/c.wat")
	var notFound ImporterNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, ".wat", notFound.Ext)
}

func TestRegistryRegisterValidation(t *testing.T) {
	var nilReg *Registry[*testExports]
	assert.Error(t, nilReg.Register(".js", &testImporter{}))

	reg := NewRegistry[*testExports]()
	assert.Error(t, reg.Register("", &testImporter{}))
	assert.Error(t, reg.Register(".js", nil))
	require.NoError(t, reg.Register(".js", &testImporter{}))
	assert.Error(t, reg.Register(".JS", &testImporter{}))
	assert.Panics(t, func() { reg.MustRegister("js", &testImporter{}) })

	reg.MustRegister(".yaml", ImporterFunc[*testExports](func(context.Context, *url.URL) (Unit[*testExports], error) {
		return nil, errors.New("unused")
	}))
}
