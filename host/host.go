// Package host wires the loader, the wasm importer and the fetchers into the
// process-scoped surface a host application calls: LoadModule and GetModule.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/src-d/go-billy.v4/osfs"

	interop "github.com/dev-cetera/df-wasm-interop"
	"github.com/dev-cetera/df-wasm-interop/fetch"
	"github.com/dev-cetera/df-wasm-interop/internal/config"
	"github.com/dev-cetera/df-wasm-interop/wasm"
)

// DescriptorExtensions are the descriptor formats the host understands.
// Each one names its artifact stem + "_bg.wasm": mods/calc.yaml -> mods/calc_bg.wasm.
var DescriptorExtensions = []string{".js", ".mjs", ".json", ".yaml", ".yml"}

// Interop is the host-facing module loader.
type Interop struct {
	loader   *interop.Loader[*wasm.Module]
	importer *wasm.Importer
	logger   *slog.Logger
}

// New builds an Interop from cfg. Extra wasm options, such as host modules
// required by glue imports, are applied after the config-derived ones.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...wasm.Option) (*Interop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new interop: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := cfg.Base()
	if err != nil {
		return nil, fmt.Errorf("new interop: %w", err)
	}

	mux := fetch.NewMux()
	mux.Handle(fetch.NewHTTP(cfg.HTTPTimeout), "http", "https")
	mux.Handle(&fetch.FS{Root: osfs.New(cfg.Root)}, "file")

	wasmOpts := []wasm.Option{wasm.WithLogger(logger)}
	if cfg.StrictExports {
		wasmOpts = append(wasmOpts, wasm.WithStrictExports())
	}
	wasmOpts = append(wasmOpts, opts...)
	importer, err := wasm.NewImporter(ctx, mux, wasmOpts...)
	if err != nil {
		return nil, fmt.Errorf("new interop: %w", err)
	}

	reg := interop.NewRegistry[*wasm.Module]()
	for _, ext := range DescriptorExtensions {
		reg.MustRegister(ext, importer)
	}

	loader, err := interop.New[*wasm.Module](base, reg,
		interop.WithLogger(logger),
		interop.WithArtifactNamer(interop.SuffixesNamer(interop.ArtifactSuffix, DescriptorExtensions...)),
	)
	if err != nil {
		return nil, fmt.Errorf("new interop: %w", err)
	}
	return &Interop{loader: loader, importer: importer, logger: logger}, nil
}

// LoadModule loads the module at path once; later calls return immediately.
func (i *Interop) LoadModule(ctx context.Context, path string) error {
	return i.loader.Load(ctx, path)
}

// GetModule returns a loaded module, or false if path was never loaded.
func (i *Interop) GetModule(path string) (*wasm.Module, bool) {
	return i.loader.Get(path)
}

// Loader exposes the underlying loader.
func (i *Interop) Loader() *interop.Loader[*wasm.Module] {
	return i.loader
}

// Close releases the wasm runtime. Cached handles become unusable.
func (i *Interop) Close(ctx context.Context) error {
	return i.importer.Close(ctx)
}

var (
	defaultOnce sync.Once
	defaultHost *Interop
	defaultErr  error
)

// Default returns the process-wide Interop, built on first use from the
// DF_WASM_* environment. It lives until the process exits.
func Default() (*Interop, error) {
	defaultOnce.Do(func() {
		cfg, err := config.ParseEnv()
		if err != nil {
			defaultErr = err
			return
		}
		logger, err := cfg.NewLogger(os.Stderr)
		if err != nil {
			defaultErr = err
			return
		}
		defaultHost, defaultErr = New(context.Background(), cfg, logger)
	})
	return defaultHost, defaultErr
}
