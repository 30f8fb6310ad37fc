// Package wasm loads descriptor units whose binary artifact is a WebAssembly
// module, instantiating it with the wazero runtime. It plugs into an
// interop.Loader as an importer producing *Module handles.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	interop "github.com/dev-cetera/df-wasm-interop"
	"github.com/dev-cetera/df-wasm-interop/descriptor"
	"github.com/dev-cetera/df-wasm-interop/fetch"
)

// MissingExportError means the descriptor names a binding the artifact does not export.
type MissingExportError struct {
	Artifact string
	Name     string
}

func (e MissingExportError) Error() string {
	return fmt.Sprintf("artifact %s does not export function %q", e.Artifact, e.Name)
}

// ExportNotFoundError means Call was asked for a function the module does not expose.
type ExportNotFoundError struct {
	Module string
	Name   string
}

func (e ExportNotFoundError) Error() string {
	return fmt.Sprintf("module %s has no export %q", e.Module, e.Name)
}

// HostModule instantiates host functions that artifacts may import.
type HostModule func(ctx context.Context, r wazero.Runtime) error

type options struct {
	runtimeConfig wazero.RuntimeConfig
	hostModules   []HostModule
	logger        *slog.Logger
	strict        bool
}

// Option configures an Importer.
type Option func(*options)

func WithRuntimeConfig(cfg wazero.RuntimeConfig) Option {
	return func(o *options) { o.runtimeConfig = cfg }
}

// WithHostModule registers host functions before any artifact is instantiated.
func WithHostModule(m HostModule) Option {
	return func(o *options) { o.hostModules = append(o.hostModules, m) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStrictExports fails initialization when the descriptor names a binding
// the artifact does not export. By default such bindings are skipped.
func WithStrictExports() Option {
	return func(o *options) { o.strict = true }
}

// Importer fetches descriptors and instantiates their artifacts in one
// shared wazero runtime.
type Importer struct {
	fetcher fetch.Fetcher
	runtime wazero.Runtime
	logger  *slog.Logger
	strict  bool

	seq atomic.Uint64
}

var _ interop.Importer[*Module] = (*Importer)(nil)

// NewImporter creates the runtime and instantiates host modules.
func NewImporter(ctx context.Context, fetcher fetch.Fetcher, opts ...Option) (*Importer, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("new wasm importer: fetcher is nil")
	}
	o := options{
		runtimeConfig: wazero.NewRuntimeConfig(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, o.runtimeConfig)
	for _, host := range o.hostModules {
		if err := host(ctx, rt); err != nil {
			return nil, errors.Join(fmt.Errorf("new wasm importer: host module: %w", err), rt.Close(ctx))
		}
	}
	return &Importer{
		fetcher: fetcher,
		runtime: rt,
		logger:  o.logger,
		strict:  o.strict,
	}, nil
}

// Import fetches and parses the descriptor at resolved.
func (i *Importer) Import(ctx context.Context, resolved *url.URL) (interop.Unit[*Module], error) {
	src, err := i.fetcher.Fetch(ctx, resolved)
	if err != nil {
		return nil, err
	}
	desc, err := descriptor.Parse(resolved.Path, src)
	if err != nil {
		return nil, err
	}
	return &unit{importer: i, desc: desc, location: resolved}, nil
}

// Close releases the runtime and every module instantiated in it.
func (i *Importer) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}

type unit struct {
	importer *Importer
	desc     descriptor.Descriptor
	location *url.URL
	module   *Module
}

func (u *unit) Init(ctx context.Context, artifact string) error {
	artifactURL, err := u.location.Parse(artifact)
	if err != nil {
		return fmt.Errorf("parse artifact location %q: %w", artifact, err)
	}
	binary, err := u.importer.fetcher.Fetch(ctx, artifactURL)
	if err != nil {
		return err
	}

	rt := u.importer.runtime
	compiled, err := rt.CompileModule(ctx, binary)
	if err != nil {
		return fmt.Errorf("compile %s: %w", artifactURL, err)
	}

	names, err := u.exportNames(artifactURL.String(), compiled.ExportedFunctions())
	if err != nil {
		return errors.Join(err, compiled.Close(ctx))
	}

	name := fmt.Sprintf("%s#%d", u.desc.Name, u.importer.seq.Add(1))
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return errors.Join(fmt.Errorf("instantiate %s: %w", artifactURL, err), compiled.Close(ctx))
	}

	funcs := make(map[string]api.Function, len(names))
	for _, n := range names {
		funcs[n] = mod.ExportedFunction(n)
	}
	u.module = &Module{
		name:     u.desc.Name,
		artifact: artifactURL.String(),
		instance: mod,
		compiled: compiled,
		names:    names,
		funcs:    funcs,
	}
	return nil
}

func (u *unit) exportNames(artifact string, defs map[string]api.FunctionDefinition) ([]string, error) {
	if len(u.desc.Exports) == 0 {
		names := make([]string, 0, len(defs))
		for n := range defs {
			names = append(names, n)
		}
		sort.Strings(names)
		return names, nil
	}

	names := make([]string, 0, len(u.desc.Exports))
	for _, n := range u.desc.Exports {
		if _, ok := defs[n]; ok {
			names = append(names, n)
			continue
		}
		if u.importer.strict {
			return nil, MissingExportError{Artifact: artifact, Name: n}
		}
		u.importer.logger.Warn("descriptor export missing from artifact", "artifact", artifact, "export", n)
	}
	return names, nil
}

func (u *unit) Exports() *Module { return u.module }

// Module is the handle of an instantiated artifact.
type Module struct {
	name     string
	artifact string
	instance api.Module
	compiled wazero.CompiledModule
	names    []string
	funcs    map[string]api.Function
}

// Name is the descriptor name, usually the glue file stem.
func (m *Module) Name() string { return m.name }

// Artifact is the absolute location the binary was fetched from.
func (m *Module) Artifact() string { return m.artifact }

// Exports lists the callable function names.
func (m *Module) Exports() []string {
	return append([]string(nil), m.names...)
}

// Func returns one exported function.
func (m *Module) Func(name string) (api.Function, bool) {
	fn, ok := m.funcs[name]
	return fn, ok
}

// Call invokes an exported function with raw wasm values; see api.EncodeI32 and friends.
func (m *Module) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, ok := m.funcs[name]
	if !ok {
		return nil, ExportNotFoundError{Module: m.name, Name: name}
	}
	return fn.Call(ctx, args...)
}

// Close releases the instance. The loader keeps the handle cached, so only
// call this when the owning Importer is being shut down.
func (m *Module) Close(ctx context.Context) error {
	return errors.Join(m.instance.Close(ctx), m.compiled.Close(ctx))
}

