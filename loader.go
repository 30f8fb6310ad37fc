package interop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is the runtime holder for loaded module handles.
// It provides:
// 1) path resolution against a fixed base URL
// 2) lazy import, initialization, caching, and singleflight deduplication
// 3) synchronous lookup of loaded handles
//
// Handles are never evicted; the cache lives as long as the Loader.
type Loader[H any] struct {
	base     *url.URL
	importer Importer[H]
	namer    ArtifactNamer
	logger   *slog.Logger

	mu      sync.RWMutex
	handles map[string]H

	sf singleflight.Group
}

type loaderOptions struct {
	namer  ArtifactNamer
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*loaderOptions)

// WithArtifactNamer replaces DefaultArtifactNamer.
func WithArtifactNamer(namer ArtifactNamer) Option {
	return func(o *loaderOptions) {
		if namer != nil {
			o.namer = namer
		}
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *loaderOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a Loader resolving module paths against base.
func New[H any](base *url.URL, importer Importer[H], opts ...Option) (*Loader[H], error) {
	if base == nil {
		return nil, fmt.Errorf("new loader: base url is nil")
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("new loader: base url %q is not absolute", base.String())
	}
	if importer == nil {
		return nil, fmt.Errorf("new loader: importer is nil")
	}

	o := loaderOptions{
		namer:  DefaultArtifactNamer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	baseCopy := *base
	return &Loader[H]{
		base:     &baseCopy,
		importer: importer,
		namer:    o.namer,
		logger:   o.logger,
		handles:  make(map[string]H),
	}, nil
}

// Base returns a copy of the resolution base.
func (l *Loader[H]) Base() *url.URL {
	baseCopy := *l.base
	return &baseCopy
}

// Resolve returns the absolute location of path relative to the base URL.
func (l *Loader[H]) Resolve(path string) (*url.URL, error) {
	if path == "" {
		return nil, ResolutionError{Path: path, Err: ErrEmptyPath}
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, ResolutionError{Path: path, Err: err}
	}
	return l.base.ResolveReference(ref), nil
}

// Load imports and initializes the module at path unless it is already loaded.
// Concurrent calls for the same path share one in-flight load. The shared
// load is not cancelled with any caller's ctx; a cancelled caller only stops
// waiting and gets ctx.Err().
// A failed load leaves no trace, so a later call starts over.
//
// Failures are ResolutionError, LoadFailure, NamingError or InitFailure.
// LoadFailure and InitFailure unwrap to the importer or initializer error,
// so errors.Is and errors.As see the original cause.
func (l *Loader[H]) Load(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if path == "" {
		return l.fail(ctx, path, ErrEmptyPath)
	}

	if _, ok := l.Get(path); ok {
		l.logger.DebugContext(ctx, "module already loaded", "path", path)
		return nil
	}

	detached := context.WithoutCancel(ctx)
	ch := l.sf.DoChan(path, func() (any, error) {
		if _, ok := l.Get(path); ok {
			return nil, nil
		}
		return nil, l.load(detached, path)
	})
	select {
	case res := <-ch:
		if res.Shared {
			l.logger.DebugContext(ctx, "joined in-flight module load", "path", path)
		}
		return res.Err
	case <-ctx.Done():
		l.logger.WarnContext(ctx, "stopped waiting for module load", "path", path, "error", ctx.Err())
		return ctx.Err()
	}
}

func (l *Loader[H]) load(ctx context.Context, path string) error {
	start := time.Now()

	resolved, err := l.Resolve(path)
	if err != nil {
		return l.fail(ctx, path, err)
	}
	location := resolved.String()

	unit, err := l.importer.Import(ctx, resolved)
	if err != nil {
		return l.fail(ctx, path, LoadFailure{Path: path, URL: location, Err: err})
	}
	if unit == nil {
		return l.fail(ctx, path, LoadFailure{Path: path, URL: location, Err: errors.New("importer returned no unit")})
	}

	artifact, err := l.namer(location)
	if err != nil {
		return l.fail(ctx, path, err)
	}

	if err := unit.Init(ctx, artifact); err != nil {
		return l.fail(ctx, path, InitFailure{Path: path, Artifact: artifact, Err: err})
	}

	handle := unit.Exports()
	l.mu.Lock()
	l.handles[path] = handle
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "module loaded",
		"path", path,
		"url", location,
		"artifact", artifact,
		"elapsed", time.Since(start),
	)
	return nil
}

func (l *Loader[H]) fail(ctx context.Context, path string, err error) error {
	l.logger.ErrorContext(ctx, "module load failed", "path", path, "error", err)
	return err
}

// MustLoad panics on load error; intended for bootstrap code paths.
func (l *Loader[H]) MustLoad(ctx context.Context, path string) {
	if err := l.Load(ctx, path); err != nil {
		panic(err)
	}
}

// LoadAll loads paths in order and stops at the first failure.
func (l *Loader[H]) LoadAll(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := l.Load(ctx, path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Get returns the handle cached for path without triggering a load.
func (l *Loader[H]) Get(path string) (H, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handles[path]
	return h, ok
}

// Loaded returns the sorted paths of all loaded modules.
func (l *Loader[H]) Loaded() []string {
	l.mu.RLock()
	paths := make([]string, 0, len(l.handles))
	for path := range l.handles {
		paths = append(paths, path)
	}
	l.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

// GetAs is a typed wrapper around Get.
func GetAs[T any, H any](l *Loader[H], path string) (T, error) {
	var zero T
	h, ok := l.Get(path)
	if !ok {
		return zero, NotLoadedError{Path: path}
	}
	typed, ok := any(h).(T)
	if !ok {
		return zero, TypeMismatchError{
			Path:     path,
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", h),
		}
	}
	return typed, nil
}
