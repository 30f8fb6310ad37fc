package interop

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
)

// Registry stores descriptor importers by file extension.
// It implements Importer by dispatching on the extension of the resolved path.
type Registry[H any] struct {
	mu   sync.RWMutex
	defs map[string]Importer[H]
}

func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{
		defs: make(map[string]Importer[H]),
	}
}

// Register registers one importer for a descriptor extension such as ".js".
func (r *Registry[H]) Register(ext string, importer Importer[H]) error {
	if r == nil {
		return fmt.Errorf("register importer: registry is nil")
	}
	ext = normalizeExt(ext)
	if ext == "" {
		return fmt.Errorf("register importer: extension is empty")
	}
	if importer == nil {
		return fmt.Errorf("register importer: importer is nil for %s", ext)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[ext]; exists {
		return fmt.Errorf("register importer: duplicate importer for %s", ext)
	}
	r.defs[ext] = importer
	return nil
}

// MustRegister panics on registration error; intended for bootstrap code paths.
func (r *Registry[H]) MustRegister(ext string, importer Importer[H]) {
	if err := r.Register(ext, importer); err != nil {
		panic(err)
	}
}

// Extensions returns the registered extensions.
func (r *Registry[H]) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.defs))
	for ext := range r.defs {
		exts = append(exts, ext)
	}
	return exts
}

func (r *Registry[H]) Import(ctx context.Context, resolved *url.URL) (Unit[H], error) {
	ext := normalizeExt(path.Ext(resolved.Path))
	r.mu.RLock()
	importer, ok := r.defs[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, ImporterNotFoundError{Ext: ext, URL: resolved.String()}
	}
	return importer.Import(ctx, resolved)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
