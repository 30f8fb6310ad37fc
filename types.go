package interop

import (
	"context"
	"net/url"
)

// Unit is a loaded descriptor that has not been initialized yet.
// Init receives the binary artifact location derived from the descriptor path.
// Exports is only called after Init succeeded.
type Unit[H any] interface {
	Init(ctx context.Context, artifact string) error
	Exports() H
}

// Importer fetches and parses the descriptor at an absolute location.
type Importer[H any] interface {
	Import(ctx context.Context, resolved *url.URL) (Unit[H], error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc[H any] func(ctx context.Context, resolved *url.URL) (Unit[H], error)

func (f ImporterFunc[H]) Import(ctx context.Context, resolved *url.URL) (Unit[H], error) {
	return f(ctx, resolved)
}

// ArtifactNamer maps a resolved descriptor location to its binary artifact location.
type ArtifactNamer func(descriptor string) (string, error)
