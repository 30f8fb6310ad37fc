package interop

import (
	"errors"
	"fmt"
)

// ErrEmptyPath is returned when a module path is empty.
var ErrEmptyPath = errors.New("module path is empty")

// ResolutionError means a module path could not be resolved against the base URL.
type ResolutionError struct {
	Path string
	Err  error
}

func (e ResolutionError) Error() string {
	return fmt.Sprintf("resolve module path %q: %v", e.Path, e.Err)
}

func (e ResolutionError) Unwrap() error { return e.Err }

// LoadFailure means the descriptor unit could not be fetched or parsed.
type LoadFailure struct {
	Path string
	URL  string
	Err  error
}

func (e LoadFailure) Error() string {
	return fmt.Sprintf("load module %q from %s: %v", e.Path, e.URL, e.Err)
}

func (e LoadFailure) Unwrap() error { return e.Err }

// NamingError means no artifact location could be derived from a descriptor location.
type NamingError struct {
	Descriptor string
	Reason     string
}

func (e NamingError) Error() string {
	return fmt.Sprintf("derive artifact path from %q: %s", e.Descriptor, e.Reason)
}

// InitFailure means the unit initializer rejected the binary artifact.
type InitFailure struct {
	Path     string
	Artifact string
	Err      error
}

func (e InitFailure) Error() string {
	return fmt.Sprintf("initialize module %q with %s: %v", e.Path, e.Artifact, e.Err)
}

func (e InitFailure) Unwrap() error { return e.Err }

// ImporterNotFoundError means no importer is registered for a descriptor extension.
type ImporterNotFoundError struct {
	Ext string
	URL string
}

func (e ImporterNotFoundError) Error() string {
	return fmt.Sprintf("no importer registered for extension %q (%s)", e.Ext, e.URL)
}

// TypeMismatchError means GetAs[T] failed to cast the loaded handle to T.
type TypeMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("module handle type mismatch for %q: expected=%s actual=%s",
		e.Path, e.Expected, e.Actual)
}

// NotLoadedError means a handle was requested for a path that was never loaded.
type NotLoadedError struct {
	Path string
}

func (e NotLoadedError) Error() string {
	return fmt.Sprintf("module not loaded: %q", e.Path)
}
