// Package interop provides a caching loader for generated wasm glue modules.
//
// It offers:
// - path resolution of module paths against a fixed base URL
// - pluggable descriptor importers dispatched by file extension
// - convention-based binary artifact naming (foo.js -> foo_bg.wasm)
// - lazy load, handle caching, and singleflight deduplication of in-flight loads
// - synchronous lookup of loaded handles
package interop
