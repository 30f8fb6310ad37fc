// Package cli is responsible for parsing command-line arguments, validating
// user input, and running the wasminterop command. It translates CLI flags
// into the host configuration and reports failures as exit codes.
package cli
