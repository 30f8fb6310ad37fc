// Package config holds process configuration for the interop host: the
// resolution base, fetch settings, logging, and the optional preload list.
package config
