// Package config provides centralized configuration management for the
// anchord runtime: a YAML configuration file plus an immutable policy block
// that fixes the hash algorithm, canonicalization rule, Merkle layout and
// commitment defaults for the lifetime of the process.
package config
