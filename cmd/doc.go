// Package cmd implements the command-line interface for the mgLock
// hierarchical lock manager. It provides a small command structure for
// exercising and measuring the lock engine.
//
// The package is organized into several subpackages:
//
//   - bench: Commands for benchmarking the lock hierarchy under contention
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See mglock -help for a list of all commands.
package cmd
