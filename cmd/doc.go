// Package cmd implements the command-line interface avst. It provides a
// hierarchical command structure for talking to a database over VST and for
// running a local mock endpoint.
//
// The package is organized into several subpackages:
//
//   - db: Requests against a server (version, exec, collection and doc operations, perf)
//   - serve: Starts the in-memory mock database behind a VST endpoint
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the AVST_ prefix,
// .env and .env.local files are loaded on start.
//
// See avst -help for a list of all commands.
package cmd
