// Package internal contains the implementation packages behind the clips
// runtime and the clips CLI.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules. The public surface
// lives in pkg/clips (components, events, rendering) and pkg/dom (the host
// document).
//
// # Package Organization
//
//   - tmpl: compiles EJS style markup into text/template programs
//   - loop: the cooperative task queue and frame scheduler
//   - errors: ClipError and the sentinel errors matched by type and code
//   - logging: slog backed structured logging
//   - registry: append-only named registries for types and templates
//   - manifest: clip.yaml parsing and validation
//   - source: template, style and manifest readers for directories,
//     http(s) and S3
//   - metrics: Prometheus collectors for renders, lifecycle and events
//   - config: viper configuration with validation
//   - renderer: the one-shot page pipeline used by the CLI and server
//   - watcher: debounced fsnotify watching for resource changes
//   - server: the live reload preview server
//   - version: build information
//
// # Data Flow
//
// A page render reads the host page, builds a runtime over a fresh source,
// includes the requested clip at the target and runs the frame loop until
// every attach is confirmed:
//
//	config -> renderer -> clips.Runtime -> source/manifest/tmpl
//	                   -> loop (frames)  -> dom.Render
//
// The watch command and the preview server run the same pipeline again
// whenever the watcher reports changes.
package internal
