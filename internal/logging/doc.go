// Package logging configures podbay's structured logging on top of log/slog:
// a compact console handler for interactive use, a JSON handler for log
// files, standardized field keys, and a sampler that keeps progress streams
// from flooding the output.
package logging
