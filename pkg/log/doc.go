// Package log provides structured logging via zerolog: a package-level
// Logger initialized once with Init, plus WithSlug/WithRequestID
// helpers for child loggers carrying request context.
package log
