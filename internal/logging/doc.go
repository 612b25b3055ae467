// Package logging builds slog loggers with console and JSON handlers plus
// shared attribute helpers. Components derive scoped loggers via WithComponent
// so every record carries a stable component field.
package logging
