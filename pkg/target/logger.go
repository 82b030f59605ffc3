// SPDX-License-Identifier: Apache-2.0

// Package target owns a stream's lifecycle from its declared schema through
// buffering and merging its records into Postgres.
package target

import "github.com/pterm/pterm"

// Logger is the sink's diagnostic logging surface: plain Info/Warn/Error
// calls that take a fixed message plus structured key/value args, so every
// caller states what happened instead of formatting it inline.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ptermLogger struct {
	logger pterm.Logger
}

// NewLogger returns a Logger backed by pterm's structured logger.
func NewLogger() Logger {
	return &ptermLogger{logger: pterm.DefaultLogger}
}

func (l *ptermLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (l *ptermLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.logger.Args(args...))
}

func (l *ptermLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.logger.Args(args...))
}

type noopLogger struct{}

// NewNoopLogger returns a Logger that discards everything, for tests.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
