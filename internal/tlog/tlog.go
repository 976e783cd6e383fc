// Package tlog holds the package-wide structured logger used by tdbkit.
//
// The library stays silent by default (a no-op logger) so embedding it in a
// caller's process never produces unsolicited output; callers that want
// diagnostics call SetLogger with a configured *zap.Logger, and the
// command-line tool (cmd/tdbtool) installs a real one when run with --verbose.
package tlog

import "go.uber.org/zap"

var logger = zap.NewNop().Sugar()

// SetLogger replaces the package-wide logger. Passing nil restores the
// no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l.Sugar()
}

// L returns the current package-wide logger.
func L() *zap.SugaredLogger {
	return logger
}
