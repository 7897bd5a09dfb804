// Package logging configures the logr/zap logger shared by the consistency
// helpers and defines the verbosity levels used with logger.V().
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels passed to logger.V().
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

// ParseLevel maps a level name to a logr verbosity. Unknown names map to INFO.
func ParseLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "trace":
		return TRACE
	default:
		return INFO
	}
}

// New builds a zap-backed logr.Logger writing to w, or stderr when w is nil.
// Verbosity is a logr level (INFO, DEBUG, TRACE).
func New(verbosity int, development bool, w io.Writer) logr.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zap.New(
		zap.UseDevMode(development),
		zap.WriteTo(w),
		zap.Level(zapcore.Level(-verbosity)),
	)
}

// NewLogger installs a logger built by New as the controller-runtime global
// logger.
func NewLogger(verbosity int, development bool, w io.Writer) {
	ctrl.SetLogger(New(verbosity, development, w))
}

// NewTestLogger installs a development logger at TRACE verbosity for test suites.
func NewTestLogger() {
	NewLogger(TRACE, true, os.Stderr)
}
