// Package telemetry provides the structured logger used across the peer:
// the transport accept loop, the DHT RPC handlers, and the maintenance
// loops all log through the same narrow interface so the backing
// implementation can be swapped in tests.
package telemetry

import (
	"go.uber.org/zap"
)

// Logger is the minimal structured-logging surface the rest of the
// repository depends on.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZap builds a Logger backed by a production zap.Logger.
func NewZap() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{s: l.Sugar()}
}

// NewZapDevelopment builds a Logger with human-friendly console output,
// used by cmd/kadpeer when run interactively.
func NewZapDevelopment() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Debugf(format string, args ...any) { z.s.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.s.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.s.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.s.Errorf(format, args...) }

type nop struct{}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger { return nop{} }

func (nop) Debugf(string, ...any) {}
func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Errorf(string, ...any) {}
