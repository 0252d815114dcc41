// Package logging provides the structured logger used across the engine,
// session and HTTP layers. It mirrors the shape of the teacher repo's
// commons.Logger (Infow/Errorw/Debugf/... on a zap.SugaredLogger) so that
// every constructor in this module takes the same Logger argument.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging contract every component in this module depends on.
// Keeping it as an interface (rather than *zap.SugaredLogger directly) lets
// tests substitute a no-op or buffered implementation.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// With returns a derived logger carrying the given keyed fields on every
	// subsequent call, e.g. l.With("slot", idx).
	With(keysAndValues ...any) Logger
}

type sugaredLogger struct {
	*zap.SugaredLogger
}

func (s *sugaredLogger) With(keysAndValues ...any) Logger {
	return &sugaredLogger{s.SugaredLogger.With(keysAndValues...)}
}

// Options controls how the production logger is assembled.
type Options struct {
	// Level is one of debug/info/warn/error; defaults to info.
	Level string
	// Development switches to a human-readable console encoder, used by tests.
	Development bool
	// LogDir, when non-empty, mirrors output to a rotating file under it in
	// addition to stdout (lumberjack: 100MB/file, 7 backups, 28 days).
	LogDir       string
	InstanceName string
}

// NewApplicationLogger builds the process-wide Logger. It never fails open:
// a bad level string falls back to info rather than aborting startup.
func NewApplicationLogger(opts Options) (Logger, func(), error) {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(opts.Level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.LogDir != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogDir + "/" + opts.InstanceName + "-asr.log",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     28,
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	zl := zap.New(core, zap.AddCaller())
	sugar := zl.Sugar()

	cleanup := func() { _ = zl.Sync() }
	return &sugaredLogger{sugar}, cleanup, nil
}

// NewTestLogger returns a Logger suitable for unit tests: development
// encoder, stdout only, debug level.
func NewTestLogger() Logger {
	l, _, _ := NewApplicationLogger(Options{Level: "debug", Development: true})
	return l
}
