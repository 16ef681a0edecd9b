package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int8

type Logger = *zap.SugaredLogger

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

// New returns a sugared logger writing JSON to stdout at the given level
func New(level Level) Logger {
	return NewZapLogger(level).Sugar()
}

func NewZapLogger(level Level) *zap.Logger {
	core := zap.NewProductionConfig()
	core.Level = zap.NewAtomicLevelAt(getLevel(level))
	core.EncoderConfig.TimeKey = "timestamp"
	core.EncoderConfig.MessageKey = "message"
	core.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := core.Build()
	return logger
}

var log Logger

func init() {
	Config(InfoLevel)
}

// Config sets configurations for the global logger
func Config(level Level) {
	customLog := NewZapLogger(level)
	log = customLog.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// WithGlobal adds a variadic number of key-value fields to the global logging context
func WithGlobal(args ...interface{}) {
	log = log.With(args...)
}

// With returns a logger with the given key-value fields added to its context
func With(args ...interface{}) Logger {
	return log.With(args...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return log.Sync()
}

func Debug(args ...interface{}) {
	log.Debug(args...)
}

func Info(args ...interface{}) {
	log.Info(args...)
}

func Warn(args ...interface{}) {
	log.Warn(args...)
}

func Error(args ...interface{}) {
	log.Error(args...)
}

func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

func Debugf(template string, args ...interface{}) {
	log.Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	log.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	log.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	log.Errorf(template, args...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	log.Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	log.Infow(msg, keysAndValues...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	log.Warnw(msg, keysAndValues...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	log.Errorw(msg, keysAndValues...)
}

func Fatalw(msg string, keysAndValues ...interface{}) {
	log.Fatalw(msg, keysAndValues...)
}

func getLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
