package logger

import (
  "fmt"

  "go.uber.org/zap"
)

// Logger wraps a sugared zap logger so call sites can attach key/value
// context with With and log with variadic key/value pairs.
type Logger struct {
  s *zap.SugaredLogger
}

func New(mode string) (*Logger, error) {
  var (
    z   *zap.Logger
    err error
  )
  switch mode {
  case "production":
    z, err = zap.NewProduction()
  case "development", "":
    z, err = zap.NewDevelopment()
  default:
    return nil, fmt.Errorf("unknown log mode %q", mode)
  }
  if err != nil {
    return nil, err
  }
  return &Logger{s: z.Sugar()}, nil
}

func (l *Logger) With(args ...interface{}) *Logger {
  return &Logger{s: l.s.With(args...)}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
  l.s.Debugw(msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
  l.s.Infow(msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
  l.s.Warnw(msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
  l.s.Errorw(msg, args...)
}

func (l *Logger) Sync() error {
  return l.s.Sync()
}
