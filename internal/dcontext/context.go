// Package dcontext carries a logger and request-scoped values through a
// context.Context, the way distribution/distribution's internal/dcontext
// package does.
package dcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// WithLogger returns a context with logger attached, retrievable with
// GetLogger.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger attached to ctx, or a disconnected default
// logger if none was attached. Additional key-value pairs can be requested
// from ctx by passing keys; any present in the context's value chain are
// added as fields.
func GetLogger(ctx context.Context, keys ...interface{}) logrus.FieldLogger {
	logger, ok := ctx.Value(loggerKey{}).(logrus.FieldLogger)
	if !ok {
		logger = logrus.StandardLogger()
	}

	fields := logrus.Fields{}
	for _, key := range keys {
		if v := ctx.Value(key); v != nil {
			fields[fmt(key)] = v
		}
	}

	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}

func fmt(key interface{}) string {
	if s, ok := key.(string); ok {
		return s
	}
	return "value"
}

// WithValue attaches a single key/value pair to ctx, following the stdlib
// convention of typed, unexported key types at call sites that need
// collision safety; string keys are accepted here for the common logging
// case.
func WithValue(ctx context.Context, key, value interface{}) context.Context {
	return context.WithValue(ctx, key, value)
}
