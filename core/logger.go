package core

import (
	"go.uber.org/zap"
)

// threadFields returns the common structured fields for thread lifecycle logs.
func threadFields(rt *Runtime, name string, kind string) []zap.Field {
	return []zap.Field{
		zap.String("runtime", rt.cfg.name),
		zap.String("thread", name),
		zap.String("kind", kind),
	}
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
