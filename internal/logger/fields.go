package logger

import (
	"go.uber.org/zap"
)

// Field is a structured log field.
type Field = zap.Field

// Field constructors.
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Duration = zap.Duration
	Time     = zap.Time
	Error    = zap.Error
	Any      = zap.Any
	Stringer = zap.Stringer
)

// F creates a new field (alias for Any).
func F(key string, value any) Field {
	return zap.Any(key, value)
}
