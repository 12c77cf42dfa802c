package di

import (
	"fmt"

	"github.com/xraph/puzzle/errors"
)

// Resolve with type safety.
func Resolve[T any](r *Registry, tok *Token) (T, error) {
	var zero T

	instance, err := r.Resolve(tok)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: token %s is %T, not %T", errors.ErrTypeMismatch, tok.Name(), instance, zero)
	}

	return typed, nil
}

// MustResolve resolves or panics. Use only during startup.
func MustResolve[T any](r *Registry, tok *Token) T {
	instance, err := Resolve[T](r, tok)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", tok.Name(), err))
	}

	return instance
}
