package di

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/xraph/puzzle/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Token identifies a construction recipe: a constructor plus the ordered
// manifest of tokens whose instances it receives as positional arguments.
// Tokens compare by pointer identity.
type Token struct {
	name       string
	ctor       reflect.Value
	deps       []*Token
	returnsErr bool

	mu     sync.RWMutex
	config any
}

// NewToken declares a recipe. ctor must be a non-variadic func taking exactly
// len(deps) arguments and returning T or (T, error). A nil ctor declares a
// token whose instance is supplied with Registry.SetInstance.
//
// Invalid recipes panic, so mistakes surface when the declaring package is
// initialised.
func NewToken(name string, ctor any, deps ...*Token) *Token {
	if name == "" {
		panic(invalidRecipe("<unnamed>", "name cannot be empty"))
	}

	for i, dep := range deps {
		if dep == nil {
			panic(invalidRecipe(name, "dependency %d is nil", i))
		}
	}

	tok := &Token{
		name: name,
		deps: append([]*Token(nil), deps...),
	}

	if ctor == nil {
		if len(deps) > 0 {
			panic(invalidRecipe(name, "dependencies declared without a constructor"))
		}

		return tok
	}

	v := reflect.ValueOf(ctor)
	typ := v.Type()

	if typ.Kind() != reflect.Func {
		panic(invalidRecipe(name, "constructor is %s", typ))
	}

	if typ.IsVariadic() {
		panic(invalidRecipe(name, "constructor cannot be variadic"))
	}

	if typ.NumIn() != len(deps) {
		panic(invalidRecipe(name, "constructor takes %d arguments, manifest declares %d", typ.NumIn(), len(deps)))
	}

	switch typ.NumOut() {
	case 1:
	case 2:
		if typ.Out(1) != errorType {
			panic(invalidRecipe(name, "second return value must be error, got %s", typ.Out(1)))
		}

		tok.returnsErr = true
	default:
		panic(invalidRecipe(name, "constructor must return T or (T, error)"))
	}

	tok.ctor = v

	return tok
}

func invalidRecipe(name, format string, args ...any) error {
	return fmt.Errorf("di: token %q: %w: %s", name, errors.ErrInvalidFactory, fmt.Sprintf(format, args...))
}

// Name returns the token's diagnostic name.
func (t *Token) Name() string {
	if t == nil {
		return "<nil>"
	}

	return t.name
}

func (t *Token) String() string {
	return t.Name()
}

// Config returns the configuration stamped by Registry.Decorate, or nil.
func (t *Token) Config() any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.config
}

func (t *Token) stamp(config any) {
	t.mu.Lock()
	t.config = config
	t.mu.Unlock()
}

func (t *Token) hasConstructor() bool {
	return t.ctor.IsValid()
}

// construct invokes the constructor with already resolved arguments.
func (t *Token) construct(args []any) (any, error) {
	typ := t.ctor.Type()
	in := make([]reflect.Value, len(args))

	for i, arg := range args {
		want := typ.In(i)

		if arg == nil {
			in[i] = reflect.Zero(want)

			continue
		}

		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(want) {
			return nil, fmt.Errorf("%w: argument %d (%s) is %T, want %s",
				errors.ErrTypeMismatch, i, t.deps[i].Name(), arg, want)
		}

		in[i] = v
	}

	out := t.ctor.Call(in)

	if t.returnsErr && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}

	return out[0].Interface(), nil
}
