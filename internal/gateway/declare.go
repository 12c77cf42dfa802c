package gateway

import (
	"fmt"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

// RouteEntry is one declared route of a unit. Bind turns the declared
// method into a handler on the resolved instance.
type RouteEntry struct {
	Paths  []*route.Path
	Method string
	Bind   func(instance any) (server.Handler, error)
	Schema *server.Schema
}

// DeclareApi registers tok as an API unit and stamps cfg onto it.
func DeclareApi(reg *di.Registry, tok *di.Token, cfg *ApiConfig) *di.Token {
	return reg.Decorate(func(t *di.Token) {
		reg.Logger().Info("registering api", logger.String("api", t.Name()))
	}, cfg)(tok)
}

// DeclareGateway registers tok as a gateway unit and stamps cfg onto it.
func DeclareGateway(reg *di.Registry, tok *di.Token, cfg *Config) *di.Token {
	return reg.Decorate(func(t *di.Token) {
		reg.Logger().Info("registering gateway", logger.String("gateway", t.Name()))
	}, cfg)(tok)
}

// Route helpers take a method expression on the unit type, for example
// (*ProductApi).List, and bind it to the resolved instance at start.

// Get attaches a GET route to tok.
func Get[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodGet, paths, h, schema)
}

// Post attaches a POST route to tok.
func Post[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodPost, paths, h, schema)
}

// Put attaches a PUT route to tok.
func Put[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodPut, paths, h, schema)
}

// Patch attaches a PATCH route to tok.
func Patch[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodPatch, paths, h, schema)
}

// Delete attaches a DELETE route to tok.
func Delete[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodDelete, paths, h, schema)
}

// Head attaches a HEAD route to tok.
func Head[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodHead, paths, h, schema)
}

// Options attaches an OPTIONS route to tok.
func Options[T any](reg *di.Registry, tok *di.Token, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema ...*server.Schema) {
	attachRoute(reg, tok, route.MethodOptions, paths, h, schema)
}

// attachRoute panics on a malformed declaration, like di.NewToken.
func attachRoute[T any](reg *di.Registry, tok *di.Token, method string, paths []*route.Path, h func(T, *server.Request, *server.Reply) error, schema []*server.Schema) {
	if h == nil {
		panic(fmt.Sprintf("gateway: nil %s handler on %s", method, tok.Name()))
	}

	if len(paths) == 0 {
		panic(fmt.Sprintf("gateway: %s route on %s declares no paths", method, tok.Name()))
	}

	entry := RouteEntry{
		Paths:  append([]*route.Path(nil), paths...),
		Method: method,
		Bind: func(instance any) (server.Handler, error) {
			recv, ok := instance.(T)
			if !ok {
				var zero T

				return nil, fmt.Errorf("%w: %s handler expects %T, got %T", errors.ErrTypeMismatch, tok.Name(), zero, instance)
			}

			return func(req *server.Request, reply *server.Reply) error {
				return h(recv, req, reply)
			}, nil
		},
	}

	if len(schema) > 0 {
		entry.Schema = schema[0]
	}

	reg.Attach(tok, entry)
}

// Routes returns the route entries attached to tok in declaration order.
func Routes(reg *di.Registry, tok *di.Token) []RouteEntry {
	var entries []RouteEntry

	for _, meta := range reg.Attachments(tok) {
		if entry, ok := meta.(RouteEntry); ok {
			entries = append(entries, entry)
		}
	}

	return entries
}
