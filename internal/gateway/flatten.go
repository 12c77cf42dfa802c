package gateway

import (
	"fmt"
	"slices"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

// Registration is one concrete route handed to the server.
type Registration struct {
	Path    *route.Path
	Method  string
	Handler server.Handler
	Schema  *server.Schema
	// Unit names the token the handler is bound to.
	Unit string
}

// frame is one pending API unit in the flatten worklist.
type frame struct {
	token    *di.Token
	prefix   *route.Path
	ancestry []*di.Token
}

// Flatten resolves the API tree of cfg and returns its registrations in
// pre-order: each unit's own routes, then its sub-APIs in declaration order.
// A sub-API listed below itself fails with a cyclic sub-api error.
func Flatten(reg *di.Registry, cfg *Config) ([]Registration, error) {
	if cfg == nil {
		return nil, nil
	}

	stack := make([]frame, 0, len(cfg.Api.Handlers))
	for _, tok := range slices.Backward(cfg.Api.Handlers) {
		stack = append(stack, frame{token: tok, prefix: cfg.Api.RoutePrefix})
	}

	var out []Registration

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if slices.Contains(f.ancestry, f.token) {
			return nil, errors.ErrCyclicSubApi(tokenNames(append(slices.Clone(f.ancestry), f.token)))
		}

		api, instance, err := resolveApi(reg, f.token)
		if err != nil {
			return nil, err
		}

		mount := join(f.prefix, api.Config().Route)

		for _, entry := range Routes(reg, f.token) {
			handler, err := entry.Bind(instance)
			if err != nil {
				return nil, errors.NewServiceError(f.token.Name(), "bind", err)
			}

			for _, p := range entry.Paths {
				out = append(out, Registration{
					Path:    join(mount, p),
					Method:  entry.Method,
					Handler: handler,
					Schema:  entry.Schema,
					Unit:    f.token.Name(),
				})
			}
		}

		ancestry := append(slices.Clone(f.ancestry), f.token)
		for _, sub := range slices.Backward(api.Config().SubApis) {
			stack = append(stack, frame{token: sub, prefix: mount, ancestry: ancestry})
		}
	}

	return out, nil
}

func resolveApi(reg *di.Registry, tok *di.Token) (*Api, any, error) {
	instance, err := reg.Resolve(tok)
	if err != nil {
		return nil, nil, err
	}

	unit, ok := instance.(ApiUnit)
	if !ok {
		return nil, nil, errors.NewServiceError(tok.Name(), "resolve",
			fmt.Errorf("%w: got %T", errors.ErrNotAnApi, instance))
	}

	api := unit.ApiBase()
	if api.Config() == nil {
		return nil, nil, &errors.MissingConfigurationError{Unit: tok.Name()}
	}

	return api, instance, nil
}

// join appends p to prefix; a nil operand is identity. A bare "/" names
// the root of prefix, so "/api/items" joined with "/" stays "/api/items".
func join(prefix, p *route.Path) *route.Path {
	switch {
	case prefix == nil && p == nil:
		return nil
	case prefix == nil:
		return p.Append(nil)
	case p.String() == "/":
		return prefix.Append(nil)
	default:
		return prefix.Append(p)
	}
}

func tokenNames(tokens []*di.Token) []string {
	names := make([]string, len(tokens))
	for i, tok := range tokens {
		names[i] = tok.Name()
	}

	return names
}
