package server

import (
	"net/http"
	"strings"

	"github.com/uptrace/bunrouter"
)

// BunRouterAdapter wraps uptrace/bunrouter.
type BunRouterAdapter struct {
	router *bunrouter.Router
}

// NewBunRouterAdapter creates a BunRouter adapter (default).
func NewBunRouterAdapter() RouterAdapter {
	router := bunrouter.New(
		bunrouter.WithNotFoundHandler(func(w http.ResponseWriter, req bunrouter.Request) error {
			http.NotFound(w, req.Request)

			return nil
		}),
	)

	return &BunRouterAdapter{router: router}
}

// Handle registers a route.
func (a *BunRouterAdapter) Handle(method, path string, handler http.Handler) {
	a.router.Handle(method, convertPathToBunRouter(path), func(w http.ResponseWriter, req bunrouter.Request) error {
		params := req.Params().Map()
		if filepath, ok := params["filepath"]; ok {
			params["*"] = filepath
		}

		handler.ServeHTTP(w, withParams(req.Request, params))

		return nil
	})
}

// Mount registers a sub-handler for path and everything below it.
func (a *BunRouterAdapter) Mount(path string, handler http.Handler) {
	handlerFunc := func(w http.ResponseWriter, req bunrouter.Request) error {
		handler.ServeHTTP(w, req.Request)

		return nil
	}

	mountPath := strings.TrimSuffix(path, "/") + "/*filepath"

	for _, method := range mountMethods {
		a.router.Handle(method, path, handlerFunc)
		a.router.Handle(method, mountPath, handlerFunc)
	}
}

// ServeHTTP dispatches requests.
func (a *BunRouterAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *BunRouterAdapter) Close() error {
	return nil
}

// convertPathToBunRouter normalizes {param} to :param and names bare
// wildcards, which bunrouter requires.
func convertPathToBunRouter(path string) string {
	var result strings.Builder

	inBraces := false

	for i := range len(path) {
		ch := path[i]

		switch ch {
		case '{':
			inBraces = true

			result.WriteByte(':')
		case '}':
			if inBraces {
				inBraces = false
			} else {
				result.WriteByte(ch)
			}
		default:
			result.WriteByte(ch)
		}
	}

	path = result.String()

	if strings.HasSuffix(path, "/*") {
		path += "filepath"
	}

	return strings.ReplaceAll(path, "/*/", "/*filepath/")
}
