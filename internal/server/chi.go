package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ChiAdapter wraps go-chi/chi router.
type ChiAdapter struct {
	router chi.Router
}

// NewChiAdapter creates a Chi router adapter.
func NewChiAdapter() RouterAdapter {
	return &ChiAdapter{router: chi.NewRouter()}
}

// Handle registers a route.
func (a *ChiAdapter) Handle(method, path string, handler http.Handler) {
	a.router.Method(method, convertPathToBraces(path), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if i < len(rctx.URLParams.Values) {
					params[key] = rctx.URLParams.Values[i]
				}
			}
		}

		handler.ServeHTTP(w, withParams(r, params))
	}))
}

// Mount registers a sub-handler.
func (a *ChiAdapter) Mount(path string, handler http.Handler) {
	a.router.Mount(path, handler)
}

// ServeHTTP dispatches requests.
func (a *ChiAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *ChiAdapter) Close() error {
	return nil
}
