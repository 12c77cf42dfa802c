package server

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// HTTPRouterAdapter wraps julienschmidt/httprouter.
type HTTPRouterAdapter struct {
	router *httprouter.Router
}

// NewHTTPRouterAdapter creates an HTTPRouter adapter.
func NewHTTPRouterAdapter() RouterAdapter {
	router := httprouter.New()
	router.HandleMethodNotAllowed = false

	return &HTTPRouterAdapter{router: router}
}

// Handle registers a route.
func (a *HTTPRouterAdapter) Handle(method, path string, handler http.Handler) {
	a.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		params := make(map[string]string, len(ps))
		for _, p := range ps {
			params[p.Key] = p.Value
		}

		handler.ServeHTTP(w, withParams(r, params))
	})
}

// Mount registers a sub-handler. httprouter has no mount, a catch-all is
// used instead.
func (a *HTTPRouterAdapter) Mount(path string, handler http.Handler) {
	mountPath := strings.TrimSuffix(path, "/") + "/*filepath"

	for _, method := range mountMethods {
		a.router.Handler(method, mountPath, handler)
	}
}

// ServeHTTP dispatches requests.
func (a *HTTPRouterAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *HTTPRouterAdapter) Close() error {
	return nil
}
