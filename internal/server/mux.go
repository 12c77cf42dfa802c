package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// MuxAdapter wraps gorilla/mux.
type MuxAdapter struct {
	router *mux.Router
}

// NewMuxAdapter creates a gorilla/mux adapter.
func NewMuxAdapter() RouterAdapter {
	return &MuxAdapter{router: mux.NewRouter()}
}

// Handle registers a route.
func (a *MuxAdapter) Handle(method, path string, handler http.Handler) {
	a.router.Methods(method).Path(convertPathToBraces(path)).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, withParams(r, mux.Vars(r)))
	})
}

// Mount registers a sub-handler.
func (a *MuxAdapter) Mount(path string, handler http.Handler) {
	a.router.PathPrefix(path).Handler(handler)
}

// ServeHTTP dispatches requests.
func (a *MuxAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *MuxAdapter) Close() error {
	return nil
}
