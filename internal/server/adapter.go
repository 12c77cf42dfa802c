package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// RouterAdapter wraps a routing backend. Paths are given in :param syntax
// and converted by each adapter.
type RouterAdapter interface {
	Handle(method, path string, handler http.Handler)
	Mount(path string, handler http.Handler)
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	Close() error
}

// Backend names accepted by NewAdapter.
const (
	BackendBunRouter  = "bunrouter"
	BackendChi        = "chi"
	BackendHTTPRouter = "httprouter"
	BackendMux        = "mux"
)

// NewAdapter creates the adapter for the named backend. An empty name
// selects bunrouter.
func NewAdapter(backend string) (RouterAdapter, error) {
	switch strings.ToLower(backend) {
	case "", BackendBunRouter:
		return NewBunRouterAdapter(), nil
	case BackendChi:
		return NewChiAdapter(), nil
	case BackendHTTPRouter:
		return NewHTTPRouterAdapter(), nil
	case BackendMux, "gorilla":
		return NewMuxAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown router backend %q", backend)
	}
}

type paramsKey struct{}

func withParams(r *http.Request, params map[string]string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), paramsKey{}, params))
}

// Params returns the path parameters stored by the adapter that routed r.
func Params(r *http.Request) map[string]string {
	params, _ := r.Context().Value(paramsKey{}).(map[string]string)

	return params
}

var mountMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
	http.MethodHead,
}

// convertPathToBraces converts :param segments to {param}.
func convertPathToBraces(path string) string {
	var sb strings.Builder

	i := 0
	for i < len(path) {
		if path[i] == ':' {
			j := i + 1
			for j < len(path) && path[j] != '/' {
				j++
			}

			sb.WriteString("{" + path[i+1:j] + "}")
			i = j

			continue
		}

		sb.WriteByte(path[i])
		i++
	}

	return sb.String()
}
