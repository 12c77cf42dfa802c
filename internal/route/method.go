package route

import "net/http"

// HTTP methods accepted by route declarations.
const (
	MethodGet     = http.MethodGet
	MethodPost    = http.MethodPost
	MethodPut     = http.MethodPut
	MethodPatch   = http.MethodPatch
	MethodDelete  = http.MethodDelete
	MethodHead    = http.MethodHead
	MethodOptions = http.MethodOptions
)

// Methods lists every supported method.
var Methods = []string{
	MethodGet,
	MethodPost,
	MethodPut,
	MethodPatch,
	MethodDelete,
	MethodHead,
	MethodOptions,
}

// ValidMethod reports whether m is a supported method.
func ValidMethod(m string) bool {
	for _, method := range Methods {
		if method == m {
			return true
		}
	}

	return false
}
