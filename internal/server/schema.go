package server

// Schema is the request/response contract attached to a route. It is carried
// to route listings as is; requests are not validated against it.
type Schema struct {
	Response    map[int]any `json:"response,omitempty"`
	Body        any         `json:"body,omitempty"`
	Querystring any         `json:"querystring,omitempty"`
	Params      any         `json:"params,omitempty"`
	Headers     any         `json:"headers,omitempty"`
}

// Object builds a JSON-schema object node from property nodes.
func Object(properties map[string]any, required ...string) map[string]any {
	node := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		node["required"] = required
	}

	return node
}

// Type builds a JSON-schema scalar node.
func Type(name string) map[string]any {
	return map[string]any{"type": name}
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method string  `json:"method"`
	Path   string  `json:"path"`
	Schema *Schema `json:"schema,omitempty"`
}
