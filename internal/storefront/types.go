package storefront

import "reflect"

// GatewayConfig locates one remote gateway.
type GatewayConfig struct {
	Name     string `yaml:"name"     json:"name"`
	URL      string `yaml:"url"      json:"url"`
	AssetURL string `yaml:"assetUrl" json:"assetUrl,omitempty"`
}

// WardenConfig is the request-manager configuration of a fragment.
type WardenConfig map[string]any

// Identifier returns the configured identifier or "".
func (w WardenConfig) Identifier() string {
	id, _ := w["identifier"].(string)

	return id
}

// FragmentConfig is one fragment exposed by a gateway.
type FragmentConfig struct {
	Name         string         `json:"name"`
	Version      string         `json:"version,omitempty"`
	Render       map[string]any `json:"render,omitempty"`
	Dependencies []any          `json:"dependencies,omitempty"`
	Assets       []any          `json:"assets,omitempty"`
	Testing      bool           `json:"testing,omitempty"`
	Warden       WardenConfig   `json:"warden,omitempty"`
}

// ExposeConfig is the document a gateway serves to storefronts.
type ExposeConfig struct {
	Hash      string                    `json:"hash"`
	Fragments map[string]FragmentConfig `json:"fragments"`
}

// EventType names a configuration transition.
type EventType string

const (
	// EventReady fires on the first configuration received.
	EventReady EventType = "ready"
	// EventUpdated fires when a later configuration has a different hash.
	EventUpdated EventType = "updated"
)

// Event is delivered to subscribers after the configuration is stored.
type Event struct {
	Type    EventType
	Gateway string
	Config  *ExposeConfig
}

// shouldRegister reports whether a fragment's warden configuration is new
// or differs from the one stored in previous.
func shouldRegister(previous *ExposeConfig, key string, next WardenConfig) bool {
	if previous == nil {
		return true
	}

	old, ok := previous.Fragments[key]
	if !ok {
		return true
	}

	return !reflect.DeepEqual(old.Warden, next)
}
