package gateway

import (
	"sync"

	"github.com/xraph/puzzle/errors"
)

// ApiUnit is implemented by every type embedding Api.
type ApiUnit interface {
	ApiBase() *Api
}

// Api is embedded by API units. Its configuration arrives through
// Configure when the registry constructs the unit.
type Api struct {
	name   string
	config *ApiConfig
	mu     sync.RWMutex
}

// Configure receives the configuration stamped by DeclareApi. A unit that
// was never declared gets no configuration and fails here.
func (a *Api) Configure(unit string, config any) error {
	cfg, ok := config.(*ApiConfig)
	if !ok || cfg == nil {
		return &errors.MissingConfigurationError{Unit: unit}
	}

	a.mu.Lock()
	a.name = unit
	a.config = cfg
	a.mu.Unlock()

	return nil
}

// ApiBase returns the embedded base.
func (a *Api) ApiBase() *Api {
	return a
}

// Config returns the unit configuration, nil before Configure.
func (a *Api) Config() *ApiConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.config
}

// Name returns the token name the unit was configured under.
func (a *Api) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.name
}
