package gateway

import (
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/route"
)

// ApiConfig is stamped onto an API token by DeclareApi.
type ApiConfig struct {
	// Route is the base path of the unit, relative to its mount prefix.
	Route *route.Path
	// SubApis are mounted below Route in declaration order.
	SubApis []*di.Token
}

// ApiSection lists the API units served by a gateway.
type ApiSection struct {
	RoutePrefix *route.Path
	Handlers    []*di.Token
}

// FragmentsSection is carried as is; gateways do not expand it.
type FragmentsSection struct {
	RoutePrefix *route.Path
	Handlers    []any
}

// Config is stamped onto a gateway token by DeclareGateway.
type Config struct {
	Port        int
	Api         ApiSection
	HealthCheck *route.Path
	Fragments   FragmentsSection
}
