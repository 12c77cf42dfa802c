// Package puzzle composes HTTP gateways from injectable API units.
//
// Units are declared against a Registry with a Token each. APIs carry routes
// and sub-APIs, gateways carry a port, a health check and the API handlers
// they mount. An Application starts every gateway concurrently:
//
//	reg := puzzle.NewRegistry()
//	items := puzzle.NewToken("ItemsApi", NewItemsApi)
//	puzzle.DeclareApi(reg, items, &puzzle.ApiConfig{Route: puzzle.NewPath("/items")})
//	puzzle.Get(reg, items, puzzle.Paths("/"), (*ItemsApi).List)
//
//	app := puzzle.NewApplication(reg, puzzle.AppConfig{Gateways: []*puzzle.Token{browsing}})
//	err := app.Run(ctx)
package puzzle

import (
	"github.com/xraph/puzzle/internal/application"
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/gateway"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

// Dependency injection.
type (
	Token        = di.Token
	Registry     = di.Registry
	Configurable = di.Configurable
	RegistryInfo = di.Info
)

var (
	NewToken            = di.NewToken
	NewRegistry         = di.NewRegistry
	RegistryWithLogger  = di.WithLogger
	RegistryWithMetrics = di.WithMetrics
	Dependencies        = di.Dependencies
)

// Resolve resolves tok from reg as a T.
func Resolve[T any](reg *Registry, tok *Token) (T, error) {
	return di.Resolve[T](reg, tok)
}

// Routing.
type Path = route.Path

var (
	NewPath = route.NewPath
	Paths   = route.Paths
	Join    = route.Join
)

// Units.
type (
	Api              = gateway.Api
	Gateway          = gateway.Gateway
	ApiConfig        = gateway.ApiConfig
	GatewayConfig    = gateway.Config
	ApiSection       = gateway.ApiSection
	FragmentsSection = gateway.FragmentsSection
	Registration     = gateway.Registration
	GatewayState     = gateway.State
)

var (
	DeclareApi     = gateway.DeclareApi
	DeclareGateway = gateway.DeclareGateway
	Plan           = gateway.Plan
)

// Get declares a GET route on tok.
func Get[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Get(reg, tok, paths, h, schema...)
}

// Post declares a POST route on tok.
func Post[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Post(reg, tok, paths, h, schema...)
}

// Put declares a PUT route on tok.
func Put[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Put(reg, tok, paths, h, schema...)
}

// Patch declares a PATCH route on tok.
func Patch[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Patch(reg, tok, paths, h, schema...)
}

// Delete declares a DELETE route on tok.
func Delete[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Delete(reg, tok, paths, h, schema...)
}

// Head declares a HEAD route on tok.
func Head[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Head(reg, tok, paths, h, schema...)
}

// Options declares an OPTIONS route on tok.
func Options[T any](reg *Registry, tok *Token, paths []*Path, h func(T, *Request, *Reply) error, schema ...*Schema) {
	gateway.Options(reg, tok, paths, h, schema...)
}

// HTTP.
type (
	Request    = server.Request
	Reply      = server.Reply
	Handler    = server.Handler
	Schema     = server.Schema
	Middleware = server.Middleware
)

// Application.
type (
	Application = application.Application
	AppConfig   = application.Config
	Runner      = application.Runner
	Hook        = application.Hook
)

var (
	NewApplication  = application.New
	WithLogger      = application.WithLogger
	WithMetrics     = application.WithMetrics
	WithRunner      = application.WithRunner
	WithBeforeStart = application.WithBeforeStart
	WithAfterStart  = application.WithAfterStart
)

// Ambient.
type (
	Logger  = logger.Logger
	Metrics = metrics.Collector
)

var (
	NewLogger     = logger.NewLogger
	NewNoopLogger = logger.NewNoopLogger
	NewMetrics    = metrics.New
)
