package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

// Server is the HTTP collaborator a gateway mounts its routes on.
type Server interface {
	AddRoute(paths []*route.Path, method string, h server.Handler, schema *server.Schema) error
	Listen(ctx context.Context, port int) error
	Shutdown(ctx context.Context) error
}

// BeforeStarter is implemented by gateways that need work done after their
// routes are wired and before the server listens.
type BeforeStarter interface {
	OnBeforeStart(ctx context.Context) error
}

// Listener is implemented by gateways that want to know the server is up.
type Listener interface {
	OnListen()
}

// Unit is implemented by every type embedding Gateway.
type Unit interface {
	Base() *Gateway
}

// State of a gateway start.
type State int

const (
	StateCreated State = iota
	StateHealthCheckWired
	StateOwnRoutesWired
	StateApiRoutesWired
	StateStarting
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHealthCheckWired:
		return "health-check-wired"
	case StateOwnRoutesWired:
		return "own-routes-wired"
	case StateApiRoutesWired:
		return "api-routes-wired"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Gateway is embedded by gateway units.
type Gateway struct {
	name   string
	config *Config
	server  Server
	state   State
	claimed bool
	mu      sync.RWMutex
}

// Configure receives the configuration stamped by DeclareGateway.
func (g *Gateway) Configure(unit string, config any) error {
	cfg, ok := config.(*Config)
	if !ok || cfg == nil {
		return &errors.MissingConfigurationError{Unit: unit}
	}

	g.mu.Lock()
	g.name = unit
	g.config = cfg
	g.mu.Unlock()

	return nil
}

// Base returns the embedded base.
func (g *Gateway) Base() *Gateway {
	return g
}

// Config returns the gateway configuration, nil before Configure.
func (g *Gateway) Config() *Config {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.config
}

// Name returns the token name the gateway was configured under.
func (g *Gateway) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.name
}

// Server returns the server routes are mounted on, nil before Start unless
// set with SetServer.
func (g *Gateway) Server() Server {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.server
}

// SetServer replaces the server used by Start.
func (g *Gateway) SetServer(s Server) {
	g.mu.Lock()
	g.server = s
	g.mu.Unlock()
}

// State returns the current start state.
func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.state
}

// claim reserves the gateway for one Start. It fails once a start has
// been claimed or the gateway has left StateCreated.
func (g *Gateway) claim() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.state != StateCreated:
		return fmt.Errorf("gateway %s is %s", g.name, g.state)
	case g.claimed:
		return fmt.Errorf("gateway %s is already starting", g.name)
	}

	g.claimed = true

	return nil
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Shutdown stops the server if the gateway is listening.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	srv, state := g.server, g.state
	if state == StateListening {
		g.state = StateStopped
	}
	g.mu.Unlock()

	if srv == nil || state != StateListening {
		return nil
	}

	return srv.Shutdown(ctx)
}
