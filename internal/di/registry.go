package di

import (
	"fmt"
	"sync"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
)

// Configurable is implemented by instances that accept the configuration
// attached to their token. It runs once, right after construction.
type Configurable interface {
	Configure(unit string, config any) error
}

// entry holds one registration. mu is held for the whole construction, so a
// second resolver of the same token waits for the first and shares its
// instance.
type entry struct {
	recipe *Token
	config any

	mu       sync.Mutex
	instance any
	resolved bool
}

// Registry maps tokens to lazily constructed singleton instances.
type Registry struct {
	entries     map[*Token]*entry
	order       []*Token
	attachments map[*Token][]any
	logger      logger.Logger
	metrics     *metrics.Collector
	mu          sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics reports resolutions to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:     make(map[*Token]*entry),
		attachments: make(map[*Token][]any),
		logger:      logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Logger returns the registry logger.
func (r *Registry) Logger() logger.Logger {
	return r.logger
}

// Register records tok. Registering a known token keeps its instance and
// only replaces the configuration when a non-nil one is given.
func (r *Registry) Register(tok *Token, config ...any) *Token {
	if tok == nil {
		panic(errors.ErrNilToken)
	}

	var cfg any
	if len(config) > 0 {
		cfg = config[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[tok]; exists {
		if cfg != nil {
			e.config = cfg
		}

		return tok
	}

	r.entries[tok] = &entry{recipe: tok, config: cfg}
	r.order = append(r.order, tok)

	r.logger.Debug("registered token",
		logger.String("token", tok.Name()),
		logger.Strings("dependencies", DependencyNames(tok)),
	)

	return tok
}

// MarkInjectable registers tok without configuration.
func (r *Registry) MarkInjectable(tok *Token) *Token {
	return r.Register(tok)
}

// Decorate returns a function that runs onRegister, registers the token with
// config, stamps config onto the token and hands the same token back.
func (r *Registry) Decorate(onRegister func(*Token), config any) func(*Token) *Token {
	return func(tok *Token) *Token {
		if onRegister != nil {
			onRegister(tok)
		}

		r.Register(tok, config)
		tok.stamp(config)

		return tok
	}
}

// Resolve returns the instance for tok, constructing and caching it on
// first use.
func (r *Registry) Resolve(tok *Token) (any, error) {
	if tok == nil {
		return nil, errors.ErrNilToken
	}

	e, ok := r.lookup(tok)
	if !ok {
		r.metrics.ResolutionObserved(tok.Name(), "unregistered")

		return nil, &errors.UnregisteredTokenError{Token: tok.Name()}
	}

	e.mu.Lock()
	resolved, instance := e.resolved, e.instance
	e.mu.Unlock()

	if resolved {
		r.metrics.ResolutionObserved(tok.Name(), "cached")

		return instance, nil
	}

	if err := r.graph().CheckCycles(tok); err != nil {
		r.metrics.ResolutionObserved(tok.Name(), "error")

		return nil, err
	}

	return r.resolve(tok)
}

func (r *Registry) resolve(tok *Token) (any, error) {
	e, ok := r.lookup(tok)
	if !ok {
		return nil, &errors.UnregisteredTokenError{Token: tok.Name()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved {
		r.metrics.ResolutionObserved(tok.Name(), "cached")

		return e.instance, nil
	}

	instance, err := r.construct(e)
	if err != nil {
		r.metrics.ResolutionObserved(tok.Name(), "error")

		return nil, err
	}

	e.instance = instance
	e.resolved = true

	r.metrics.ResolutionObserved(tok.Name(), "constructed")
	r.logger.Debug("constructed instance",
		logger.String("token", tok.Name()),
		logger.String("recipe", e.recipe.Name()),
	)

	return instance, nil
}

// construct runs with e.mu held. Dependency errors are returned as they are
// so an unregistered dependency is reported under its own name.
func (r *Registry) construct(e *entry) (any, error) {
	recipe := e.recipe

	if !recipe.hasConstructor() {
		return nil, errors.NewServiceError(recipe.Name(), "resolve",
			fmt.Errorf("%w: no constructor and no instance set", errors.ErrInvalidFactory))
	}

	args := make([]any, len(recipe.deps))

	for i, dep := range recipe.deps {
		instance, err := r.resolve(dep)
		if err != nil {
			return nil, err
		}

		args[i] = instance
	}

	instance, err := recipe.construct(args)
	if err != nil {
		return nil, errors.NewServiceError(recipe.Name(), "resolve", err)
	}

	config := e.config
	if config == nil {
		config = recipe.Config()
	}

	if c, ok := instance.(Configurable); ok {
		if err := c.Configure(recipe.Name(), config); err != nil {
			return nil, errors.NewServiceError(recipe.Name(), "configure", err)
		}
	}

	return instance, nil
}

// SetInstance associates an existing instance with tok, registering tok
// when needed and replacing any cached instance.
func (r *Registry) SetInstance(tok *Token, instance any) {
	if tok == nil {
		panic(errors.ErrNilToken)
	}

	r.mu.Lock()
	e, exists := r.entries[tok]
	if !exists {
		e = &entry{recipe: tok}
		r.entries[tok] = e
		r.order = append(r.order, tok)
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.instance = instance
	e.resolved = true
	e.mu.Unlock()
}

// Transform re-keys the entry stored under old to new. The recipe, cached
// instance and attachments move with it, so Resolve(new) returns the
// instance Resolve(old) returned. An existing entry under new is replaced.
func (r *Registry) Transform(old, new *Token) error {
	if old == nil || new == nil {
		return errors.ErrNilToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[old]
	if !ok {
		return &errors.UnregisteredTokenError{Token: old.Name()}
	}

	if old == new {
		return nil
	}

	_, replaced := r.entries[new]

	delete(r.entries, old)
	r.entries[new] = e

	order := r.order[:0]
	for _, tok := range r.order {
		switch tok {
		case old:
			order = append(order, new)
		case new:
		default:
			order = append(order, tok)
		}
	}
	r.order = order

	if meta, ok := r.attachments[old]; ok {
		r.attachments[new] = meta
		delete(r.attachments, old)
	} else {
		delete(r.attachments, new)
	}

	r.logger.Debug("transformed token",
		logger.String("from", old.Name()),
		logger.String("to", new.Name()),
		logger.Bool("replaced", replaced),
	)

	return nil
}

// Attach appends declarative metadata to the side table kept for tok.
func (r *Registry) Attach(tok *Token, meta any) {
	if tok == nil {
		panic(errors.ErrNilToken)
	}

	r.mu.Lock()
	r.attachments[tok] = append(r.attachments[tok], meta)
	r.mu.Unlock()
}

// Attachments returns the metadata attached to tok in attachment order.
func (r *Registry) Attachments(tok *Token) []any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]any(nil), r.attachments[tok]...)
}

// Has reports whether tok is registered.
func (r *Registry) Has(tok *Token) bool {
	_, ok := r.lookup(tok)

	return ok
}

// Tokens returns the registered tokens in registration order.
func (r *Registry) Tokens() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*Token(nil), r.order...)
}

// Info describes a registration.
type Info struct {
	Token        string
	Recipe       string
	Dependencies []string
	Resolved     bool
	Configured   bool
	Attachments  int
}

// Inspect describes the registration stored under tok.
func (r *Registry) Inspect(tok *Token) (Info, error) {
	if tok == nil {
		return Info{}, errors.ErrNilToken
	}

	r.mu.RLock()
	e, ok := r.entries[tok]
	attached := len(r.attachments[tok])
	r.mu.RUnlock()

	if !ok {
		return Info{}, &errors.UnregisteredTokenError{Token: tok.Name()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return Info{
		Token:        tok.Name(),
		Recipe:       e.recipe.Name(),
		Dependencies: DependencyNames(e.recipe),
		Resolved:     e.resolved,
		Configured:   e.config != nil || e.recipe.Config() != nil,
		Attachments:  attached,
	}, nil
}

// Validate checks every registration for dependency cycles and for
// dependencies that are not registered.
func (r *Registry) Validate() error {
	g := r.graph()

	if _, err := g.TopologicalSort(); err != nil {
		return err
	}

	for _, key := range g.order {
		for _, dep := range g.nodes[key] {
			if _, ok := g.nodes[dep]; !ok {
				return errors.NewServiceError(key.Name(), "validate", &errors.UnregisteredTokenError{Token: dep.Name()})
			}
		}
	}

	return nil
}

func (r *Registry) lookup(tok *Token) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[tok]

	return e, ok
}

func (r *Registry) graph() *DependencyGraph {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g := NewDependencyGraph()
	for _, tok := range r.order {
		g.AddNode(tok, r.entries[tok].recipe.deps)
	}

	return g
}
