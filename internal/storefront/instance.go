package storefront

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/resilience"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPollingInterval is used when no interval is configured.
const DefaultPollingInterval = time.Second

const (
	headerGateway       = "gateway"
	headerAuthorization = "x-authorization"
	userAgent           = "Puzzle Storefront"
)

// Instance polls one gateway for its exposed configuration and keeps the
// integrator in sync with it.
type Instance struct {
	id         string
	gateway    GatewayConfig
	authToken  string
	client     *http.Client
	integrator Integrator
	interval   time.Duration
	retry      *resilience.Retry
	logger     logger.Logger
	metrics    *metrics.Collector

	config      *ExposeConfig
	subscribers []func(Event)
	mu          sync.RWMutex

	cancel  context.CancelFunc
	done    chan struct{}
	running sync.Mutex
}

// Option configures an Instance.
type Option func(*Instance)

// WithAuthToken sends token in the x-authorization header.
func WithAuthToken(token string) Option {
	return func(i *Instance) {
		i.authToken = token
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Instance) {
		if c != nil {
			i.client = c
		}
	}
}

// WithIntegrator sets the integrator fragments are registered with.
func WithIntegrator(in Integrator) Option {
	return func(i *Instance) {
		if in != nil {
			i.integrator = in
		}
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(i *Instance) {
		if d > 0 {
			i.interval = d
		}
	}
}

// WithRetry retries failed fetches within one poll. Client errors (4xx) are
// not retried.
func WithRetry(config resilience.RetryConfig) Option {
	return func(i *Instance) {
		config.Retryable = retryable
		i.retry = resilience.NewRetry(config)
	}
}

// WithLogger sets the instance logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Instance) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMetrics counts fetches on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(i *Instance) {
		i.metrics = c
	}
}

// OnEvent subscribes fn to configuration events.
func OnEvent(fn func(Event)) Option {
	return func(i *Instance) {
		if fn != nil {
			i.subscribers = append(i.subscribers, fn)
		}
	}
}

// NewInstance creates a poller for gw. It does not fetch until Fetch or
// Start is called.
func NewInstance(gw GatewayConfig, opts ...Option) *Instance {
	i := &Instance{
		id:         uuid.NewString(),
		gateway:    gw,
		client:     &http.Client{Timeout: 10 * time.Second},
		integrator: NewMemoryIntegrator(),
		interval:   DefaultPollingInterval,
		retry:      resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 1}),
		logger:     logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(i)
	}

	i.logger = i.logger.With(logger.String("gateway", gw.Name))

	return i
}

// ID returns the instance ID.
func (i *Instance) ID() string {
	return i.id
}

// Name returns the gateway name.
func (i *Instance) Name() string {
	return i.gateway.Name
}

// AssetURL returns the gateway asset URL.
func (i *Instance) AssetURL() string {
	return i.gateway.AssetURL
}

// Config returns the last stored configuration, nil before the first one.
func (i *Instance) Config() *ExposeConfig {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.config
}

// Subscribe adds fn to the event subscribers.
func (i *Instance) Subscribe(fn func(Event)) {
	i.mu.Lock()
	i.subscribers = append(i.subscribers, fn)
	i.mu.Unlock()
}

// Fetch retrieves the gateway configuration once and applies it.
func (i *Instance) Fetch(ctx context.Context) error {
	var cfg *ExposeConfig

	err := i.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = i.fetch(ctx)

		return err
	})
	if err != nil {
		i.metrics.FetchObserved(i.gateway.Name, "error")
		i.logger.Error("failed to fetch gateway configuration", logger.Error(err))

		return err
	}

	i.metrics.FetchObserved(i.gateway.Name, "ok")

	return i.update(ctx, cfg)
}

func (i *Instance) fetch(ctx context.Context) (*ExposeConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.gateway.URL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set(headerGateway, i.gateway.Name)
	req.Header.Set("User-Agent", userAgent)

	if i.authToken != "" {
		req.Header.Set(headerAuthorization, i.authToken)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Gateway: i.gateway.Name, Code: resp.StatusCode}
	}

	var cfg ExposeConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode gateway %s configuration: %w", i.gateway.Name, err)
	}

	return &cfg, nil
}

// StatusError reports a non-2xx configuration response.
type StatusError struct {
	Gateway string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s responded %d", e.Gateway, e.Code)
}

func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= http.StatusInternalServerError || status.Code == http.StatusTooManyRequests
	}

	return true
}

// update stores cfg when it is the first one or its hash changed, and
// emits the matching event.
func (i *Instance) update(ctx context.Context, cfg *ExposeConfig) error {
	i.mu.Lock()
	previous := i.config

	var event EventType

	switch {
	case previous == nil:
		event = EventReady
	case previous.Hash != cfg.Hash:
		event = EventUpdated
	default:
		i.mu.Unlock()

		return nil
	}

	if err := i.integrate(ctx, previous, cfg); err != nil {
		i.mu.Unlock()

		return err
	}

	i.config = cfg
	subscribers := append(([]func(Event))(nil), i.subscribers...)
	i.mu.Unlock()

	if event == EventReady {
		i.logger.Info("gateway is ready")
	} else {
		i.logger.Info("gateway is updated", logger.String("hash", cfg.Hash))
	}

	for _, fn := range subscribers {
		fn(Event{Type: event, Gateway: i.gateway.Name, Config: cfg})
	}

	return nil
}

func (i *Instance) integrate(ctx context.Context, previous, cfg *ExposeConfig) error {
	for _, key := range slices.Sorted(maps.Keys(cfg.Fragments)) {
		fragment := cfg.Fragments[key]
		if fragment.Warden != nil && fragment.Warden.Identifier() != "" {
			if !shouldRegister(previous, key, fragment.Warden) {
				continue
			}

			if err := i.integrator.Register(ctx, key, fragment.Warden); err != nil {
				return fmt.Errorf("register fragment %s: %w", key, err)
			}

			continue
		}

		if err := i.integrator.Unregister(ctx, key); err != nil {
			return fmt.Errorf("unregister fragment %s: %w", key, err)
		}
	}

	return nil
}

// Start fetches once and then polls on the configured interval until Stop
// or ctx is done. It returns after the first fetch, which Stop aborts.
// Fetch errors are logged, not returned. Calling Start on a running
// instance does nothing.
func (i *Instance) Start(ctx context.Context) error {
	i.running.Lock()

	if i.cancel != nil {
		i.running.Unlock()

		return nil
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	i.cancel = cancel
	i.done = make(chan struct{})
	fetched := make(chan struct{})

	go i.poll(pollCtx, ctx.Done(), fetched, i.done)
	i.running.Unlock()

	<-fetched

	i.logger.Debug("polling started", logger.Duration("interval", i.interval))

	return nil
}

func (i *Instance) poll(ctx context.Context, parentDone <-chan struct{}, fetched, done chan struct{}) {
	defer close(done)

	_ = i.Fetch(ctx)
	close(fetched)

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-parentDone:
			return
		case <-ticker.C:
			_ = i.Fetch(ctx)
		}
	}
}

// Stop ends polling and waits for the poll loop to exit. It is safe to
// call more than once.
func (i *Instance) Stop() {
	i.running.Lock()
	defer i.running.Unlock()

	if i.cancel == nil {
		return
	}

	i.cancel()
	<-i.done

	i.cancel = nil
	i.done = nil

	i.logger.Debug("polling stopped")
}
