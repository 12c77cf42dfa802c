package storefront

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/resilience"
)

type gatewayStub struct {
	mu      sync.Mutex
	config  ExposeConfig
	status  int
	headers []http.Header
	hits    atomic.Int32
}

func (g *gatewayStub) set(cfg ExposeConfig) {
	g.mu.Lock()
	g.config = cfg
	g.mu.Unlock()
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.hits.Add(1)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.headers = append(g.headers, r.Header.Clone())

	if g.status != 0 {
		w.WriteHeader(g.status)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.config)
}

func newStub(t *testing.T, cfg ExposeConfig) (*gatewayStub, *httptest.Server) {
	t.Helper()

	stub := &gatewayStub{config: cfg}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	return stub, srv
}

func browsingConfig(hash string, warden WardenConfig) ExposeConfig {
	return ExposeConfig{
		Hash: hash,
		Fragments: map[string]FragmentConfig{
			"product": {Name: "product", Version: "1.0.0", Warden: warden},
		},
	}
}

func TestFetchSendsGatewayHeaders(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL}, WithAuthToken("secret"))
	require.NoError(t, inst.Fetch(context.Background()))

	require.Len(t, stub.headers, 1)
	assert.Equal(t, "Browsing", stub.headers[0].Get("gateway"))
	assert.Equal(t, "secret", stub.headers[0].Get("x-authorization"))
	assert.Equal(t, "h1", inst.Config().Hash)
}

func TestFetchOmitsAuthorizationWithoutToken(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL})
	require.NoError(t, inst.Fetch(context.Background()))

	assert.Empty(t, stub.headers[0].Get("x-authorization"))
}

func TestEventTransitions(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))

	var events []Event

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL}, OnEvent(func(e Event) {
		events = append(events, e)
	}))

	ctx := context.Background()

	require.NoError(t, inst.Fetch(ctx))
	require.NoError(t, inst.Fetch(ctx))

	stub.set(browsingConfig("h2", nil))
	require.NoError(t, inst.Fetch(ctx))

	require.Len(t, events, 2)
	assert.Equal(t, EventReady, events[0].Type)
	assert.Equal(t, "Browsing", events[0].Gateway)
	assert.Equal(t, EventUpdated, events[1].Type)
	assert.Equal(t, "h2", events[1].Config.Hash)
	assert.Equal(t, "h2", inst.Config().Hash)
}

func TestFetchErrorKeepsConfig(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL})
	require.NoError(t, inst.Fetch(context.Background()))

	stub.mu.Lock()
	stub.status = http.StatusServiceUnavailable
	stub.mu.Unlock()

	err := inst.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, "h1", inst.Config().Hash)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_ = json.NewEncoder(w).Encode(browsingConfig("h1", nil))
	}))
	t.Cleanup(srv.Close)

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL},
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}))

	require.NoError(t, inst.Fetch(context.Background()))
	assert.Equal(t, "h1", inst.Config().Hash)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))
	stub.status = http.StatusUnauthorized

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL},
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}))

	err := inst.Fetch(context.Background())

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusUnauthorized, status.Code)
	assert.Equal(t, int32(1), stub.hits.Load())
}

func TestFetchRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	t.Cleanup(srv.Close)

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL})

	require.Error(t, inst.Fetch(context.Background()))
	assert.Nil(t, inst.Config())
}

func TestIntegratorDiff(t *testing.T) {
	warden := WardenConfig{"identifier": "product", "cacheControl": "no-cache"}
	stub, srv := newStub(t, browsingConfig("h1", warden))

	integrator := NewMemoryIntegrator()
	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL}, WithIntegrator(integrator))
	ctx := context.Background()

	require.NoError(t, inst.Fetch(ctx))
	assert.Equal(t, []string{"register product"}, integrator.Calls())
	assert.Equal(t, warden, integrator.Routes()["product"])

	// same warden under a new hash is not registered again
	stub.set(browsingConfig("h2", WardenConfig{"identifier": "product", "cacheControl": "no-cache"}))
	require.NoError(t, inst.Fetch(ctx))
	assert.Equal(t, []string{"register product"}, integrator.Calls())

	stub.set(browsingConfig("h3", WardenConfig{"identifier": "product", "cacheControl": "max-age=60"}))
	require.NoError(t, inst.Fetch(ctx))
	assert.Equal(t, []string{"register product", "register product"}, integrator.Calls())

	stub.set(browsingConfig("h4", nil))
	require.NoError(t, inst.Fetch(ctx))
	assert.Equal(t, "unregister product", integrator.Calls()[2])
	assert.Empty(t, integrator.Routes())
}

func TestIntegratorCallsFollowFragmentKeyOrder(t *testing.T) {
	cfg := ExposeConfig{
		Hash: "h1",
		Fragments: map[string]FragmentConfig{
			"reviews": {Name: "reviews", Warden: WardenConfig{"identifier": "reviews"}},
			"header":  {Name: "header"},
			"product": {Name: "product", Warden: WardenConfig{"identifier": "product"}},
			"footer":  {Name: "footer"},
		},
	}
	_, srv := newStub(t, cfg)

	for range 10 {
		integrator := NewMemoryIntegrator()
		inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL}, WithIntegrator(integrator))

		require.NoError(t, inst.Fetch(context.Background()))
		assert.Equal(t, []string{
			"unregister footer",
			"unregister header",
			"register product",
			"register reviews",
		}, integrator.Calls())
	}
}

func TestFetchMetrics(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))
	collector := metrics.New(metrics.Config{Namespace: "test"})

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL}, WithMetrics(collector))
	require.NoError(t, inst.Fetch(context.Background()))

	stub.mu.Lock()
	stub.status = http.StatusInternalServerError
	stub.mu.Unlock()
	require.Error(t, inst.Fetch(context.Background()))

	count, err := testutil.GatherAndCount(collector.Registry(), "test_storefront_fetches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStartPollsUntilStop(t *testing.T) {
	stub, srv := newStub(t, browsingConfig("h1", nil))

	inst := NewInstance(GatewayConfig{Name: "Browsing", URL: srv.URL}, WithInterval(10*time.Millisecond))

	require.NoError(t, inst.Start(context.Background()))
	require.NoError(t, inst.Start(context.Background()))
	require.NotNil(t, inst.Config())

	assert.Eventually(t, func() bool { return stub.hits.Load() >= 3 }, time.Second, 5*time.Millisecond)

	inst.Stop()
	inst.Stop()

	after := stub.hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, stub.hits.Load())
}

func TestStopAbortsFirstFetch(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}

		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	inst := NewInstance(GatewayConfig{Name: "Slow", URL: srv.URL}, WithInterval(time.Hour))

	started := make(chan error, 1)
	go func() { started <- inst.Start(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway was not polled")
	}

	stopped := make(chan struct{})
	go func() {
		inst.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited for the first fetch")
	}

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}

	assert.Nil(t, inst.Config())
}

func TestStartToleratesUnreachableGateway(t *testing.T) {
	inst := NewInstance(GatewayConfig{Name: "Offline", URL: "http://127.0.0.1:1"}, WithInterval(time.Hour))

	require.NoError(t, inst.Start(context.Background()))
	assert.Nil(t, inst.Config())
	inst.Stop()
}

func TestGroup(t *testing.T) {
	_, browsing := newStub(t, browsingConfig("b1", nil))
	_, search := newStub(t, ExposeConfig{Hash: "s1"})

	group := NewGroup(GroupConfig{
		Gateways: []GatewayConfig{
			{Name: "Browsing", URL: browsing.URL},
			{Name: "Search", URL: search.URL},
		},
		Interval: time.Hour,
	}, nil, nil, nil)

	require.NoError(t, group.Start(context.Background()))
	defer group.Stop()

	require.Len(t, group.Instances(), 2)

	inst, ok := group.Instance("Search")
	require.True(t, ok)
	assert.Equal(t, "s1", inst.Config().Hash)

	_, ok = group.Instance("Missing")
	assert.False(t, ok)
}

type fakeHash struct {
	data map[string]map[string]string
}

func (f *fakeHash) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	if f.data[key] == nil {
		f.data[key] = map[string]string{}
	}

	for i := 0; i+1 < len(values); i += 2 {
		f.data[key][values[i].(string)] = values[i+1].(string)
	}

	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHash) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	for _, field := range fields {
		delete(f.data[key], field)
	}

	return redis.NewIntResult(int64(len(fields)), nil)
}

func (f *fakeHash) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringResult(f.data[key], nil)
}

func TestRedisIntegrator(t *testing.T) {
	client := &fakeHash{data: map[string]map[string]string{}}
	integrator := NewRedisIntegrator(client, "")
	ctx := context.Background()

	assert.Equal(t, "puzzle:routes", integrator.Key())

	require.NoError(t, integrator.Register(ctx, "product", WardenConfig{"identifier": "product"}))
	assert.JSONEq(t, `{"identifier":"product"}`, client.data["puzzle:routes"]["product"])

	routes, err := integrator.Routes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "product", routes["product"].Identifier())

	require.NoError(t, integrator.Unregister(ctx, "product"))

	routes, err = integrator.Routes(ctx)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestShouldRegister(t *testing.T) {
	previous := &ExposeConfig{Fragments: map[string]FragmentConfig{
		"product": {Warden: WardenConfig{"identifier": "product"}},
	}}

	assert.True(t, shouldRegister(nil, "product", WardenConfig{"identifier": "product"}))
	assert.True(t, shouldRegister(previous, "cart", WardenConfig{"identifier": "cart"}))
	assert.False(t, shouldRegister(previous, "product", WardenConfig{"identifier": "product"}))
	assert.True(t, shouldRegister(previous, "product", WardenConfig{"identifier": "other"}))
}
