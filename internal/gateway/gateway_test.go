package gateway

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

type routeCall struct {
	Method string
	Path   string
	Schema *server.Schema
}

type fakeServer struct {
	mu        sync.Mutex
	calls     []routeCall
	handlers  map[string]server.Handler
	events    *[]string
	listenErr error
	port      int
}

func newFakeServer(events *[]string) *fakeServer {
	return &fakeServer{handlers: make(map[string]server.Handler), events: events}
}

func (f *fakeServer) record(event string) {
	if f.events != nil {
		*f.events = append(*f.events, event)
	}
}

func (f *fakeServer) AddRoute(paths []*route.Path, method string, h server.Handler, schema *server.Schema) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range paths {
		f.calls = append(f.calls, routeCall{Method: method, Path: p.String(), Schema: schema})
		f.handlers[method+" "+p.String()] = h
	}

	f.record("route")

	return nil
}

func (f *fakeServer) Listen(_ context.Context, port int) error {
	f.record("listen")

	if f.listenErr != nil {
		return f.listenErr
	}

	f.port = port

	return nil
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.record("shutdown")

	return nil
}

func (f *fakeServer) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method + " " + c.Path
	}

	return out
}

type catalog struct {
	name string
}

type testApi struct {
	Api
	catalog *catalog
}

func (a *testApi) X(_ *server.Request, reply *server.Reply) error {
	return reply.Send(a.Name())
}

func (a *testApi) Catalog(_ *server.Request, reply *server.Reply) error {
	return reply.Send(a.catalog.name)
}

type testGateway struct {
	Gateway
	events      *[]string
	beforeStart error
}

func (g *testGateway) OnBeforeStart(context.Context) error {
	if g.events != nil {
		*g.events = append(*g.events, "before-start")
	}

	return g.beforeStart
}

func (g *testGateway) OnListen() {
	if g.events != nil {
		*g.events = append(*g.events, "on-listen")
	}
}

func (g *testGateway) Version(_ *server.Request, reply *server.Reply) error {
	return reply.Send("v1")
}

func newApiToken(name string) *di.Token {
	return di.NewToken(name, func() *testApi { return &testApi{} })
}

func declareApi(reg *di.Registry, name, base string, subs ...*di.Token) *di.Token {
	tok := DeclareApi(reg, newApiToken(name), &ApiConfig{Route: route.NewPath(base), SubApis: subs})
	Get(reg, tok, route.Paths("/x"), (*testApi).X)

	return tok
}

func TestFlatten_SingleLevel(t *testing.T) {
	reg := di.NewRegistry()
	items := DeclareApi(reg, newApiToken("Items"), &ApiConfig{Route: route.NewPath("/items")})
	Get(reg, items, route.Paths("/"), (*testApi).X)

	regs, err := Flatten(reg, &Config{Api: ApiSection{RoutePrefix: route.NewPath("/api"), Handlers: []*di.Token{items}}})
	require.NoError(t, err)

	require.Len(t, regs, 1)
	assert.Equal(t, "/api/items", regs[0].Path.String())
	assert.Equal(t, route.MethodGet, regs[0].Method)
	assert.Equal(t, "Items", regs[0].Unit)
}

func TestFlatten_Nested(t *testing.T) {
	reg := di.NewRegistry()
	grand := declareApi(reg, "Grand", "/grand")
	child := declareApi(reg, "Child", "/child", grand)
	parent := declareApi(reg, "Parent", "/parent", child)

	regs, err := Flatten(reg, &Config{Api: ApiSection{RoutePrefix: route.NewPath("/api"), Handlers: []*di.Token{parent}}})
	require.NoError(t, err)

	var paths []string
	for _, r := range regs {
		paths = append(paths, r.Path.String())
	}

	assert.Equal(t, []string{"/api/parent/x", "/api/parent/child/x", "/api/parent/child/grand/x"}, paths)
}

func TestFlatten_PreOrderAcrossHandlers(t *testing.T) {
	reg := di.NewRegistry()
	a1 := declareApi(reg, "A1", "/a1")
	a2 := declareApi(reg, "A2", "/a2")
	a := declareApi(reg, "A", "/a", a1, a2)
	b := declareApi(reg, "B", "/b")

	regs, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{a, b}}})
	require.NoError(t, err)

	var paths []string
	for _, r := range regs {
		paths = append(paths, r.Path.String())
	}

	assert.Equal(t, []string{"/a/x", "/a/a1/x", "/a/a2/x", "/b/x"}, paths)
}

func TestFlatten_AliasesShareHandlerAndSchema(t *testing.T) {
	reg := di.NewRegistry()
	schema := &server.Schema{Response: map[int]any{200: server.Type("string")}}
	products := DeclareApi(reg, newApiToken("Products"), &ApiConfig{Route: route.NewPath("/products")})
	Get(reg, products, route.Paths("/list", "/all"), (*testApi).X, schema)

	regs, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{products}}})
	require.NoError(t, err)

	require.Len(t, regs, 2)
	assert.Equal(t, "/products/list", regs[0].Path.String())
	assert.Equal(t, "/products/all", regs[1].Path.String())
	assert.Same(t, schema, regs[0].Schema)
	assert.Same(t, schema, regs[1].Schema)
}

func TestFlatten_EmptyUnitContributesNothing(t *testing.T) {
	reg := di.NewRegistry()
	empty := DeclareApi(reg, newApiToken("Empty"), &ApiConfig{Route: route.NewPath("/empty")})

	regs, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{empty}}})
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestFlatten_IsDeterministic(t *testing.T) {
	reg := di.NewRegistry()
	child := declareApi(reg, "Child", "/child")
	parent := declareApi(reg, "Parent", "/parent", child)
	cfg := &Config{Api: ApiSection{RoutePrefix: route.NewPath("/api"), Handlers: []*di.Token{parent}}}

	first, err := Flatten(reg, cfg)
	require.NoError(t, err)

	second, err := Flatten(reg, cfg)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Path.String(), second[i].Path.String())
	}
}

func TestFlatten_SiblingReuseIsAllowed(t *testing.T) {
	reg := di.NewRegistry()
	shared := declareApi(reg, "Shared", "/shared")
	left := declareApi(reg, "Left", "/left", shared)
	right := declareApi(reg, "Right", "/right", shared)

	regs, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{left, right}}})
	require.NoError(t, err)

	var paths []string
	for _, r := range regs {
		paths = append(paths, r.Path.String())
	}

	assert.Equal(t, []string{"/left/x", "/left/shared/x", "/right/x", "/right/shared/x"}, paths)
}

func TestFlatten_CyclicSubApi(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		reg := di.NewRegistry()
		cfg := &ApiConfig{Route: route.NewPath("/loop")}
		loop := DeclareApi(reg, newApiToken("Loop"), cfg)
		cfg.SubApis = []*di.Token{loop}

		_, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{loop}}})
		require.Error(t, err)
		assert.True(t, errors.IsCyclicSubApi(err))
		assert.Contains(t, err.Error(), "Loop -> Loop")
	})

	t.Run("indirect", func(t *testing.T) {
		reg := di.NewRegistry()
		cfg := &ApiConfig{Route: route.NewPath("/a")}
		a := DeclareApi(reg, newApiToken("A"), cfg)
		b := declareApi(reg, "B", "/b", a)
		cfg.SubApis = []*di.Token{b}

		_, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{a}}})
		require.Error(t, err)
		assert.True(t, errors.IsCyclicSubApi(err))
		assert.Contains(t, err.Error(), "A -> B -> A")
	})
}

func TestFlatten_UndecoratedApi(t *testing.T) {
	reg := di.NewRegistry()
	plain := reg.MarkInjectable(newApiToken("Plain"))

	_, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{plain}}})
	require.Error(t, err)

	var missing *errors.MissingConfigurationError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Plain", missing.Unit)
}

func TestFlatten_UnregisteredApi(t *testing.T) {
	reg := di.NewRegistry()

	_, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{newApiToken("Ghost")}}})
	assert.True(t, errors.Is(err, &errors.UnregisteredTokenError{Token: "Ghost"}))
}

func TestFlatten_NotAnApi(t *testing.T) {
	reg := di.NewRegistry()
	tok := reg.MarkInjectable(di.NewToken("Catalog", func() *catalog { return &catalog{} }))

	_, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{tok}}})
	assert.ErrorIs(t, err, errors.ErrNotAnApi)
}

func TestFlatten_HandlerTypeMismatch(t *testing.T) {
	reg := di.NewRegistry()
	tok := DeclareApi(reg, newApiToken("Items"), &ApiConfig{Route: route.NewPath("/items")})
	Get(reg, tok, route.Paths("/"), (*testGateway).Version)

	_, err := Flatten(reg, &Config{Api: ApiSection{Handlers: []*di.Token{tok}}})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestDeclare_StampsConfigByReference(t *testing.T) {
	reg := di.NewRegistry()
	apiCfg := &ApiConfig{Route: route.NewPath("/items")}
	gwCfg := &Config{Port: 8080}

	api := DeclareApi(reg, newApiToken("Items"), apiCfg)
	gw := DeclareGateway(reg, di.NewToken("Browsing", func() *testGateway { return &testGateway{} }), gwCfg)

	assert.Same(t, apiCfg, api.Config())
	assert.Same(t, gwCfg, gw.Config())

	instance, err := di.Resolve[*testApi](reg, api)
	require.NoError(t, err)
	assert.Same(t, apiCfg, instance.Config())
	assert.Equal(t, "Items", instance.Name())
}

func TestRoutes_PanicsOnMalformedDeclaration(t *testing.T) {
	reg := di.NewRegistry()
	tok := newApiToken("Items")

	assert.Panics(t, func() { Get(reg, tok, nil, (*testApi).X) })
	assert.Panics(t, func() { Post[*testApi](reg, tok, route.Paths("/"), nil) })
}

func TestRoutes_AllMethods(t *testing.T) {
	reg := di.NewRegistry()
	tok := newApiToken("Items")

	Get(reg, tok, route.Paths("/"), (*testApi).X)
	Post(reg, tok, route.Paths("/"), (*testApi).X)
	Put(reg, tok, route.Paths("/"), (*testApi).X)
	Patch(reg, tok, route.Paths("/"), (*testApi).X)
	Delete(reg, tok, route.Paths("/"), (*testApi).X)
	Head(reg, tok, route.Paths("/"), (*testApi).X)
	Options(reg, tok, route.Paths("/"), (*testApi).X)
	reg.Attach(tok, "not a route")

	var methods []string
	for _, entry := range Routes(reg, tok) {
		methods = append(methods, entry.Method)
	}

	assert.Equal(t, route.Methods, methods)
}

func declareGateway(reg *di.Registry, events *[]string, cfg *Config) *di.Token {
	tok := DeclareGateway(reg, di.NewToken("Browsing", func() *testGateway {
		return &testGateway{events: events}
	}), cfg)
	Get(reg, tok, route.Paths("/version"), (*testGateway).Version)

	return tok
}

func TestStart_RegistrationOrderAndHooks(t *testing.T) {
	reg := di.NewRegistry()
	child := declareApi(reg, "Child", "/child")
	parent := declareApi(reg, "Parent", "/parent", child)

	var events []string

	gw := declareGateway(reg, &events, &Config{
		Port:        8080,
		HealthCheck: route.NewPath("/health"),
		Api:         ApiSection{RoutePrefix: route.NewPath("/api"), Handlers: []*di.Token{parent}},
	})

	fake := newFakeServer(&events)
	err := Start(context.Background(), reg, gw, WithServerFactory(func(unit string) Server {
		assert.Equal(t, "Browsing", unit)

		return fake
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET /health",
		"GET /version",
		"GET /api/parent/x",
		"GET /api/parent/child/x",
	}, fake.paths())
	assert.Same(t, HealthSchema, fake.calls[0].Schema)

	assert.Equal(t, []string{"route", "route", "route", "route", "before-start", "listen", "on-listen"}, events)
	assert.Equal(t, 8080, fake.port)

	_, base, err := Resolve(reg, gw)
	require.NoError(t, err)
	assert.Equal(t, StateListening, base.State())
	assert.Same(t, fake, base.Server())

	err = Start(context.Background(), reg, gw)
	assert.True(t, errors.Is(err, errors.ErrLifecycleErrorSentinel))

	require.NoError(t, base.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, base.State())
	assert.Equal(t, "shutdown", events[len(events)-1])
}

func TestStart_ListenErrorPropagates(t *testing.T) {
	reg := di.NewRegistry()

	var events []string

	gw := declareGateway(reg, &events, &Config{Port: 8080})
	fake := newFakeServer(&events)
	fake.listenErr = stderrors.New("address already in use")

	err := Start(context.Background(), reg, gw, WithServerFactory(func(string) Server { return fake }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errors.PuzzleError{Code: errors.CodeServiceStartFailed}))
	assert.NotContains(t, events, "on-listen")

	_, base, err := Resolve(reg, gw)
	require.NoError(t, err)
	assert.Equal(t, StateStarting, base.State())
}

func TestStart_BeforeStartErrorStopsListen(t *testing.T) {
	reg := di.NewRegistry()
	hookErr := stderrors.New("warmup failed")

	var events []string

	gw := DeclareGateway(reg, di.NewToken("Search", func() *testGateway {
		return &testGateway{events: &events, beforeStart: hookErr}
	}), &Config{Port: 8079})

	fake := newFakeServer(&events)
	err := Start(context.Background(), reg, gw, WithServerFactory(func(string) Server { return fake }))

	require.ErrorIs(t, err, hookErr)
	assert.Equal(t, []string{"before-start"}, events)
}

func TestStart_UndecoratedGateway(t *testing.T) {
	reg := di.NewRegistry()
	gw := reg.MarkInjectable(di.NewToken("Plain", func() *testGateway { return &testGateway{} }))

	err := Start(context.Background(), reg, gw)
	assert.True(t, errors.IsMissingConfiguration(err))

	zero := di.NewToken("Zero", nil)
	reg.SetInstance(zero, &testGateway{})

	err = Start(context.Background(), reg, zero)
	assert.True(t, errors.Is(err, &errors.MissingConfigurationError{Unit: "Zero"}))

	notGateway := reg.MarkInjectable(di.NewToken("Catalog", func() *catalog { return &catalog{} }))
	err = Start(context.Background(), reg, notGateway)
	assert.ErrorIs(t, err, errors.ErrNotAGateway)
}

func TestStart_ServesBoundHandlers(t *testing.T) {
	reg := di.NewRegistry()
	catalogTok := reg.MarkInjectable(di.NewToken("Catalog", func() *catalog { return &catalog{name: "spring"} }))
	products := DeclareApi(reg, di.NewToken("Products", func(c *catalog) *testApi {
		return &testApi{catalog: c}
	}, catalogTok), &ApiConfig{Route: route.NewPath("/products")})
	Get(reg, products, route.Paths("/catalog"), (*testApi).Catalog)

	gw := declareGateway(reg, nil, &Config{
		Port:        0,
		HealthCheck: route.NewPath("/health"),
		Api:         ApiSection{RoutePrefix: route.NewPath("/api"), Handlers: []*di.Token{products}},
	})

	srv := server.New()
	_, base, err := Resolve(reg, gw)
	require.NoError(t, err)
	base.SetServer(srv)

	require.NoError(t, Start(context.Background(), reg, gw))
	defer base.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/catalog", nil))
	assert.Equal(t, "spring", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ts int64 `json:"ts"`
	}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &body))
	assert.Positive(t, body.Ts)

	regs, err := Plan(reg, gw)
	require.NoError(t, err)
	assert.Len(t, regs, 3)
	assert.Equal(t, fmt.Sprint([]string{"/health", "/version", "/api/products/catalog"}), fmt.Sprint(planPaths(regs)))
}

func planPaths(regs []Registration) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.Path.String()
	}

	return out
}

func TestStart_ConflictingRoutesReturnError(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(reg *di.Registry) *Config
	}{
		{"health check shadows own route", func(*di.Registry) *Config {
			return &Config{HealthCheck: route.NewPath("/version")}
		}},
		{"api listed twice", func(reg *di.Registry) *Config {
			items := declareApi(reg, "Items", "/items")

			return &Config{Api: ApiSection{RoutePrefix: route.NewPath("/api"), Handlers: []*di.Token{items, items}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := di.NewRegistry()
			gw := declareGateway(reg, nil, tt.cfg(reg))

			var err error
			assert.NotPanics(t, func() {
				err = Start(context.Background(), reg, gw, WithServerFactory(func(string) Server { return server.New() }))
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrRouteConflict)
			assert.True(t, errors.Is(err, &errors.ServiceError{Service: "Browsing", Operation: "start"}))

			_, base, err := Resolve(reg, gw)
			require.NoError(t, err)
			assert.NotEqual(t, StateListening, base.State())
		})
	}
}

func TestStart_ConcurrentStartsClaimOnce(t *testing.T) {
	reg := di.NewRegistry()
	gw := declareGateway(reg, nil, &Config{Port: 8080, HealthCheck: route.NewPath("/health")})

	var (
		created int
		mu      sync.Mutex
	)

	factory := WithServerFactory(func(string) Server {
		mu.Lock()
		created++
		mu.Unlock()

		return newFakeServer(nil)
	})

	const starters = 8

	errs := make([]error, starters)

	var wg sync.WaitGroup
	for i := range starters {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs[i] = Start(context.Background(), reg, gw, factory)
		}()
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, errors.ErrLifecycleErrorSentinel))
			failed++
		}
	}

	assert.Equal(t, starters-1, failed)
	assert.Equal(t, 1, created)

	_, base, err := Resolve(reg, gw)
	require.NoError(t, err)
	assert.Equal(t, StateListening, base.State())
	assert.Equal(t, []string{"GET /health", "GET /version"}, base.Server().(*fakeServer).paths())
}
