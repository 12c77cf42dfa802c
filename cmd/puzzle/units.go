package main

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xraph/puzzle"
	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/server"
)

// Product is one catalog item.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Review is a customer review of a product.
type Review struct {
	ProductID string `json:"productId"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
}

// Catalog is the in-memory store shared by every demo API.
type Catalog struct {
	products []Product
	reviews  []Review
	mu       sync.RWMutex
}

func NewCatalog() *Catalog {
	return &Catalog{
		products: []Product{
			{ID: "p1", Name: "Trail shoe", Price: 129.9},
			{ID: "p2", Name: "Rain jacket", Price: 89.5},
			{ID: "p3", Name: "Wool hat", Price: 24},
		},
		reviews: []Review{
			{ProductID: "p1", Rating: 5, Text: "Great grip"},
			{ProductID: "p1", Rating: 4, Text: "Runs small"},
		},
	}
}

func (c *Catalog) Products() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.products)
}

func (c *Catalog) Product(id string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.products, func(p Product) bool { return p.ID == id })
	if i < 0 {
		return Product{}, false
	}

	return c.products[i], true
}

func (c *Catalog) AddReview(r Review) {
	c.mu.Lock()
	c.reviews = append(c.reviews, r)
	c.mu.Unlock()
}

func (c *Catalog) Reviews(productID string) []Review {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []Review{}
	for _, r := range c.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}

	return out
}

// Search matches products whose name contains q, case-insensitively.
func (c *Catalog) Search(q string) []Product {
	q = strings.ToLower(q)

	out := []Product{}
	for _, p := range c.Products() {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}

	return out
}

type ReviewApi struct {
	puzzle.Api
	catalog *Catalog
}

func (a *ReviewApi) List(req *puzzle.Request, reply *puzzle.Reply) error {
	return reply.Send(a.catalog.Reviews(req.Param("id")))
}

func (a *ReviewApi) Create(req *puzzle.Request, reply *puzzle.Reply) error {
	var review Review
	if err := req.Decode(&review); err != nil {
		return errors.BadRequest("invalid review body")
	}

	if review.Rating < 1 || review.Rating > 5 {
		return errors.BadRequest("rating must be between 1 and 5")
	}

	review.ProductID = req.Param("id")
	a.catalog.AddReview(review)

	return reply.Status(201).Send(review)
}

type ProductApi struct {
	puzzle.Api
	catalog *Catalog
}

func (a *ProductApi) List(_ *puzzle.Request, reply *puzzle.Reply) error {
	return reply.Send(a.catalog.Products())
}

func (a *ProductApi) Get(req *puzzle.Request, reply *puzzle.Reply) error {
	p, ok := a.catalog.Product(req.Param("id"))
	if !ok {
		return errors.NotFound("product " + req.Param("id") + " not found")
	}

	return reply.Send(p)
}

type SearchApi struct {
	puzzle.Api
	catalog *Catalog
}

func (a *SearchApi) Query(req *puzzle.Request, reply *puzzle.Reply) error {
	return reply.Send(a.catalog.Search(req.Query("q")))
}

type Browsing struct {
	puzzle.Gateway
	log logger.Logger
}

func (g *Browsing) Version(_ *puzzle.Request, reply *puzzle.Reply) error {
	return reply.Send(map[string]string{"version": version})
}

func (g *Browsing) OnBeforeStart(context.Context) error {
	g.log.Debug("browsing gateway wired", logger.Int("port", g.Config().Port))

	return nil
}

func (g *Browsing) OnListen() {
	g.log.Info("browsing gateway ready")
}

type Search struct {
	puzzle.Gateway
}

var productSchema = &server.Schema{
	Params: server.Object(map[string]any{"id": server.Type("string")}),
	Response: map[int]any{
		200: server.Object(map[string]any{
			"id":    server.Type("string"),
			"name":  server.Type("string"),
			"price": server.Type("number"),
		}),
	},
}

// Ports of the demo gateways.
type Ports struct {
	Browsing int
	Search   int
}

// Units holds the tokens of the demo application.
type Units struct {
	Catalog  *puzzle.Token
	Reviews  *puzzle.Token
	Products *puzzle.Token
	Search   *puzzle.Token
	Browsing *puzzle.Token
	Finder   *puzzle.Token
}

// Gateways returns the gateway tokens in start order.
func (u Units) Gateways() []*puzzle.Token {
	return []*puzzle.Token{u.Browsing, u.Finder}
}

// declareUnits registers the demo catalog: a Browsing gateway serving the
// product tree and a Search gateway, both sharing one Catalog.
func declareUnits(reg *puzzle.Registry, ports Ports) Units {
	var u Units

	u.Catalog = reg.Register(puzzle.NewToken("Catalog", NewCatalog))

	u.Reviews = puzzle.DeclareApi(reg, puzzle.NewToken("ReviewApi", func(c *Catalog) *ReviewApi {
		return &ReviewApi{catalog: c}
	}, u.Catalog), &puzzle.ApiConfig{Route: puzzle.NewPath("/:id/reviews")})
	puzzle.Get(reg, u.Reviews, puzzle.Paths("/"), (*ReviewApi).List)
	puzzle.Post(reg, u.Reviews, puzzle.Paths("/"), (*ReviewApi).Create)

	u.Products = puzzle.DeclareApi(reg, puzzle.NewToken("ProductApi", func(c *Catalog) *ProductApi {
		return &ProductApi{catalog: c}
	}, u.Catalog), &puzzle.ApiConfig{
		Route:   puzzle.NewPath("/products"),
		SubApis: []*puzzle.Token{u.Reviews},
	})
	puzzle.Get(reg, u.Products, puzzle.Paths("/"), (*ProductApi).List)
	puzzle.Get(reg, u.Products, puzzle.Paths("/:id"), (*ProductApi).Get, productSchema)

	u.Search = puzzle.DeclareApi(reg, puzzle.NewToken("SearchApi", func(c *Catalog) *SearchApi {
		return &SearchApi{catalog: c}
	}, u.Catalog), &puzzle.ApiConfig{Route: puzzle.NewPath("/search")})
	puzzle.Get(reg, u.Search, puzzle.Paths("/"), (*SearchApi).Query)

	u.Browsing = puzzle.DeclareGateway(reg, puzzle.NewToken("Browsing", func() *Browsing {
		return &Browsing{log: reg.Logger().Named("browsing")}
	}), &puzzle.GatewayConfig{
		Port:        ports.Browsing,
		HealthCheck: puzzle.NewPath("/healthz"),
		Api: puzzle.ApiSection{
			RoutePrefix: puzzle.NewPath("/api"),
			Handlers:    []*puzzle.Token{u.Products},
		},
		Fragments: puzzle.FragmentsSection{RoutePrefix: puzzle.NewPath("/fragments")},
	})
	puzzle.Get(reg, u.Browsing, puzzle.Paths("/version"), (*Browsing).Version)

	u.Finder = puzzle.DeclareGateway(reg, puzzle.NewToken("Search", func() *Search {
		return &Search{}
	}), &puzzle.GatewayConfig{
		Port:        ports.Search,
		HealthCheck: puzzle.NewPath("/healthz"),
		Api: puzzle.ApiSection{
			RoutePrefix: puzzle.NewPath("/api"),
			Handlers:    []*puzzle.Token{u.Search},
		},
	})

	return u
}
