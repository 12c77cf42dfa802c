package gateway

import (
	"time"

	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

// HealthSchema describes the health check response.
var HealthSchema = &server.Schema{
	Response: map[int]any{
		200: server.Object(map[string]any{
			"ts": server.Type("number"),
		}),
	},
}

func healthHandler(_ *server.Request, reply *server.Reply) error {
	return reply.Send(map[string]int64{
		"ts": time.Now().UnixMilli(),
	})
}

func healthRegistration(unit string, path *route.Path) Registration {
	return Registration{
		Path:    path,
		Method:  route.MethodGet,
		Handler: healthHandler,
		Schema:  HealthSchema,
		Unit:    unit,
	}
}
