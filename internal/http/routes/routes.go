package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/hello-world/internal/http/greeting"
	"github.com/janisto/hello-world/internal/http/health"
)

// Register wires all huma operations into the provided API.
func Register(api huma.API) {
	greeting.Register(api)
	health.Register(api)
}
