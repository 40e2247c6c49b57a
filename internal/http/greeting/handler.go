// Package greeting serves the service's only business route: GET / answers
// with the constant text "Hello World!".
package greeting

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Message is the exact response body of GET /. No trailing newline.
const Message = "Hello World!"

// ContentType is the media type of the greeting body.
const ContentType = "text/plain; charset=utf-8"

// Output carries the raw greeting bytes. Huma writes []byte bodies verbatim,
// bypassing JSON/CBOR negotiation.
type Output struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// Register wires GET / into the API.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-greeting",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Greeting",
		Description: "Returns the fixed text `Hello World!`.",
		Tags:        []string{"Greeting"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Greeting text",
				Content: map[string]*huma.MediaType{
					"text/plain": {
						Schema: &huma.Schema{Type: huma.TypeString, Examples: []any{Message}},
					},
				},
			},
		},
	}, handler)
}

func handler(_ context.Context, _ *struct{}) (*Output, error) {
	return &Output{ContentType: ContentType, Body: []byte(Message)}, nil
}
