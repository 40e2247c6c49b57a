// Package greeting exposes the greeting as an HTTP Cloud Function, for
// deployments that do not run the long-lived server.
package greeting

import (
	"io"
	"net/http"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
)

// Message matches the server's GET / body.
const Message = "Hello World!"

func init() {
	functions.HTTP("Greeting", greetingHandler)
}

func greetingHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, Message)
}
