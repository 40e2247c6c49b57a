// Package respond renders framework-level failures (unknown route, wrong
// method, panic) as RFC 9457 problem documents and logs huma errors.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/negotiation"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	applog "github.com/janisto/hello-world/internal/platform/logging"
)

const (
	// ContentTypeProblemJSON is the media type of JSON problem documents.
	ContentTypeProblemJSON = "application/problem+json"
	// ContentTypeProblemCBOR is the media type of CBOR problem documents.
	ContentTypeProblemCBOR = "application/problem+cbor"

	errorSchemaPath = "/schemas/ErrorModel.json"

	msgNotFound          = "resource not found"
	msgInternalServerErr = "internal server error"
)

var problemTypes = []string{
	"application/json",
	ContentTypeProblemJSON,
	"application/cbor",
	ContentTypeProblemCBOR,
}

var installOnce sync.Once

// problemDocument adds the $schema reference huma puts on its own error bodies.
type problemDocument struct {
	Schema string `json:"$schema,omitempty"`
	huma.ErrorModel
}

// Install makes huma log every error it renders with the request-scoped
// logger. The response body stays huma's default ErrorModel.
func Install() {
	installOnce.Do(func() {
		newError := huma.NewError
		huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
			ctx := context.Background()
			if hctx != nil {
				ctx = hctx.Context()
			}
			logWithStatus(ctx, status, msg, errors.Join(errs...))
			return newError(status, msg, errs...)
		}
	})
}

// WriteProblem writes a problem document for status, encoded as CBOR when the
// client prefers it and JSON otherwise. The body and a Link header both point
// at the ErrorModel schema.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) error {
	schema := schemaURL(r)
	problem := &problemDocument{
		Schema: schema,
		ErrorModel: huma.ErrorModel{
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   detail,
			Instance: r.URL.Path,
		},
	}

	var (
		body []byte
		ct   string
		err  error
	)
	if strings.Contains(negotiation.SelectQValueFast(r.Header.Get("Accept"), problemTypes), "cbor") {
		ct = ContentTypeProblemCBOR
		body, err = cbor.Marshal(problem)
	} else {
		ct = ContentTypeProblemJSON
		body, err = json.Marshal(problem)
	}
	if err != nil {
		return fmt.Errorf("encode problem: %w", err)
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Add("Link", "<"+schema+`>; rel="describedBy"`)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write problem: %w", err)
	}
	return nil
}

// NotFoundHandler emits a 404 problem document.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logWithStatus(r.Context(), http.StatusNotFound, msgNotFound, nil, zap.String("path", r.URL.Path))
		if err := WriteProblem(w, r, http.StatusNotFound, msgNotFound); err != nil {
			applog.LogError(r.Context(), "failed to render not found", err)
		}
	}
}

// MethodNotAllowedHandler emits a 405 problem document with an Allow header
// listing the methods the matched path does accept.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		detail := fmt.Sprintf("method %s not allowed", r.Method)
		logWithStatus(r.Context(), http.StatusMethodNotAllowed, detail, nil, zap.String("path", r.URL.Path))
		if err := WriteProblem(w, r, http.StatusMethodNotAllowed, detail); err != nil {
			applog.LogError(r.Context(), "failed to render method not allowed", err)
		}
	}
}

// Recoverer converts panics into 500 problem documents. http.ErrAbortHandler
// is re-panicked so net/http can abort the connection, and nothing is written
// when the handler already sent a status line.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				logWithStatus(r.Context(), http.StatusInternalServerError, "panic recovered", err,
					zap.ByteString("stack", debug.Stack()))
				if ww.Status() != 0 {
					return
				}
				if writeErr := WriteProblem(ww, r, http.StatusInternalServerError, msgInternalServerErr); writeErr != nil {
					applog.LogError(r.Context(), "failed to render internal error", writeErr)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// schemaURL resolves the ErrorModel schema against the request host. TLS or
// X-Forwarded-Proto: https selects the https scheme.
func schemaURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + errorSchemaPath
}

// allowedMethods inspects chi's routing tree to discover the methods the
// request path is registered for.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	routePath := rctx.RoutePath
	if routePath == "" {
		if r.URL.RawPath != "" {
			routePath = r.URL.RawPath
		} else {
			routePath = r.URL.Path
		}
		if routePath == "" {
			routePath = "/"
		}
	}

	methods := []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowed := make([]string, 0, len(methods))
	for _, method := range methods {
		if rctx.Routes.Match(chi.NewRouteContext(), method, routePath) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

func logWithStatus(ctx context.Context, status int, msg string, err error, fields ...zap.Field) {
	if msg == "" {
		msg = "request failed"
	}
	fields = append(fields, zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		applog.LogError(ctx, msg, err, fields...)
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status >= http.StatusBadRequest {
		applog.LogWarn(ctx, msg, fields...)
		return
	}
	applog.LogInfo(ctx, msg, fields...)
}
