// Package server assembles the HTTP service: router, middleware, huma API,
// and the *http.Server whose lifetime is bound to the fx application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/janisto/hello-world/internal/config"
	"github.com/janisto/hello-world/internal/http/routes"
	applog "github.com/janisto/hello-world/internal/platform/logging"
	"github.com/janisto/hello-world/internal/platform/metrics"
	appmiddleware "github.com/janisto/hello-world/internal/platform/middleware"
	"github.com/janisto/hello-world/internal/platform/respond"
)

const (
	title    = "Hello World API"
	docsPath = "/api-docs"

	// maxRequestBody caps request bodies; no route reads one.
	maxRequestBody = 1 << 20
)

// Version is the build version reported in the OpenAPI document.
type Version string

// Module provides the HTTP stack. It needs config.Config and Version in the graph.
var Module = fx.Module("server",
	fx.Provide(
		NewLogger,
		metrics.New,
		NewRouter,
		NewAPI,
		NewHTTPServer,
	),
	fx.Invoke(
		routes.Register,
		// Requesting the server registers its lifecycle hooks.
		func(*http.Server) {},
	),
)

// New builds the fx application for cfg. Extra options are appended last so
// tests can populate or decorate components.
func New(cfg config.Config, version string, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Supply(cfg, Version(version)),
		Module,
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		// Leave room past the HTTP drain budget for the remaining hooks.
		fx.StopTimeout(cfg.ShutdownTimeout + time.Second),
	}
	return fx.New(append(base, opts...)...)
}

// NewLogger applies the configured level and returns the process logger.
func NewLogger(cfg config.Config) *zap.Logger {
	applog.SetLevel(cfg.LogLevel)
	logger := applog.Logger()
	logger.Info("logger configured", zap.Stringer("level", applog.Level()))
	return logger
}

// NewRouter builds the chi router with the shared middleware stack, problem
// responses for unmatched requests, and the Prometheus endpoint.
func NewRouter(m *metrics.Metrics) chi.Router {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Forwarded-For / X-Real-IP. Deploy behind a trusted proxy only.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(maxRequestBody),
		applog.RequestLogger(),
		applog.AccessLogger(),
		m.Middleware(),
		respond.Recoverer(),
	)

	router.Method(http.MethodGet, "/metrics", m.Handler())
	return router
}

// NewAPI creates the huma API on top of router.
func NewAPI(router chi.Router, version Version) huma.API {
	respond.Install()

	cfg := huma.DefaultConfig(title, string(version))
	cfg.DocsPath = docsPath
	api := humachi.New(router, cfg)
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)
	return api
}

// addCBORContent advertises application/cbor wherever application/json is
// documented, since huma negotiates both formats.
func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

// ServerParams are the dependencies of NewHTTPServer.
type ServerParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     config.Config
	Router     chi.Router
	Logger     *zap.Logger
}

// NewHTTPServer returns the HTTP server and binds it to the application
// lifecycle. The listener is opened in OnStart so a busy port fails startup;
// Addr is rewritten to the bound address, which matters for port 0.
func NewHTTPServer(p ServerParams) *http.Server {
	srv := &http.Server{
		Addr:              p.Config.Addr(),
		Handler:           p.Router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
		ErrorLog:          zap.NewStdLog(p.Logger.Named("http")),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var lc net.ListenConfig
			ln, err := lc.Listen(ctx, "tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			srv.Addr = ln.Addr().String()
			p.Logger.Info("server listening", zap.String("addr", srv.Addr))

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("serve failed", zap.Error(err), zap.String("addr", srv.Addr))
					if shutdownErr := p.Shutdowner.Shutdown(fx.ExitCode(1)); shutdownErr != nil {
						p.Logger.Error("shutdown request failed", zap.Error(shutdownErr))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			defer cancel()
			p.Logger.Info("shutting down server")
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			p.Logger.Info("server exited")
			return nil
		},
	})
	return srv
}
