package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/distribution-core/registry/internal/dcontext"
	"github.com/distribution-core/registry/metadata"
	"github.com/distribution-core/registry/metrics"
	"github.com/distribution-core/registry/notifications"
	"github.com/distribution-core/registry/registry/api/errcode"
	v2 "github.com/distribution-core/registry/registry/api/v2"
	"github.com/distribution-core/registry/registry/auth"
	"github.com/distribution-core/registry/registry/auth/token"
	"github.com/distribution-core/registry/registry/manifestservice"
	"github.com/distribution-core/registry/registry/storage"
)

// App wires every component a request needs and implements http.Handler by
// dispatching onto the named routes v2.RouterWithPrefix registers, the way
// distribution/distribution/registry/handlers.App does around its own
// Dispatcher func type.
type App struct {
	router     *mux.Router
	handler    http.Handler
	urlBuilder *v2.URLBuilder
	gate       *auth.Gate
	limiter    *rateLimiter

	blobs     *storage.BlobStore
	uploads   *storage.UploadManager
	manifests *manifestservice.Service
	index     metadata.Index
	notifier  notifications.Listener
}

// notify calls fn with the App's notifications.Listener, if one is
// configured, logging rather than failing the request on delivery error:
// a dropped notification should never turn a successful blob or manifest
// operation into a failed response.
func (app *App) notify(ctx context.Context, fn func(notifications.Listener) error) {
	if app.notifier == nil {
		return
	}
	if err := fn(app.notifier); err != nil {
		dcontext.GetLogger(ctx).Errorf("notifications: %v", err)
	}
}

// Config bundles the dependencies NewApp wires into an App.
type Config struct {
	Blobs           *storage.BlobStore
	Uploads         *storage.UploadManager
	Manifests       *manifestservice.Service
	Index           metadata.Index
	Gate            *auth.Gate
	PathPrefix      string
	AllowBlobDelete bool
	RateLimit       RateLimiterConfig
	Notifier        notifications.Listener

	// AccessLog, when non-nil, wraps every request in a
	// gorilla/handlers.CombinedLoggingHandler writing to it (Apache Combined
	// Log Format), controlled by the configuration package's
	// Log.AccessLog.Disabled. Nil skips access logging entirely.
	AccessLog io.Writer
}

// NewApp builds the registry's http.Handler.
func NewApp(cfg Config) *App {
	app := &App{
		router:     v2.RouterWithPrefix(cfg.PathPrefix),
		urlBuilder: v2.NewURLBuilder(cfg.PathPrefix),
		gate:       cfg.Gate,
		limiter:    newRateLimiter(cfg.RateLimit),
		blobs:      cfg.Blobs,
		uploads:    cfg.Uploads,
		manifests:  cfg.Manifests,
		index:      cfg.Index,
		notifier:   cfg.Notifier,
	}

	app.register(v2.RouteNameBase, methodHandlers{http.MethodGet: app.serveBase})
	app.register(v2.RouteNameCatalog, methodHandlers{http.MethodGet: app.serveCatalog})
	app.register(v2.RouteNameTags, methodHandlers{http.MethodGet: app.serveTags})
	app.register(v2.RouteNameManifest, methodHandlers{
		http.MethodGet:    app.serveManifestGet,
		http.MethodHead:   app.serveManifestGet,
		http.MethodPut:    app.serveManifestPut,
		http.MethodDelete: app.serveManifestDelete,
	})
	app.register(v2.RouteNameBlob, app.blobHandlers(cfg.AllowBlobDelete))
	app.register(v2.RouteNameBlobUpload, methodHandlers{
		http.MethodPost: app.serveBlobUploadStart,
	})
	app.register(v2.RouteNameBlobUploadChunk, methodHandlers{
		http.MethodPatch:  app.serveBlobUploadChunk,
		http.MethodPut:    app.serveBlobUploadFinalize,
		http.MethodGet:    app.serveBlobUploadStatus,
		http.MethodDelete: app.serveBlobUploadCancel,
	})

	app.handler = ghandlers.RecoveryHandler(
		ghandlers.RecoveryLogger(recoveryLogger{}),
		ghandlers.PrintRecoveryStack(false),
	)(app.router)

	if cfg.AccessLog != nil {
		app.handler = ghandlers.CombinedLoggingHandler(cfg.AccessLog, app.handler)
	}

	return app
}

// recoveryLogger adapts dcontext's logrus-backed logger to gorilla/handlers'
// RecoveryHandlerLogger interface, so a panicking handler is logged the same
// way any other request-scoped error is.
type recoveryLogger struct{}

func (recoveryLogger) Println(args ...interface{}) {
	dcontext.GetLogger(context.Background()).Errorln(args...)
}

func (app *App) blobHandlers(allowDelete bool) methodHandlers {
	h := methodHandlers{
		http.MethodGet:  app.serveBlobGet,
		http.MethodHead: app.serveBlobGet,
	}
	if allowDelete {
		h[http.MethodDelete] = app.serveBlobDelete
	}
	return h
}

// methodHandlers maps an HTTP method to the handlerFunc serving it on a
// single route.
type methodHandlers map[string]handlerFunc

// handlerFunc is a request handler scoped to a single repository, already
// authorized for the action dispatch determined from the route and method.
type handlerFunc func(ctx *Context, w http.ResponseWriter, r *http.Request)

// routeAction maps a route name and HTTP method to the scope action the
// gate must authorize before the handler runs.
func routeAction(routeName, method string) auth.Action {
	switch {
	case routeName == v2.RouteNameBase || routeName == v2.RouteNameCatalog:
		return auth.ActionPull
	case method == http.MethodGet || method == http.MethodHead:
		return auth.ActionPull
	case method == http.MethodDelete:
		return auth.ActionDelete
	default:
		return auth.ActionPush
	}
}

// register attaches handlers to routeName's route as a
// gorilla/handlers.MethodHandler, so a method with no entry gets the
// library's standard 405 + Allow header instead of bespoke handling here.
func (app *App) register(routeName string, handlers methodHandlers) {
	route := app.router.Get(routeName)
	if route == nil {
		return
	}

	mh := make(ghandlers.MethodHandler, len(handlers))
	for method, fn := range handlers {
		mh[method] = app.authorized(routeName, fn)
	}
	route.Handler(mh)
}

// authorized wraps fn with the per-request Context, authentication, and
// gate authorization every route (besides the base route) requires before
// its handler body runs.
func (app *App) authorized(routeName string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			metrics.RequestsTotal.WithValues(routeName, strconv.Itoa(sw.status)).Inc(1)
			metrics.RequestDuration.WithValues(routeName).UpdateSince(start)
		}()

		ctx := &Context{Context: dcontext.WithLogger(r.Context(), dcontext.GetLogger(r.Context())), Repo: repoName(r)}

		if ctx.Repo != "" && !validRepoName(ctx.Repo) {
			errcode.ServeJSON(sw, errcode.ErrorCodeNameInvalid.WithDetail(ctx.Repo))
			return
		}

		principal, err := app.authenticate(r)
		if err != nil {
			writeAuthError(sw, err)
			return
		}
		ctx.Principal = principal

		if !app.limiter.allow(rateLimitKey(principal, r)) {
			writeTooManyRequests(sw, 1)
			return
		}

		if routeName != v2.RouteNameBase {
			action := routeAction(routeName, r.Method)
			if err := app.gate.Authorize(principal, ctx.Repo, action); err != nil {
				writeAuthError(sw, err)
				return
			}
		}

		fn(ctx, sw, r)
	})
}

// statusWriter records the status code a handler writes, so the request
// metrics deferred in authorized can label registry_requests_total by
// outcome without every handler threading it through explicitly.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// authenticate decodes the bearer token on r's Authorization header, if
// any, into a Principal. A request with no token is anonymous, not an
// error; the gate decides whether that's sufficient.
func (app *App) authenticate(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return auth.AnonymousPrincipal(), nil
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return auth.AnonymousPrincipal(), nil
	}

	principal, err := token.DecodePrincipal(strings.TrimPrefix(authz, prefix))
	if err != nil {
		// A malformed token is treated the same as no token: the gate's
		// anonymous-access policy applies rather than a generic 500.
		return auth.AnonymousPrincipal(), nil
	}
	return principal, nil
}

func (app *App) serveBase(ctx *Context, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("{}"))
}

// ServeHTTP implements http.Handler. Requests are recovered from panics by
// the gorilla/handlers middleware NewApp installed before reaching the
// router.
func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.handler.ServeHTTP(w, r)
}
