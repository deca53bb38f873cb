package registry

import (
	"context"
	"fmt"
	"io"
	"os"

	events "github.com/docker/go-events"
	"github.com/sirupsen/logrus"

	"github.com/distribution-core/registry/configuration"
	"github.com/distribution-core/registry/metadata"
	"github.com/distribution-core/registry/notifications"
	v2 "github.com/distribution-core/registry/registry/api/v2"
	"github.com/distribution-core/registry/registry/auth"
	"github.com/distribution-core/registry/registry/handlers"
	"github.com/distribution-core/registry/registry/manifestservice"
	"github.com/distribution-core/registry/registry/storage"
	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
	"github.com/distribution-core/registry/registry/storage/driver/factory"

	_ "github.com/distribution-core/registry/registry/storage/driver/filesystem"
	_ "github.com/distribution-core/registry/registry/storage/driver/inmemory"
)

// DefaultMaxManifestSize matches manifestservice's own default, used when
// config.Storage.MaxManifestSize is unset.
const DefaultMaxManifestSize = 4 << 20

// buildApp wires a handlers.App plus the subsystems it needs directly from
// config, the way the teacher's NewRegistry builds a handlers.App from a
// *configuration.Configuration. The returned io.Closer releases the
// metadata index's resources (a postgres connection pool); callers should
// Close it on shutdown.
func buildApp(ctx context.Context, config *configuration.Configuration) (*handlers.App, io.Closer, error) {
	driver, err := newStorageDriver(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct %s driver: %v", config.Storage.Driver, err)
	}

	index, closer, err := newMetadataIndex(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct metadata index: %v", err)
	}

	blobs := storage.NewBlobStore(driver)
	maxBlobSize := config.Storage.MaxBlobSize
	uploads := storage.NewUploadManager(blobs, driver, maxBlobSize)

	notifier := buildNotifier(config)

	maxManifestSize := config.Storage.MaxManifestSize
	if maxManifestSize <= 0 {
		maxManifestSize = DefaultMaxManifestSize
	}
	var manifestOpts []manifestservice.Option
	if notifier != nil {
		manifestOpts = append(manifestOpts, manifestservice.WithNotifier(notifier))
	}
	manifests := manifestservice.New(blobs, index, maxManifestSize, manifestOpts...)

	gate := auth.NewGate(auth.GateConfig{
		AllowAnonymousPull: config.Security.AllowAnonymousPull,
		IsPublic:           func(repo string) bool { return !config.Security.RequireAuth },
		Realm:              config.Auth.Realm,
		Service:             config.Auth.Service,
	})

	var accessLog io.Writer
	if !config.Log.AccessLog.Disabled {
		accessLog = os.Stdout
	}

	rps := float64(config.Security.RateLimit) / 60
	app := handlers.NewApp(handlers.Config{
		Blobs:           blobs,
		Uploads:         uploads,
		Manifests:       manifests,
		Index:           index,
		Gate:            gate,
		PathPrefix:      config.HTTP.Prefix,
		AllowBlobDelete: true,
		RateLimit: handlers.RateLimiterConfig{
			RequestsPerSecond: rps,
		},
		Notifier:  notifier,
		AccessLog: accessLog,
	})

	return app, closer, nil
}

func newStorageDriver(ctx context.Context, config *configuration.Configuration) (storagedriver.StorageDriver, error) {
	params := map[string]interface{}{}
	for k, v := range config.Storage.Parameters {
		params[k] = v
	}
	if _, ok := params["rootdirectory"]; !ok && config.Storage.Path != "" {
		params["rootdirectory"] = config.Storage.Path
	}
	return factory.Create(ctx, config.Storage.Driver, params)
}

// newMetadataIndex builds the configured metadata.Index; its Close is
// also the returned io.Closer, since the interface already requires one
// (postgres closes its connection pool, memory's is a no-op).
func newMetadataIndex(ctx context.Context, config *configuration.Configuration) (metadata.Index, io.Closer, error) {
	switch config.Metadata.Driver {
	case "", "memory":
		idx := metadata.NewMemoryIndex()
		return idx, idx, nil
	case "postgres":
		idx, err := metadata.OpenPostgresIndex(ctx, config.Metadata.DSN)
		if err != nil {
			return nil, nil, err
		}
		return idx, idx, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata driver %q", config.Metadata.Driver)
	}
}

// buildNotifier fans out to every enabled Notifications.Endpoints entry
// through a single events.Broadcaster, the way the teacher's
// handlers.App builds app.events.sink from config.Notifications.Endpoints,
// adapted to this core's notifications.NewBridge/NewEndpoint split. Returns
// nil when no endpoints are configured, leaving App.notifier unset.
func buildNotifier(config *configuration.Configuration) notifications.Listener {
	var sinks []events.Sink
	for _, ep := range config.Notifications.Endpoints {
		if ep.Disabled {
			continue
		}
		endpoint := notifications.NewEndpoint(ep.Name, ep.URL, notifications.EndpointConfig{
			Timeout:           ep.Timeout,
			Headers:           ep.Headers,
			IgnoredMediaTypes: ep.IgnoredMediaTypes,
			IgnoredActions:    ep.IgnoredActions,
			Sync:              ep.Sync,
		})
		sinks = append(sinks, endpoint.Sink)
	}
	if len(sinks) == 0 {
		return nil
	}

	broadcaster := events.NewBroadcaster(sinks...)
	ub := v2.NewURLBuilder(config.HTTP.Prefix)
	source := notifications.SourceRecord{Addr: config.HTTP.Addr}
	return notifications.NewBridge(ub, source, notifications.ActorRecord{}, notifications.RequestRecord{}, broadcaster, config.Notifications.EventConfig.IncludeReferences)
}

// configureLogging applies config.Log to the standard logrus logger,
// matching the teacher's configureLogging.
func configureLogging(config *configuration.Configuration) error {
	level, err := logrus.ParseLevel(string(config.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetReportCaller(config.Log.ReportCaller)

	switch config.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("unsupported logging formatter: %q", config.Log.Formatter)
	}

	if len(config.Log.Fields) > 0 {
		logrus.WithFields(config.Log.Fields).Debug("static log fields configured")
	}

	return nil
}
