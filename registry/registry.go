package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/distribution-core/registry/configuration"
	"github.com/distribution-core/registry/registry/gc"
)

// ServeCmd is the cobra command that corresponds to the serve subcommand.
var ServeCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "`serve` stores and distributes container images",
	Long:  "`serve` stores and distributes container images",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			cmd.Usage() //nolint:errcheck
			os.Exit(1)
		}

		if err := configureLogging(config); err != nil {
			logrus.Fatalln(err)
		}

		reg, err := NewRegistry(context.Background(), config)
		if err != nil {
			logrus.Fatalln(err)
		}

		if err := reg.ListenAndServe(); err != nil {
			logrus.Fatalln(err)
		}
	},
}

// Registry is a complete running instance of the registry: an HTTP server
// in front of a handlers.App, plus an optional background GC ticker,
// matching the teacher's Registry/NewRegistry/ListenAndServe/Shutdown
// shape (registry/registry.go), trimmed of TLS cipher-suite negotiation,
// Let's Encrypt, H2C, and OpenTelemetry (see root.go's package doc).
type Registry struct {
	config *configuration.Configuration
	server *http.Server
	closer interface{ Close() error }
	quit   chan os.Signal

	gcStop chan struct{}
}

// NewRegistry builds a Registry from config, wiring the handlers.App and,
// if config.GC.Interval is set, a background ticker that runs the
// collector's Run between requests (§12's supplemented online GC,
// alongside the offline garbage-collect subcommand).
func NewRegistry(ctx context.Context, config *configuration.Configuration) (*Registry, error) {
	app, closer, err := buildApp(ctx, config)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		config: config,
		closer: closer,
		server: &http.Server{
			Addr:    config.HTTP.Addr,
			Handler: app,
		},
		quit: make(chan os.Signal, 1),
	}

	if config.GC.Interval > 0 {
		reg.gcStop = make(chan struct{})
		go reg.runPeriodicGC(config)
	}

	return reg, nil
}

func (reg *Registry) runPeriodicGC(config *configuration.Configuration) {
	ticker := time.NewTicker(config.GC.Interval)
	defer ticker.Stop()

	collector, _, err := newCollector(context.Background(), config)
	if err != nil {
		logrus.Errorf("gc: failed to construct collector: %v", err)
		return
	}

	for {
		select {
		case <-ticker.C:
			stats, err := collector.Run(context.Background(), gc.Options{
				SafetyHorizon: config.GC.SafetyHorizon,
				SessionTTL:    config.GC.SessionTTL,
			})
			if err != nil {
				logrus.Errorf("gc: run failed: %v", err)
				continue
			}
			logrus.Infof("gc: reaped %d sessions, deleted %d blobs (%d bytes)", stats.SessionsReaped, stats.BlobsDeleted, stats.BytesReclaimed)
		case <-reg.gcStop:
			return
		}
	}
}

// ListenAndServe serves the registry's HTTP handler until a stop signal
// arrives, draining in-flight requests for config.HTTP.DrainTimeout before
// returning, matching the teacher's ListenAndServe signal handling.
func (reg *Registry) ListenAndServe() error {
	config := reg.config

	if config.HTTP.TLS.Certificate != "" {
		logrus.Infof("listening on %v, tls", config.HTTP.Addr)
		if config.HTTP.DrainTimeout == 0 {
			return reg.server.ListenAndServeTLS(config.HTTP.TLS.Certificate, config.HTTP.TLS.Key)
		}
	} else {
		logrus.Infof("listening on %v", config.HTTP.Addr)
		if config.HTTP.DrainTimeout == 0 {
			return reg.server.ListenAndServe()
		}
	}

	signal.Notify(reg.quit, os.Interrupt, syscall.SIGTERM)
	serveErr := make(chan error, 1)

	go func() {
		if config.HTTP.TLS.Certificate != "" {
			serveErr <- reg.server.ListenAndServeTLS(config.HTTP.TLS.Certificate, config.HTTP.TLS.Key)
		} else {
			serveErr <- reg.server.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-reg.quit:
		logrus.Infof("stopping server gracefully, draining connections for %v", config.HTTP.DrainTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), config.HTTP.DrainTimeout)
		defer cancel()
		return reg.Shutdown(ctx)
	}
}

// Shutdown gracefully stops reg's HTTP server, the GC ticker if running,
// and releases the metadata index.
func (reg *Registry) Shutdown(ctx context.Context) error {
	if reg.gcStop != nil {
		close(reg.gcStop)
	}
	err := reg.server.Shutdown(ctx)
	if reg.closer != nil {
		if closeErr := reg.closer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
