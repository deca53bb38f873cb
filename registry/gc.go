package registry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/distribution-core/registry/configuration"
	"github.com/distribution-core/registry/registry/gc"
	"github.com/distribution-core/registry/registry/storage"
)

// GCCmd is the cobra command that corresponds to the garbage-collect
// subcommand, grounded on the teacher's GCCmd (registry/root.go): resolve
// configuration, build the storage driver and metadata index, and run one
// mark-and-sweep pass.
var GCCmd = &cobra.Command{
	Use:   "garbage-collect <config>",
	Short: "`garbage-collect` deletes blobs not referenced by any manifest",
	Long:  "`garbage-collect` deletes blobs not referenced by any manifest",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			cmd.Usage() //nolint:errcheck
			os.Exit(1)
		}

		if err := configureLogging(config); err != nil {
			fmt.Fprintf(os.Stderr, "unable to configure logging: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		collector, closer, err := newCollector(ctx, config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		defer closer.Close()

		stats, err := collector.Run(ctx, gc.Options{
			SafetyHorizon: config.GC.SafetyHorizon,
			SessionTTL:    config.GC.SessionTTL,
			DryRun:        dryRun,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "garbage collection failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("reaped %d sessions, marked %d blobs, scanned %d, deleted %d (%d bytes reclaimed)\n",
			stats.SessionsReaped, stats.BlobsMarked, stats.BlobsScanned, stats.BlobsDeleted, stats.BytesReclaimed)
		for _, e := range stats.Errors {
			fmt.Fprintf(os.Stderr, "gc: %v\n", e)
		}
	},
}

// newCollector builds a gc.Collector against config's storage driver and
// metadata index, shared by GCCmd's offline sweep and Registry's periodic
// online GC ticker.
func newCollector(ctx context.Context, config *configuration.Configuration) (*gc.Collector, io.Closer, error) {
	driver, err := newStorageDriver(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct %s driver: %v", config.Storage.Driver, err)
	}

	index, closer, err := newMetadataIndex(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct metadata index: %v", err)
	}

	blobs := storage.NewBlobStore(driver)
	return gc.New(blobs, index), closer, nil
}
