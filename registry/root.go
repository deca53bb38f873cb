// Package registry assembles the cobra commands the registry binary
// exposes, grounded on distribution/distribution's registry package
// (root.go, registry.go): a RootCmd with --version plus serve and
// garbage-collect subcommands, resolveConfiguration reading a YAML file
// named on the command line or REGISTRY_CONFIGURATION_PATH, and
// configureLogging applying the parsed Log section to logrus.
//
// Dropped relative to the teacher: Redis-backed blob descriptor caching
// (configRedis, getGCCacheProvider) has no SPEC_FULL.md cache layer to
// serve; OpenTelemetry instrumentation, Let's Encrypt/ACME autocert, H2C,
// and the logstash log formatter are likewise not wired by any other
// component in this core, so adding them here would be a one-off
// dependency with nothing to tie them together. Cipher suite and minimum
// TLS version tables are also dropped: this core's HTTP.TLS only names a
// certificate/key pair, so tls.Config is left to its Go default suite
// selection and minimum version.
package registry

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distribution-core/registry/configuration"
)

var showVersion bool

// version is set at build time via -ldflags, matching the teacher's
// version.Version convention without pulling in its whole version package.
var version = "dev"

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(GCCmd)
	GCCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "do everything except remove the blobs")
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
}

// RootCmd is the main command for the registry binary.
var RootCmd = &cobra.Command{
	Use:   "registry",
	Short: "`registry`",
	Long:  "`registry`",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version)
			return
		}
		cmd.Usage() //nolint:errcheck
	},
}

var dryRun bool

// resolveConfiguration reads the configuration file named in args[0], or
// failing that REGISTRY_CONFIGURATION_PATH, and parses it.
func resolveConfiguration(args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("REGISTRY_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("REGISTRY_CONFIGURATION_PATH")
	}

	if configurationPath == "" {
		return nil, fmt.Errorf("configuration path unspecified")
	}

	fp, err := os.Open(configurationPath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %v", configurationPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
