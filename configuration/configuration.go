// Package configuration defines this registry's YAML configuration
// surface, grounded on distribution/distribution's configuration package:
// a versioned top-level Configuration struct, parsed with Parser (see
// parser.go) and overridable by environment variables. Trimmed to the
// sections spec §6.4 and the ambient stack actually need: the teacher's
// Redis, Health, Catalog, Proxy, Validation, and Policy sections back
// features (pull-through caching, health checkers, repository class
// policy, ...) that no SPEC_FULL.md component implements, so they are not
// carried over; Middleware is dropped for the same reason, since this core
// has no middleware injection points. Auth is narrowed from the teacher's
// pluggable htpasswd/token/silly map to the single Realm/Service pair
// registry/auth/token's bearer-claims decoding and registry/auth.Gate's
// challenge responses need.
package configuration

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Version is a major/minor version pair of the form Major.Minor. Major
// version upgrades indicate structure or type changes; minor upgrades
// should be strictly additive.
type Version string

// MajorMinorVersion constructs a Version from its Major and Minor parts.
func MajorMinorVersion(major, minor uint) Version {
	return Version(fmt.Sprintf("%d.%d", major, minor))
}

func (version Version) major() (uint, error) {
	majorPart := strings.Split(string(version), ".")[0]
	major, err := strconv.ParseUint(majorPart, 10, 0)
	return uint(major), err
}

// Major returns the major version portion of a Version.
func (version Version) Major() uint {
	major, _ := version.major()
	return major
}

func (version Version) minor() (uint, error) {
	parts := strings.Split(string(version), ".")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed version %q", version)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 0)
	return uint(minor), err
}

// Minor returns the minor version portion of a Version.
func (version Version) Minor() uint {
	minor, _ := version.minor()
	return minor
}

// UnmarshalYAML implements the yaml.Unmarshaler interface, validating that
// the decoded string parses as Major.Minor.
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	newVersion := Version(s)
	if _, err := newVersion.major(); err != nil {
		return err
	}
	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version Parse accepts.
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged: error, warn, info,
// or debug.
type Loglevel string

// UnmarshalYAML implements the yaml.Unmarshaler interface, lowercasing and
// validating the decoded string.
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	s = strings.ToLower(s)
	switch s {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s: must be one of [error, warn, info, debug]", s)
	}

	*loglevel = Loglevel(s)
	return nil
}

// Configuration is a versioned registry configuration, provided by a YAML
// file and optionally overridden by environment variables (see parser.go).
//
// Note that yaml field names should never include '_' characters, since
// that's the separator Parser uses to build environment variable names
// from a field's path.
type Configuration struct {
	// Version selects which schema the rest of the document is parsed as.
	Version Version `yaml:"version"`

	// Log configures the logging subsystem (ambient stack, §10.1).
	Log Log `yaml:"log"`

	// Storage configures the blob store's backing driver and size limits
	// (spec §6.4: storage.path, storage.max_blob_size,
	// storage.max_manifest_size).
	Storage Storage `yaml:"storage"`

	// Upload configures resumable upload session bookkeeping (spec §6.4:
	// upload.session_ttl).
	Upload Upload `yaml:"upload"`

	// Security configures the Authorization Gate's policy (spec §6.4:
	// security.require_auth, security.allow_anonymous_pull,
	// security.rate_limit).
	Security Security `yaml:"security"`

	// GC configures the garbage collector's safety horizon (spec §6.4:
	// gc.safety_horizon).
	GC GC `yaml:"gc"`

	// Metadata selects the backing store for the relational index
	// (repositories, tags, manifests, upload sessions).
	Metadata Metadata `yaml:"metadata,omitempty"`

	// HTTP contains configuration parameters for the registry's HTTP
	// interface.
	HTTP HTTP `yaml:"http,omitempty"`

	// Auth configures the realm/service this registry's WWW-Authenticate
	// challenges advertise (spec §6.3: the core consumes an
	// externally-verified Principal, so there is no key material here).
	Auth Auth `yaml:"auth,omitempty"`

	// Notifications configures the event endpoints component notifications
	// dispatches manifest and blob events to.
	Notifications Notifications `yaml:"notifications,omitempty"`
}

// Log represents the logging subsystem's configuration.
type Log struct {
	// AccessLog configures HTTP access logging.
	AccessLog AccessLog `yaml:"accesslog,omitempty"`

	// Level is the granularity at which registry operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter with another. Options
	// include "text" and "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows static string fields to be added to the logger's
	// context.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// ReportCaller turns on caller reporting in log entries.
	ReportCaller bool `yaml:"reportcaller,omitempty"`
}

// AccessLog configures HTTP access logging.
type AccessLog struct {
	// Disabled disables access logging. Default: enabled.
	Disabled bool `yaml:"disabled,omitempty"`
}

// Parameters is a generic key-value parameters mapping, passed through to
// a storage driver factory.
type Parameters map[string]interface{}

// Storage configures the registry's blob storage.
type Storage struct {
	// Driver selects the storagedriver/factory-registered driver name,
	// e.g. "filesystem" or "inmemory".
	Driver string `yaml:"driver,omitempty"`

	// Path is the data root passed to the filesystem driver as its
	// rootdirectory parameter (spec §6.4: storage.path, default
	// "./storage").
	Path string `yaml:"path,omitempty"`

	// MaxBlobSize rejects blob uploads exceeding this many bytes (spec
	// §6.4: storage.max_blob_size, default 5 GiB). Zero or negative uses
	// the default.
	MaxBlobSize int64 `yaml:"maxblobsize,omitempty"`

	// MaxManifestSize rejects manifest PUTs exceeding this many bytes
	// (spec §6.4: storage.max_manifest_size, default 4 MiB). Zero or
	// negative uses the default.
	MaxManifestSize int64 `yaml:"maxmanifestsize,omitempty"`

	// Parameters carries any additional driver-specific parameters beyond
	// Path, forwarded to factory.Create verbatim.
	Parameters Parameters `yaml:"parameters,omitempty"`
}

// Upload configures resumable upload session bookkeeping.
type Upload struct {
	// SessionTTL is how long an upload session may sit idle before it is
	// reaped (spec §6.4: upload.session_ttl, default 24h).
	SessionTTL time.Duration `yaml:"sessionttl,omitempty"`
}

// Security configures the Authorization Gate's policy.
type Security struct {
	// RequireAuth denies anonymous principals entirely when true (spec
	// §6.4: security.require_auth, default true).
	RequireAuth bool `yaml:"requireauth,omitempty"`

	// AllowAnonymousPull permits anonymous pull against repositories
	// marked public, overriding RequireAuth for that one action (spec
	// §6.4: security.allow_anonymous_pull, default false).
	AllowAnonymousPull bool `yaml:"allowanonymouspull,omitempty"`

	// RateLimit caps requests per minute per principal (or per IP for
	// anonymous callers). Zero or unset uses the default of 1000; a
	// negative value disables rate limiting (spec §6.4: security.rate_limit).
	RateLimit int `yaml:"ratelimit,omitempty"`
}

// GC configures the garbage collector.
type GC struct {
	// SafetyHorizon is the minimum age an unreferenced blob must reach
	// before sweep will delete it (spec §6.4: gc.safety_horizon, default
	// 1h).
	SafetyHorizon time.Duration `yaml:"safetyhorizon,omitempty"`

	// SessionTTL overrides Upload.SessionTTL for the collector's own
	// session-reap prelude, if set; otherwise Upload.SessionTTL is used.
	SessionTTL time.Duration `yaml:"sessionttl,omitempty"`

	// Interval, if nonzero, makes cmd/registry's serve command run GC on
	// a ticker alongside serving requests (§12's supplemented online GC),
	// rather than only through the offline garbage-collect subcommand.
	Interval time.Duration `yaml:"interval,omitempty"`
}

// Metadata configures the relational index backend.
type Metadata struct {
	// Driver selects the index implementation: "memory" (the default, not
	// durable across restarts) or "postgres".
	Driver string `yaml:"driver,omitempty"`

	// DSN is the lib/pq data source name used when Driver is "postgres".
	DSN string `yaml:"dsn,omitempty"`
}

// HTTP defines configuration options for the registry's HTTP interface.
type HTTP struct {
	// Addr specifies the bind address for the registry instance.
	Addr string `yaml:"addr,omitempty"`

	// Host specifies an externally-reachable address for the registry, as
	// a fully qualified URL, used to build absolute Location headers.
	Host string `yaml:"host,omitempty"`

	// Prefix specifies a URL path prefix to serve the registry under,
	// e.g. "/registry" instead of "/".
	Prefix string `yaml:"prefix,omitempty"`

	// DrainTimeout is how long to wait for in-flight requests to finish
	// before shutting down on a stop signal.
	DrainTimeout time.Duration `yaml:"draintimeout,omitempty"`

	// TLS instructs the HTTP server to listen with TLS using Certificate
	// and Key.
	TLS TLS `yaml:"tls,omitempty"`
}

// TLS defines certificate/key paths for the registry's HTTP listener.
type TLS struct {
	// Certificate is the path to an x509 certificate file.
	Certificate string `yaml:"certificate,omitempty"`

	// Key is the path to the x509 private key file matching Certificate.
	Key string `yaml:"key,omitempty"`
}

// Auth configures the realm/service a WWW-Authenticate challenge
// advertises when a request lacks sufficient grants.
type Auth struct {
	// Realm is the bearer-token realm URL advertised in challenges.
	Realm string `yaml:"realm,omitempty"`

	// Service is the service name advertised in challenges.
	Service string `yaml:"service,omitempty"`
}

// Notifications configures the event endpoints notifications dispatches
// manifest and blob events to.
type Notifications struct {
	// EventConfig configures the event format sent to every Endpoint.
	EventConfig Events `yaml:"events,omitempty"`

	// Endpoints lists the HTTP webhook endpoints events are posted to.
	Endpoints []Endpoint `yaml:"endpoints,omitempty"`
}

// Events configures notification event content.
type Events struct {
	// IncludeReferences includes a manifest's referenced digests in its
	// push/pull events.
	IncludeReferences bool `yaml:"includereferences,omitempty"`
}

// Endpoint describes one HTTP webhook notification target.
type Endpoint struct {
	Name              string        `yaml:"name"`
	Disabled          bool          `yaml:"disabled,omitempty"`
	URL               string        `yaml:"url"`
	Headers           http.Header   `yaml:"headers,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	IgnoredMediaTypes []string      `yaml:"ignoredmediatypes,omitempty"`
	IgnoredActions    []string      `yaml:"ignoredactions,omitempty"`
	Sync              bool          `yaml:"sync,omitempty"`
}

// v0_1Configuration is a Version 0.1 Configuration struct, currently
// aliased to Configuration as it is the only supported version.
type v0_1Configuration Configuration

// Parse parses an input configuration YAML document into a Configuration,
// applying defaults and environment variable overrides the way
// parser.Parse does (see parser.go). Environment variables follow the
// scheme Configuration.Abc -> REGISTRY_ABC, Configuration.Abc.Xyz ->
// REGISTRY_ABC_XYZ, and so on.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("registry", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				v0_1, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
				}

				if v0_1.Log.Level == Loglevel("") {
					v0_1.Log.Level = Loglevel("info")
				}
				if v0_1.Storage.Path == "" {
					v0_1.Storage.Path = "./storage"
				}
				if v0_1.Storage.Driver == "" {
					v0_1.Storage.Driver = "filesystem"
				}
				if v0_1.Upload.SessionTTL <= 0 {
					v0_1.Upload.SessionTTL = 24 * time.Hour
				}
				if v0_1.GC.SessionTTL <= 0 {
					v0_1.GC.SessionTTL = v0_1.Upload.SessionTTL
				}
				if v0_1.Security.RateLimit == 0 {
					v0_1.Security.RateLimit = 1000
				}
				// A bool field can't tell an absent requireauth from false, so
				// check the document and the environment for an explicit value.
				var explicit struct {
					Security struct {
						RequireAuth *bool `yaml:"requireauth"`
					} `yaml:"security"`
				}
				_, fromEnv := os.LookupEnv("REGISTRY_SECURITY_REQUIREAUTH")
				if err := yaml.Unmarshal(in, &explicit); err == nil && explicit.Security.RequireAuth == nil && !fromEnv {
					v0_1.Security.RequireAuth = true
				}
				if v0_1.GC.SafetyHorizon <= 0 {
					v0_1.GC.SafetyHorizon = time.Hour
				}
				if v0_1.Metadata.Driver == "" {
					v0_1.Metadata.Driver = "memory"
				}

				return (*Configuration)(v0_1), nil
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, err
	}
	return config, nil
}

// errNoStoragePath guards against a configuration whose storage root was
// explicitly blanked out by an environment override after defaulting.
var errNoStoragePath = errors.New("configuration: storage.path must not be empty")

// errNoMetadataDSN guards against a postgres metadata driver configured
// with no DSN to connect with.
var errNoMetadataDSN = errors.New("configuration: metadata.dsn must not be empty when metadata.driver is postgres")

// Validate reports whether c is usable, beyond what YAML/env parsing alone
// can check.
func (c *Configuration) Validate() error {
	if c.Storage.Path == "" {
		return errNoStoragePath
	}
	if c.Metadata.Driver == "postgres" && c.Metadata.DSN == "" {
		return errNoMetadataDSN
	}
	return nil
}
