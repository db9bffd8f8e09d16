package engine

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/config"
)

type options struct {
	config     *config.Config
	logger     *slog.Logger
	registerer prometheus.Registerer
	onTrip     func(circuit.Event)
	configFile string
	env        bool

	cacheSize     *int
	caseSensitive *bool
	embedded      *bool
}

// Option configures an Engine.
type Option func(*options)

// WithConfig sets the base configuration. Other options override it.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithConfigFile loads the base configuration from a YAML file, on top of
// WithConfig or the defaults.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithEnv applies DUCKTYPE_* environment variables after the base and file
// configuration.
func WithEnv() Option {
	return func(o *options) { o.env = true }
}

// WithLogger sets the logger. Without it a logger is built from the logging
// configuration, writing to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer sets where metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithOnTrip is called once for every callback key that trips, after the
// engine logged it.
func WithOnTrip(fn func(circuit.Event)) Option {
	return func(o *options) { o.onTrip = fn }
}

// WithResolverCacheSize sets how many resolved members are memoised.
func WithResolverCacheSize(size int) Option {
	return func(o *options) { o.cacheSize = &size }
}

// WithCaseSensitive disables the case-insensitive fallback search.
func WithCaseSensitive(sensitive bool) Option {
	return func(o *options) { o.caseSensitive = &sensitive }
}

// WithEmbedded controls whether members promoted from embedded structs are
// searched.
func WithEmbedded(enabled bool) Option {
	return func(o *options) { o.embedded = &enabled }
}

// resolve layers the configuration: defaults or WithConfig, then the file,
// then the environment, then the individual options.
func (o *options) resolve() (config.Config, error) {
	cfg := *config.Default()
	if o.config != nil {
		cfg = *o.config
	}
	if o.configFile != "" {
		if err := cfg.LoadFromFile(o.configFile); err != nil {
			return cfg, err
		}
	}
	if o.env {
		if err := cfg.LoadFromEnv(); err != nil {
			return cfg, err
		}
	}
	if o.cacheSize != nil {
		cfg.Resolver.CacheSize = *o.cacheSize
	}
	if o.caseSensitive != nil {
		cfg.Resolver.CaseSensitive = *o.caseSensitive
	}
	if o.embedded != nil {
		cfg.Resolver.Embedded = *o.embedded
	}
	return cfg, nil
}
