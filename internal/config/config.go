// Package config resolves facetdb settings from flags, FACETDB_* environment
// variables, .env files and an optional YAML config file, and opens the
// configured backend.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/facetdb/internal/backend"
	"github.com/roach88/facetdb/internal/backend/dynamo"
	"github.com/roach88/facetdb/internal/backend/sqlite"
	"github.com/roach88/facetdb/internal/eventdb"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Setting keys. Flags, env variables (FACETDB_ prefix, dashes as
// underscores) and config file entries share these names.
const (
	KeyConfig         = "config"
	KeyBackend        = "backend"
	KeyTable          = "table"
	KeyFacet          = "facet"
	KeySQLitePath     = "sqlite-path"
	KeyDynamoRegion   = "dynamo-region"
	KeyDynamoEndpoint = "dynamo-endpoint"
	KeyLogLevel       = "log-level"
)

// EnvPrefix is prepended to every key when reading the environment.
const EnvPrefix = "facetdb"

// Config is a resolved facetdb configuration.
type Config struct {
	Backend        string
	Table          string
	Facet          string
	SQLitePath     string
	DynamoRegion   string
	DynamoEndpoint string
	LogLevel       slog.Level
}

// AddFlags registers the configuration flags on fs with their defaults.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "path to a YAML config file")
	fs.String(KeyBackend, BackendSQLite, "storage backend: sqlite or dynamodb")
	fs.String(KeyTable, "records", "table holding the records")
	fs.String(KeyFacet, "", "facet (entity kind) the store is scoped to")
	fs.String(KeySQLitePath, "facetdb.db", "SQLite database file")
	fs.String(KeyDynamoRegion, "", "AWS region for DynamoDB")
	fs.String(KeyDynamoEndpoint, "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	fs.String(KeyLogLevel, "info", "log level: debug, info, warn or error")
}

// LoadEnvFiles loads .env and .env.local from the working directory if they
// exist. Variables already set in the environment win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// NewViper returns a viper instance reading FACETDB_* variables and bound to
// the flags in fs. fs may be nil.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBackend, BackendSQLite)
	v.SetDefault(KeyTable, "records")
	v.SetDefault(KeySQLitePath, "facetdb.db")
	v.SetDefault(KeyLogLevel, "info")

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	return v, nil
}

// Load reads the config file named by the "config" key, if any, and returns
// the validated configuration.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Backend:        strings.ToLower(v.GetString(KeyBackend)),
		Table:          v.GetString(KeyTable),
		Facet:          v.GetString(KeyFacet),
		SQLitePath:     v.GetString(KeySQLitePath),
		DynamoRegion:   v.GetString(KeyDynamoRegion),
		DynamoEndpoint: v.GetString(KeyDynamoEndpoint),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings the chosen backend needs are present.
func (c Config) Validate() error {
	var errs []error
	if c.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if c.Facet == "" {
		errs = append(errs, errors.New("facet is required"))
	}
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite-path is required for the sqlite backend"))
		}
	case BackendDynamoDB:
		if c.DynamoRegion == "" && c.DynamoEndpoint == "" {
			errs = append(errs, errors.New("dynamo-region or dynamo-endpoint is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendDynamoDB))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// OpenBackend connects to the configured backend.
func OpenBackend(ctx context.Context, cfg Config) (backend.Backend, error) {
	switch cfg.Backend {
	case BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendDynamoDB:
		s, err := dynamo.Connect(ctx, cfg.DynamoRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Open connects to the configured backend and returns a DB scoped to the
// configured table and facet. The caller closes the backend.
func Open(ctx context.Context, cfg Config, opts ...eventdb.Option) (*eventdb.DB, backend.Backend, error) {
	b, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	db, err := eventdb.New(b, cfg.Table, cfg.Facet, opts...)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return db, b, nil
}
