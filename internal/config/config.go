package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/filesync/internal/sqlgen"
)

// Keys.
const (
	KeySourceBaseURL  = "source.base_url"
	KeySourceUsername = "source.username"
	KeySourcePassword = "source.password"
	KeySourceTimeout  = "source.timeout"

	KeyStoreKind            = "store.kind"
	KeyStoreDir             = "store.dir"
	KeyStoreBucket          = "store.bucket"
	KeyStoreRegion          = "store.region"
	KeyStoreEndpoint        = "store.endpoint"
	KeyStoreAccessKeyID     = "store.access_key_id"
	KeyStoreSecretAccessKey = "store.secret_access_key"

	KeyWarehouseDialect  = "warehouse.dialect"
	KeyWarehouseDSN      = "warehouse.dsn"
	KeyWarehouseRole     = "warehouse.role"
	KeyWarehouseDatabase = "warehouse.database"
	KeyStagingSchema     = "warehouse.staging_schema"
	KeyRawSchema         = "warehouse.raw_schema"
	KeyHistorySchema     = "warehouse.history_schema"
	KeyPrincipal         = "warehouse.principal"

	KeyDownloadRoot = "paths.download_root"
	KeyScratchDir   = "paths.scratch_dir"
	KeyBranchesFile = "branches.file"
)

// Store kinds.
const (
	StoreDir = "dir"
	StoreS3  = "s3"
)

// Need selects which sections Load validates.
type Need int

const (
	NeedSource Need = 1 << iota
	NeedStore
	NeedWarehouse

	NeedAll = NeedSource | NeedStore | NeedWarehouse
)

// SourceConfig locates the source API.
type SourceConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// StoreConfig selects and locates the archive store.
type StoreConfig struct {
	Kind            string
	Dir             string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// WarehouseConfig locates the warehouse and names its schemas.
type WarehouseConfig struct {
	Dialect       sqlgen.Dialect
	DSN           string
	Role          string
	Database      string
	StagingSchema string
	RawSchema     string
	HistorySchema string
	Principal     string
}

// Config is a validated run configuration.
type Config struct {
	Source       SourceConfig
	Store        StoreConfig
	Warehouse    WarehouseConfig
	DownloadRoot string
	ScratchDir   string
	BranchesFile string
}

// MissingKeysError lists every required key that had no value.
type MissingKeysError struct {
	Keys   []string
	Source string
}

func (e *MissingKeysError) Error() string {
	env := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		env[i] = EnvName(k)
	}
	return fmt.Sprintf("missing configuration %s in %s (environment: %s)",
		strings.Join(e.Keys, ", "), e.Source, strings.Join(env, ", "))
}

// loader collects missing keys and invalid values while reading.
type loader struct {
	p       Provider
	missing []string
	invalid []error
}

func (l *loader) required(key string) string {
	v, ok := l.p.Lookup(key)
	if !ok {
		l.missing = append(l.missing, key)
	}
	return v
}

func (l *loader) optional(key, def string) string {
	if v, ok := l.p.Lookup(key); ok {
		return v
	}
	return def
}

func (l *loader) reject(key string, err error) {
	l.invalid = append(l.invalid, fmt.Errorf("%s: %w", key, err))
}

// err joins every invalid value with the missing keys, or returns nil.
func (l *loader) err() error {
	errs := append([]error(nil), l.invalid...)
	if len(l.missing) > 0 {
		errs = append(errs, &MissingKeysError{Keys: l.missing, Source: l.p.Source()})
	}
	return errors.Join(errs...)
}

// Load reads and validates the sections selected by need. Sections not
// selected are filled from defaults only. Every section is read even after
// a bad value, so one error reports all missing keys and invalid values.
func Load(p Provider, need Need) (*Config, error) {
	l := &loader{p: p}
	cfg := &Config{
		DownloadRoot: l.optional(KeyDownloadRoot, "downloads"),
		ScratchDir:   l.optional(KeyScratchDir, filepath.Join("downloads", ".scratch")),
		BranchesFile: l.optional(KeyBranchesFile, ""),
	}

	if need&NeedSource != 0 {
		cfg.Source = SourceConfig{
			BaseURL:  l.required(KeySourceBaseURL),
			Username: l.required(KeySourceUsername),
			Password: l.required(KeySourcePassword),
		}
		timeout, err := time.ParseDuration(l.optional(KeySourceTimeout, "10s"))
		if err != nil {
			l.reject(KeySourceTimeout, err)
		}
		cfg.Source.Timeout = timeout
	}

	if need&NeedStore != 0 {
		cfg.Store = StoreConfig{
			Kind:            strings.ToLower(l.optional(KeyStoreKind, StoreDir)),
			Region:          l.optional(KeyStoreRegion, ""),
			Endpoint:        l.optional(KeyStoreEndpoint, ""),
			AccessKeyID:     l.optional(KeyStoreAccessKeyID, ""),
			SecretAccessKey: l.optional(KeyStoreSecretAccessKey, ""),
		}
		switch cfg.Store.Kind {
		case StoreDir:
			cfg.Store.Dir = l.optional(KeyStoreDir, "archive")
		case StoreS3:
			cfg.Store.Bucket = l.required(KeyStoreBucket)
		default:
			l.reject(KeyStoreKind, fmt.Errorf("unknown store kind %q: must be %q or %q", cfg.Store.Kind, StoreDir, StoreS3))
		}
	}

	if need&NeedWarehouse != 0 {
		dialect, err := sqlgen.ParseDialect(l.optional(KeyWarehouseDialect, string(sqlgen.SQLite)))
		if err != nil {
			l.reject(KeyWarehouseDialect, err)
			dialect = sqlgen.SQLite
		}
		cfg.Warehouse = WarehouseConfig{
			Dialect:       dialect,
			DSN:           l.required(KeyWarehouseDSN),
			Role:          l.optional(KeyWarehouseRole, ""),
			StagingSchema: l.optional(KeyStagingSchema, "STAGING"),
			RawSchema:     l.optional(KeyRawSchema, "RAW"),
			HistorySchema: l.optional(KeyHistorySchema, "HISTORY"),
			Principal:     l.optional(KeyPrincipal, "filesync"),
		}
		if dialect == sqlgen.Snowflake {
			cfg.Warehouse.Database = l.required(KeyWarehouseDatabase)
			cfg.Warehouse.Role = l.required(KeyWarehouseRole)
		} else {
			cfg.Warehouse.Database = l.optional(KeyWarehouseDatabase, "")
		}
	}

	if err := l.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
