// Package config loads the stageview YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/schema"
	"github.com/syssam/stageview/scope"
)

// MaxFileSize is the largest configuration file Load accepts.
const MaxFileSize = 1 << 20

// minNameLength leaves room for a hash suffix in shortened index names.
const minNameLength = 16

// Config is the root of the configuration file.
type Config struct {
	Database Database `yaml:"database"`
	Index    Index    `yaml:"index"`
	Scope    Scope    `yaml:"scope"`
	Cache    Cache    `yaml:"cache"`
	Metrics  Metrics  `yaml:"metrics"`
	Log      Log      `yaml:"log"`
}

// Database configures the connection.
type Database struct {
	Dialect       string        `yaml:"dialect"`
	DSN           string        `yaml:"dsn"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	Debug         bool          `yaml:"debug"`
}

// Index configures dimension table naming.
type Index struct {
	MainTable     string `yaml:"main_table"`
	MaxNameLength int    `yaml:"max_name_length"`
}

// Scope configures the row scope filter.
type Scope struct {
	Columns       []string `yaml:"columns"`
	Strict        bool     `yaml:"strict"`
	AllowUnscoped []string `yaml:"allow_unscoped"`
}

// Cache configures the column cache. A non-empty Dir adds a BadgerDB
// backed second level shared by the runs using the same directory.
type Cache struct {
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
	Dir       string        `yaml:"dir"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for omitted keys.
func Default() *Config {
	return &Config{
		Database: Database{
			Dialect:       dialect.MySQL,
			MaxOpenConns:  10,
			SlowThreshold: 200 * time.Millisecond,
		},
		Index: Index{
			MainTable:     index.MainTable,
			MaxNameLength: index.DefaultMaxLength,
		},
		Scope: Scope{
			Columns: slices.Clone(schema.TenantColumns),
		},
		Cache: Cache{
			Namespace: "stageview",
			TTL:       10 * time.Minute,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("config: %s exceeds %d bytes", path, MaxFileSize)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.DialectName() {
	case dialect.MySQL:
		if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
			errs = append(errs, fmt.Errorf("database.dsn: %w", err))
		}
	case dialect.Postgres:
		if strings.HasPrefix(c.Database.DSN, "postgres://") || strings.HasPrefix(c.Database.DSN, "postgresql://") {
			if _, err := pq.ParseURL(c.Database.DSN); err != nil {
				errs = append(errs, fmt.Errorf("database.dsn: %w", err))
			}
		}
	case dialect.SQLite:
	default:
		errs = append(errs, fmt.Errorf("database.dialect: unsupported dialect %q", c.Database.Dialect))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("database.max_open_conns: must not be negative, got %d", c.Database.MaxOpenConns))
	}
	if c.Index.MainTable == "" {
		errs = append(errs, errors.New("index.main_table: required"))
	}
	if c.Index.MaxNameLength < minNameLength {
		errs = append(errs, fmt.Errorf("index.max_name_length: must be at least %d, got %d", minNameLength, c.Index.MaxNameLength))
	}
	if len(c.Scope.Columns) == 0 {
		errs = append(errs, errors.New("scope.columns: at least one tenant column is required"))
	}
	for _, col := range c.Scope.Columns {
		if !slices.Contains(schema.TenantColumns, col) {
			errs = append(errs, fmt.Errorf("scope.columns: unknown tenant column %q", col))
		}
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl: must not be negative, got %s", c.Cache.TTL))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DialectName returns the ent dialect of the connection. Both "sqlite" and
// "sqlite3" select SQLite.
func (d Database) DialectName() string {
	if d.Dialect == "sqlite" {
		return dialect.SQLite
	}
	return d.Dialect
}

// DriverName returns the database/sql driver name of the dialect. SQLite is
// served by modernc.org/sqlite, which registers itself as "sqlite".
func (d Database) DriverName() string {
	if d.DialectName() == dialect.SQLite {
		return "sqlite"
	}
	return d.Dialect
}

// ScopeColumns returns the configured tenant columns in priority order.
func (s Scope) ScopeColumns() []scope.Column {
	columns := make([]scope.Column, 0, len(s.Columns))
	for _, name := range s.Columns {
		for _, c := range scope.DefaultColumns {
			if c.Name == name {
				columns = append(columns, c)
			}
		}
	}
	return columns
}

// FilterOptions returns the scope filter options of the configuration.
func (s Scope) FilterOptions(logger *slog.Logger) []scope.Option {
	opts := []scope.Option{
		scope.WithColumns(s.ScopeColumns()...),
		scope.WithLogger(logger),
	}
	if s.Strict {
		opts = append(opts, scope.WithStrict(s.AllowUnscoped...))
	}
	return opts
}

// SlogLevel returns the configured level. Invalid levels are reported by
// Validate and read as info here.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(l.Level))
	return level
}

// Logger returns a logger writing to w. A nil level uses the configured
// one; pass a *slog.LevelVar to change the level on reload.
func (l Log) Logger(w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = l.SlogLevel()
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
