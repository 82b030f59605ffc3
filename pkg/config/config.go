// SPDX-License-Identifier: Apache-2.0

// Package config loads the sink's connection and batching settings from a
// JSON config file.
package config

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/cubedevinc/target-postgres/pkg/db"
)

// DefaultBatchSize is the row count a stream's buffer flushes at absent an
// explicit batch_size in the config file.
const DefaultBatchSize = 100000

// DefaultSchema is the Postgres schema streams are projected into when the
// config file doesn't name one.
const DefaultSchema = "public"

// Config holds everything read from the sink's config file.
type Config struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	DBName    string `mapstructure:"dbname"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Schema    string `mapstructure:"schema"`
	BatchSize int    `mapstructure:"batch_size"`
}

// Load reads and validates the config file at path. An empty path produces
// a zero-value Config with defaults applied, which is only useful for
// tests: a real run always needs a host and dbname to connect with.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Schema:    DefaultSchema,
		BatchSize: DefaultBatchSize,
	}

	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return cfg, nil
}

// DSN renders the connection parameters as a libpq key/value string, the
// same shape the original sink builds ("host='...' dbname='...' ...").
func (c *Config) DSN() string {
	esc := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `'`, `\'`)
		return s
	}

	parts := []string{
		fmt.Sprintf("host='%s'", esc(c.Host)),
		fmt.Sprintf("dbname='%s'", esc(c.DBName)),
		fmt.Sprintf("user='%s'", esc(c.User)),
		fmt.Sprintf("password='%s'", esc(c.Password)),
	}
	if c.Port != 0 {
		parts = append(parts, fmt.Sprintf("port='%s'", strconv.Itoa(c.Port)))
	}

	return strings.Join(parts, " ")
}

// Open dials Postgres via lib/pq and wraps the pool in the retryable db.DB
// adapter.
func (c *Config) Open() (db.DB, error) {
	sqlDB, err := sql.Open("postgres", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &db.RDB{DB: sqlDB}, nil
}
