// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedevinc/target-postgres/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSchema, cfg.Schema)
	assert.Equal(t, config.DefaultBatchSize, cfg.BatchSize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	contents := `{"host":"db.internal","port":5432,"dbname":"app","user":"sink","password":"secret","schema":"analytics","batch_size":500}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "app", cfg.DBName)
	assert.Equal(t, "analytics", cfg.Schema)
	assert.Equal(t, 500, cfg.BatchSize)
}

func TestLoadAppliesBatchSizeDefaultWhenZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"host":"db","dbname":"app"}`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, config.DefaultSchema, cfg.Schema)
}

func TestDSNQuotesValues(t *testing.T) {
	cfg := &config.Config{Host: "db", DBName: "app", User: "sink", Password: `p'\ss`, Port: 5432}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host='db'")
	assert.Contains(t, dsn, `password='p\'\\ss'`)
	assert.Contains(t, dsn, "port='5432'")
}
