package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30, cfg.LookaheadDays)
	assert.Equal(t, time.Hour, cfg.ProjectionInterval)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, "recurring.instance_created", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Minute, cfg.RunLockTTL)
}

func TestParse_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOOKAHEAD_DAYS", "45")
	t.Setenv("PROJECTION_INTERVAL", "15m")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SCHEDULER_ENABLED", "false")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 45, cfg.LookaheadDays)
	assert.Equal(t, 15*time.Minute, cfg.ProjectionInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.SchedulerEnabled)
}

func TestParse_Invalid(t *testing.T) {
	t.Run("port", func(t *testing.T) {
		t.Setenv("PORT", "70000")
		_, err := Parse()
		assert.ErrorContains(t, err, "PORT")
	})
	t.Run("negative lookahead", func(t *testing.T) {
		t.Setenv("LOOKAHEAD_DAYS", "-1")
		_, err := Parse()
		assert.ErrorContains(t, err, "LOOKAHEAD_DAYS")
	})
	t.Run("zero lookahead", func(t *testing.T) {
		t.Setenv("LOOKAHEAD_DAYS", "0")
		_, err := Parse()
		assert.ErrorContains(t, err, "LOOKAHEAD_DAYS")
	})
	t.Run("database scheme", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "mysql://localhost/erp")
		_, err := Parse()
		assert.ErrorContains(t, err, "unsupported")
	})
	t.Run("not a number", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		_, err := Parse()
		assert.Error(t, err)
	})
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LOOKAHEAD_DAYS=12\n"), 0o600))
	t.Setenv("LOOKAHEAD_DAYS", "") // registered for cleanup
	os.Unsetenv("LOOKAHEAD_DAYS")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.LookaheadDays)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestDatabase(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{"postgres://erp@localhost/erp?sslmode=disable", "postgres", "postgres://erp@localhost/erp?sslmode=disable", false},
		{"postgresql://erp@db/erp", "postgres", "postgresql://erp@db/erp", false},
		{"sqlite://data/recurring.db", "sqlite", "data/recurring.db", false},
		{":memory:", "sqlite", ":memory:", false},
		{"./recurring.db", "sqlite", "./recurring.db", false},
		{"", "", "", true},
		{"mysql://localhost/erp", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := Config{DatabaseURL: tt.url}.Database()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}
