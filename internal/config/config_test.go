package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ProviderSimplyRETS, cfg.Provider)
	assert.Equal(t, SinkPostgres, cfg.Sink)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, PhotoReplace, cfg.Ingest.PhotoStrategy)
	assert.Equal(t, 5, cfg.Ingest.SinkRetry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.SinkRetry.BaseDelay)
	assert.Equal(t, 1, cfg.Source.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.Source.Timeout)
	assert.False(t, bool(cfg.Ingest.DryRun))
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	t.Setenv("FEED_TOKEN", "from-env-expansion")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("DRY_RUN", "yes")
	t.Setenv("SINK_RETRY_BASE_DELAY", "250ms")
	t.Setenv("REQUIRED_FIELDS", "coordinates, Price")

	path := writeConfig(t, `
provider: feed
sink: rpc
feed:
  url: https://feed.example.com/listings
  token: ${FEED_TOKEN}
ingest:
  batch_size: 100
  page_size: 200
  photo_strategy: merge
  sink_retry:
    max_attempts: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderFeed, cfg.Provider)
	assert.Equal(t, SinkRPC, cfg.Sink)
	assert.Equal(t, "from-env-expansion", cfg.Feed.Token)
	assert.Equal(t, 25, cfg.Ingest.BatchSize)
	assert.Equal(t, 200, cfg.Ingest.PageSize)
	assert.Equal(t, PhotoMerge, cfg.Ingest.PhotoStrategy)
	assert.True(t, bool(cfg.Ingest.DryRun))
	assert.Equal(t, 3, cfg.Ingest.SinkRetry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Ingest.SinkRetry.BaseDelay)
	assert.Equal(t, []string{"coordinates", "price"}, cfg.Normalize.RequiredFields)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "ingest: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_InvalidFlag(t *testing.T) {
	t.Setenv("DRY_RUN", "maybe")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFlag_UnmarshalText(t *testing.T) {
	for _, in := range []string{"1", "true", "TRUE", "yes", "On"} {
		var f Flag
		require.NoError(t, f.UnmarshalText([]byte(in)), in)
		assert.True(t, bool(f), in)
	}
	for _, in := range []string{"", "0", "false", "no", "off"} {
		f := Flag(true)
		require.NoError(t, f.UnmarshalText([]byte(in)), in)
		assert.False(t, bool(f), in)
	}
}

func validConfig() *Config {
	cfg := defaults()
	cfg.Database.URL = "postgres://localhost/ecolisting"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults with database", mutate: func(c *Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "zillow" }, wantErr: "unknown provider"},
		{name: "repliers without key", mutate: func(c *Config) { c.Provider = ProviderRepliers }, wantErr: "REPLIERS_API_KEY"},
		{name: "feed without url", mutate: func(c *Config) { c.Provider = ProviderFeed }, wantErr: "FEED_URL"},
		{name: "rpc without credentials", mutate: func(c *Config) { c.Sink = SinkRPC }, wantErr: "SUPABASE_URL"},
		{
			name: "dry run skips sink credentials",
			mutate: func(c *Config) {
				c.Sink = SinkRPC
				c.Ingest.DryRun = true
			},
		},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink = "s3" }, wantErr: "unknown sink"},
		{name: "batch too large", mutate: func(c *Config) { c.Ingest.BatchSize = MaxBatchSize + 1 }, wantErr: "BATCH_SIZE"},
		{name: "batch zero", mutate: func(c *Config) { c.Ingest.BatchSize = 0 }, wantErr: "BATCH_SIZE"},
		{name: "bad photo strategy", mutate: func(c *Config) { c.Ingest.PhotoStrategy = "sync" }, wantErr: "photo strategy"},
		{name: "zero sink attempts", mutate: func(c *Config) { c.Ingest.SinkRetry.MaxAttempts = 0 }, wantErr: "SINK_RETRY_MAX_ATTEMPTS"},
		{
			name: "run lock outside postgres",
			mutate: func(c *Config) {
				c.Sink = SinkSQLite
				c.Ingest.RunLock = true
			},
			wantErr: "RUN_LOCK",
		},
		{name: "bad bbox", mutate: func(c *Config) { c.Normalize.MarketBBox = "1,2,3" }, wantErr: "MARKET_BBOX"},
		{name: "unknown required field", mutate: func(c *Config) { c.Normalize.RequiredFields = []string{"photos"} }, wantErr: "required field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeConfig_Policy(t *testing.T) {
	n := NormalizeConfig{
		RequiredFields: []string{"coordinates", "price"},
		MarketBBox:     "-95.8,29.5,-95.0,30.1",
		DefaultStatus:  "active",
		MaxPhotos:      10,
	}

	p, err := n.Policy()
	require.NoError(t, err)

	assert.True(t, p.RequireCoordinates)
	assert.True(t, p.RequirePositivePrice)
	assert.Equal(t, "active", p.DefaultStatus)
	assert.Equal(t, 10, p.MaxPhotos)
	require.NotNil(t, p.Bounds)
	assert.True(t, p.Bounds.Contains(orb.Point{-95.37, 29.76}))
	assert.False(t, p.Bounds.Contains(orb.Point{-97.74, 30.27}))
}

func TestParseBBox_Invalid(t *testing.T) {
	for _, in := range []string{"a,b,c,d", "10,10,0,0", "-200,0,0,10"} {
		_, err := ParseBBox(in)
		assert.Error(t, err, in)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())

	d.URL = "postgres://u:p@db/n"
	assert.Equal(t, "postgres://u:p@db/n", d.DSN())
}
