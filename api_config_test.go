package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmarket/storefront/internal/location"
)

func TestNewAPIConfig(t *testing.T) {
	testCases := []struct {
		name      string
		setup     func(t *testing.T)
		expectErr bool
		check     func(t *testing.T, cfg *apiConfig)
	}{
		{
			name: "Success - No Optional Vars",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.Nil(t, cfg.cache)
				assert.Equal(t, "bolt", cfg.storeBackend, "durable by default")
				assert.False(t, cfg.coordinatesOnly)
				assert.Equal(t, 3*time.Second, cfg.promptDelay)
				assert.Equal(t, 10*time.Second, cfg.gpsTimeout)
				assert.Equal(t, location.DefaultMaximumAge, cfg.gpsMaxAge)
				assert.Equal(t, time.Hour, cfg.sessionIdle)
				assert.Equal(t, 5*time.Minute, cfg.sweepInterval)
				assert.Equal(t, "*", cfg.allowedOrigin)
				assert.Equal(t, "8080", cfg.port)
				assert.NotNil(t, cfg.sessions)
			},
		},
		{
			name: "Success - Dev Mode True",
			setup: func(t *testing.T) {
				t.Setenv("DEV_MODE", "true")
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.True(t, cfg.devMode)
				assert.Equal(t, "memory", cfg.storeBackend)
			},
		},
		{
			name: "Success - Dev Mode Invalid",
			setup: func(t *testing.T) {
				t.Setenv("DEV_MODE", "not_a_bool")
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.False(t, cfg.devMode)
			},
		},
		{
			name: "Success - All Optional Vars",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
				t.Setenv("ALLOW_COORDINATES_ONLY", "true")
				t.Setenv("PROMPT_DELAY_MS", "1500")
				t.Setenv("GPS_TIMEOUT_SEC", "5")
				t.Setenv("GPS_MAX_AGE_SEC", "30")
				t.Setenv("SESSION_IDLE_MIN", "30")
				t.Setenv("SWEEP_INTERVAL_MIN", "1")
				t.Setenv("ALLOWED_ORIGIN", "https://shop.example.com")
				t.Setenv("REVERSE_GEOCODE_RPS", "0")
				t.Setenv("PORT", "9090")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.True(t, cfg.coordinatesOnly)
				assert.Equal(t, 1500*time.Millisecond, cfg.promptDelay)
				assert.Equal(t, 5*time.Second, cfg.gpsTimeout)
				assert.Equal(t, 30*time.Second, cfg.gpsMaxAge)
				assert.Equal(t, 30*time.Minute, cfg.sessionIdle)
				assert.Equal(t, time.Minute, cfg.sweepInterval)
				assert.Equal(t, "https://shop.example.com", cfg.allowedOrigin)
				assert.Equal(t, "9090", cfg.port)
			},
		},
		{
			name: "Success - Optional Vars Invalid",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
				t.Setenv("PROMPT_DELAY_MS", "soon")
				t.Setenv("GPS_TIMEOUT_SEC", "-3")
				t.Setenv("ALLOW_COORDINATES_ONLY", "maybe")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.Equal(t, location.DefaultPromptDelay, cfg.promptDelay)
				assert.Equal(t, location.DefaultGPSTimeout, cfg.gpsTimeout)
				assert.False(t, cfg.coordinatesOnly)
			},
		},
		{
			name: "Success - Bolt store",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
				t.Setenv("STORE_BACKEND", "bolt")
				t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "locations.db"))
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.Equal(t, "bolt", cfg.storeBackend)
			},
		},
		{
			name: "Failure - Missing ZIP_LOOKUP_URL",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
			},
			expectErr: true,
		},
		{
			name: "Failure - Missing PRODUCT_API_URL",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "")
			},
			expectErr: true,
		},
		{
			name: "Failure - Invalid REDIS_URL",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
				t.Setenv("REDIS_URL", "not a url")
			},
			expectErr: true,
		},
		{
			name: "Failure - Redis store without Redis",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
				t.Setenv("STORE_BACKEND", "redis")
			},
			expectErr: true,
		},
		{
			name: "Failure - Unknown store backend",
			setup: func(t *testing.T) {
				t.Setenv("ZIP_LOOKUP_URL", "http://localhost/zips")
				t.Setenv("PRODUCT_API_URL", "http://localhost")
				t.Setenv("STORE_BACKEND", "floppy")
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("REDIS_URL", "")
			t.Setenv("DB_URL", "")
			t.Setenv("STORE_BACKEND", "")
			t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "storefront.db"))
			if tc.setup != nil {
				tc.setup(t)
			}
			cfg, err := NewAPIConfig(io.Discard)
			if tc.expectErr {
				assert.Error(t, err, "expected an error but got none")
				return
			}
			require.NoError(t, err, "did not expect an error but got one")
			require.NotNil(t, cfg, "expected cfg to be non-nil")
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	logger := discardLogger()

	t.Setenv("SF_STRING", "value")
	t.Setenv("SF_INT", "42")
	t.Setenv("SF_BAD_INT", "forty-two")
	t.Setenv("SF_BOOL", "true")
	t.Setenv("SF_BAD_BOOL", "yes please")
	t.Setenv("SF_MINUTES", "15")
	t.Setenv("SF_ZERO_MINUTES", "0")

	assert.Equal(t, "value", getEnv("SF_STRING", "fallback", logger))
	assert.Equal(t, "fallback", getEnv("SF_MISSING", "fallback", logger))

	assert.Equal(t, 42, getEnvAsInt("SF_INT", 7, logger))
	assert.Equal(t, 7, getEnvAsInt("SF_BAD_INT", 7, logger))
	assert.Equal(t, 7, getEnvAsInt("SF_MISSING", 7, logger))

	assert.True(t, getEnvAsBool("SF_BOOL", false, logger))
	assert.False(t, getEnvAsBool("SF_BAD_BOOL", false, logger))
	assert.True(t, getEnvAsBool("SF_MISSING", true, logger))

	assert.Equal(t, 15*time.Minute, getEnvAsDuration("SF_MINUTES", time.Hour, time.Minute, logger))
	assert.Equal(t, time.Hour, getEnvAsDuration("SF_ZERO_MINUTES", time.Hour, time.Minute, logger))
	assert.Equal(t, time.Hour, getEnvAsDuration("SF_MISSING", time.Hour, time.Minute, logger))

	_, err := getRequiredEnv("SF_MISSING")
	assert.ErrorContains(t, err, "SF_MISSING")
	val, err := getRequiredEnv("SF_STRING")
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, false).Debug("hidden")
	newLogger(&buf, false).Info("shown", "zip", "84049")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"zip":"84049"`)

	buf.Reset()
	newLogger(&buf, true).Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestNewStoreFactory(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("Memory stores are per session", func(t *testing.T) {
		stores, err := newStoreFactory(ctx, "memory", nil, logger)
		require.NoError(t, err)
		a, b := stores("a"), stores("b")
		require.NoError(t, a.Save(ctx, location.Record{ZipCode: "84049", Source: location.SourceManualZip}))
		rec, err := b.Load(ctx)
		require.NoError(t, err)
		assert.True(t, rec.IsEmpty())
	})

	t.Run("Memory stores outlive the session that made them", func(t *testing.T) {
		stores, err := newStoreFactory(ctx, "memory", nil, logger)
		require.NoError(t, err)
		require.NoError(t, stores("a").Save(ctx, location.Record{ZipCode: "84049", Source: location.SourceManualZip}))
		require.NoError(t, stores("a").SetPrompted(ctx))

		rec, err := stores("a").Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "84049", rec.ZipCode)
		prompted, err := stores("a").Prompted(ctx)
		require.NoError(t, err)
		assert.True(t, prompted)
	})

	t.Run("Empty backend means memory", func(t *testing.T) {
		stores, err := newStoreFactory(ctx, "", nil, logger)
		require.NoError(t, err)
		assert.IsType(t, &location.MemoryStore{}, stores("a"))
	})

	t.Run("Redis", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		stores, err := newStoreFactory(ctx, "redis", client, logger)
		require.NoError(t, err)
		s := stores("a")
		assert.IsType(t, &location.RedisStore{}, s)

		want := location.Record{ZipCode: "84049", Source: location.SourceManualZip, Radius: location.DefaultRadius}
		payload, err := json.Marshal(want)
		require.NoError(t, err)
		// Locations never expire on their own.
		mock.ExpectTxPipeline()
		mock.ExpectSet("storefront:a:userZipCode", "84049", 0).SetVal("OK")
		mock.ExpectSet("storefront:a:userLocation", string(payload), 0).SetVal("OK")
		mock.ExpectTxPipelineExec()
		mock.ExpectSet("storefront:a:hasPromptedLocation", "true", 0).SetVal("OK")

		require.NoError(t, s.Save(ctx, location.Record{ZipCode: "84049", Source: location.SourceManualZip}))
		require.NoError(t, s.SetPrompted(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Redis without client", func(t *testing.T) {
		_, err := newStoreFactory(ctx, "redis", nil, logger)
		assert.ErrorIs(t, err, errMissingRedis)
	})

	t.Run("Bolt", func(t *testing.T) {
		t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "sessions.db"))
		stores, err := newStoreFactory(ctx, "bolt", nil, logger)
		require.NoError(t, err)
		s := stores("a")
		assert.IsType(t, &location.BoltStore{}, s)
		require.NoError(t, s.SetPrompted(ctx))
		prompted, err := stores("a").Prompted(ctx)
		require.NoError(t, err)
		assert.True(t, prompted, "bolt stores for the same session share state")
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := newStoreFactory(ctx, "floppy", nil, logger)
		assert.ErrorIs(t, err, errUnknownStoreBackend)
	})
}
