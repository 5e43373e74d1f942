package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/localmarket/storefront/internal/catalog"
	"github.com/localmarket/storefront/internal/location"
)

var (
	errMissingRedis        = errors.New("STORE_BACKEND=redis requires REDIS_URL")
	errUnknownStoreBackend = errors.New("unknown STORE_BACKEND")
)

type apiConfig struct {
	cache           Cache
	zips            location.ZipResolver
	reverseGeocoder location.ReverseGeocoder
	products        *catalog.Client
	sessions        *sessionManager
	httpClient      *http.Client
	storeBackend    string
	coordinatesOnly bool
	promptDelay     time.Duration
	gpsTimeout      time.Duration
	gpsMaxAge       time.Duration
	sessionIdle     time.Duration
	sweepInterval   time.Duration
	allowedOrigin   string
	port            string
	devMode         bool
	logger          *slog.Logger
}

// getRequiredEnv retrieves an environment variable by key, and fails if it's not set.
func getRequiredEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("environment variable %s must be set", key)
	}
	return val, nil
}

// getEnv retrieves an environment variable by key, with a fallback value
// for unset or empty variables.
func getEnv(key, fallback string, logger *slog.Logger) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer, with a fallback value.
func getEnvAsInt(key string, fallback int, logger *slog.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		logger.Warn("invalid integer value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsBool retrieves an environment variable as a boolean, with a fallback value.
func getEnvAsBool(key string, fallback bool, logger *slog.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		logger.Warn("invalid boolean value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsDuration reads a positive whole number of units. Missing, invalid
// or non-positive values fall back.
func getEnvAsDuration(key string, fallback, unit time.Duration, logger *slog.Logger) time.Duration {
	n := getEnvAsInt(key, 0, logger)
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * unit
}

func newLogger(w io.Writer, devMode bool) *slog.Logger {
	if devMode {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

// NewAPIConfig reads the environment, connects to the optional Redis and
// Postgres backends and wires the resolvers, the product client and the
// session manager. Logs go to logOutput.
func NewAPIConfig(logOutput io.Writer) (*apiConfig, error) {
	devMode, err := strconv.ParseBool(os.Getenv("DEV_MODE"))
	if err != nil {
		devMode = false
	}
	logger := newLogger(logOutput, devMode)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	zipLookupURL, err := getRequiredEnv("ZIP_LOOKUP_URL")
	if err != nil {
		return nil, err
	}
	productAPIURL, err := getRequiredEnv("PRODUCT_API_URL")
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: newMetricsTransport(http.DefaultTransport),
	}

	ctx := context.Background()

	var redisClient *redis.Client
	var cache Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("could not parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("couldn't connect to cache: %w", err)
		}
		cache = NewRedisCache(redisClient)
	} else {
		logger.Info("REDIS_URL not set, running without cache")
	}

	var directory zipDirectoryQuerier
	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			return nil, fmt.Errorf("couldn't prepare connection to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("couldn't connect to database: %w", err)
		}
		zd := newZipDirectory(db)
		if err := zd.ensureSchema(ctx); err != nil {
			return nil, err
		}
		directory = zd
	} else {
		logger.Info("DB_URL not set, zip directory disabled")
	}

	remoteZips := location.NewHTTPZipResolver(zipLookupURL, httpClient, logger)
	zips := newLayeredZipResolver(cache, directory, remoteZips, logger)

	var geocoderCache location.Cache
	if cache != nil {
		geocoderCache = cache
	}
	rps := getEnvAsInt("REVERSE_GEOCODE_RPS", 5, logger)
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	reverseGeocoder := location.NewHTTPReverseGeocoder(
		getEnv("REVERSE_GEOCODE_URL", "https://api.bigdatacloud.net/data", logger),
		httpClient,
		rate.NewLimiter(limit, max(rps, 1)),
		geocoderCache,
		logger,
	)

	// Memory stores do not survive a restart, so they are only the default
	// in dev mode.
	defaultBackend := "bolt"
	if devMode {
		defaultBackend = "memory"
	}
	storeBackend := getEnv("STORE_BACKEND", defaultBackend, logger)
	stores, err := newStoreFactory(ctx, storeBackend, redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("couldn't configure %q location store: %w", storeBackend, err)
	}

	cfg := apiConfig{
		cache:           cache,
		zips:            zips,
		reverseGeocoder: reverseGeocoder,
		products:        catalog.NewClient(productAPIURL, httpClient, logger),
		httpClient:      httpClient,
		storeBackend:    storeBackend,
		coordinatesOnly: getEnvAsBool("ALLOW_COORDINATES_ONLY", false, logger),
		promptDelay:     getEnvAsDuration("PROMPT_DELAY_MS", location.DefaultPromptDelay, time.Millisecond, logger),
		gpsTimeout:      getEnvAsDuration("GPS_TIMEOUT_SEC", location.DefaultGPSTimeout, time.Second, logger),
		gpsMaxAge:       getEnvAsDuration("GPS_MAX_AGE_SEC", location.DefaultMaximumAge, time.Second, logger),
		sessionIdle:     getEnvAsDuration("SESSION_IDLE_MIN", time.Hour, time.Minute, logger),
		sweepInterval:   getEnvAsDuration("SWEEP_INTERVAL_MIN", 5*time.Minute, time.Minute, logger),
		allowedOrigin:   getEnv("ALLOWED_ORIGIN", "*", logger),
		port:            getEnv("PORT", "8080", logger),
		devMode:         devMode,
		logger:          logger,
	}
	cfg.sessions = newSessionManager(&cfg, stores)

	return &cfg, nil
}

// storeFactory returns the location store for a session id.
type storeFactory func(sessionID string) location.Store

// newStoreFactory selects the location store backend. Every backend keeps a
// session's location after its in-memory engine has been swept, so the same
// cookie finds it again. Nothing but Clear removes a stored location.
func newStoreFactory(ctx context.Context, backend string, redisClient *redis.Client, logger *slog.Logger) (storeFactory, error) {
	switch backend {
	case "redis":
		if redisClient == nil {
			return nil, errMissingRedis
		}
		return func(id string) location.Store {
			return location.NewRedisStore(redisClient, id)
		}, nil
	case "bolt":
		path := getEnv("BOLT_PATH", "storefront.db", logger)
		db, err := location.OpenBolt(path)
		if err != nil {
			return nil, err
		}
		logger.Info("using bolt location store", "path", path)
		return func(id string) location.Store {
			return location.NewBoltStore(db, id)
		}, nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		table := getEnv("DYNAMODB_TABLE", "storefront-locations", logger)
		logger.Info("using dynamodb location store", "table", table, "region", awsCfg.Region)
		return func(id string) location.Store {
			return location.NewDynamoStore(client, table, id)
		}, nil
	case "memory", "":
		var mu sync.Mutex
		stores := make(map[string]*location.MemoryStore)
		return func(id string) location.Store {
			mu.Lock()
			defer mu.Unlock()
			s, ok := stores[id]
			if !ok {
				s = location.NewMemoryStore()
				stores[id] = s
			}
			return s
		}, nil
	}
	return nil, errUnknownStoreBackend
}
