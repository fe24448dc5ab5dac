package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cache        CacheConfig
	Idempotency  IdempotencyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.App.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJWT reads only the token settings, for tools that never touch the store.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CRS_APP_ENV" required:"true"`
	Port         string `envconfig:"CRS_APP_PORT" default:"8000"`
	LogLevel     string `envconfig:"CRS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CRS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CRS_LOG_WARN_STACK" default:"false"`
	// Timezone decides which calendar day a challan is issued on, and with it the
	// fiscal session.
	Timezone string `envconfig:"CRS_APP_TIMEZONE" default:"Asia/Kolkata"`
	// CORSAllowedOrigins lists the browser origins allowed to call the API.
	CORSAllowedOrigins []string `envconfig:"CRS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Location resolves the configured timezone.
func (a AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvTimezone, name, err)
	}
	return loc, nil
}

type DBConfig struct {
	DSN    string `envconfig:"CRS_DB_DSN"`
	Driver string `envconfig:"CRS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CRS_DB_HOST"`
	LegacyPort     int    `envconfig:"CRS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CRS_DB_USER"`
	LegacyPassword string `envconfig:"CRS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CRS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CRS_DB_SSLMODE" default:"disable"`

	MaxOpenConns     int           `envconfig:"CRS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns     int           `envconfig:"CRS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime  time.Duration `envconfig:"CRS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime  time.Duration `envconfig:"CRS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	StatementTimeout time.Duration `envconfig:"CRS_DB_STATEMENT_TIMEOUT" default:"10s"`
}

// RedisConfig is optional; without an URL or address idempotency replay is disabled.
type RedisConfig struct {
	URL          string        `envconfig:"CRS_REDIS_URL"`
	Address      string        `envconfig:"CRS_REDIS_ADDR"`
	Password     string        `envconfig:"CRS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CRS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CRS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CRS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CRS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CRS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CRS_REDIS_WRITE_TIMEOUT" default:"5s"`
	// KeyPrefix namespaces every key so several deployments can share one Redis.
	KeyPrefix string `envconfig:"CRS_REDIS_KEY_PREFIX" default:"crs"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"CRS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CRS_JWT_ISSUER" default:"crsmanager"`
	// AdminTokenTTL bounds tokens minted by cmd/admintoken.
	AdminTokenTTL time.Duration `envconfig:"CRS_JWT_ADMIN_TOKEN_TTL" default:"1h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CRS_AUTO_MIGRATE" default:"false"`
}

type CacheConfig struct {
	ReloadTimeout time.Duration `envconfig:"CRS_CACHE_RELOAD_TIMEOUT" default:"60s"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"CRS_IDEMPOTENCY_TTL" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
