package config

const (
	EnvPrefix = "CRS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "CRS_APP_ENV"
	EnvPort         = "CRS_APP_PORT"
	EnvLogLevel     = "CRS_LOG_LEVEL"
	EnvLogFormat    = "CRS_LOG_FORMAT"
	EnvLogWarnStack = "CRS_LOG_WARN_STACK"
	EnvTimezone     = "CRS_APP_TIMEZONE"
	EnvCORSOrigins  = "CRS_CORS_ALLOWED_ORIGINS"

	EnvDBDSN      = "CRS_DB_DSN"
	EnvDBHost     = "CRS_DB_HOST"
	EnvDBPort     = "CRS_DB_PORT"
	EnvDBUser     = "CRS_DB_USER"
	EnvDBPassword = "CRS_DB_PASSWORD"
	EnvDBName     = "CRS_DB_NAME"
	EnvDBSSLMode  = "CRS_DB_SSLMODE"

	EnvRedisURL  = "CRS_REDIS_URL"
	EnvRedisAddr = "CRS_REDIS_ADDR"

	EnvJWTSecret   = "CRS_JWT_SECRET"
	EnvJWTIssuer   = "CRS_JWT_ISSUER"
	EnvJWTAdminTTL = "CRS_JWT_ADMIN_TOKEN_TTL"

	EnvAutoMigrate = "CRS_AUTO_MIGRATE"

	EnvCacheReloadTimeout = "CRS_CACHE_RELOAD_TIMEOUT"
	EnvIdempotencyTTL     = "CRS_IDEMPOTENCY_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
