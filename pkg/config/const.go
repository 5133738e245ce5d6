package config

// EnvPrefix is the envconfig prefix shared by every setting.
const EnvPrefix = "LEADROUTER"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside envconfig tags.
const (
	EnvAppEnv     = "LEADROUTER_APP_ENV"
	EnvPort       = "LEADROUTER_APP_PORT"
	EnvDBDSN      = "LEADROUTER_DB_DSN"
	EnvDBHost     = "LEADROUTER_DB_HOST"
	EnvDBUser     = "LEADROUTER_DB_USER"
	EnvDBName     = "LEADROUTER_DB_NAME"
	EnvRedisURL   = "LEADROUTER_REDIS_URL"
	EnvJWTSecret  = "LEADROUTER_JWT_SECRET"
	EnvJWTIssuer  = "LEADROUTER_JWT_ISSUER"
	EnvJWTExpMins = "LEADROUTER_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
