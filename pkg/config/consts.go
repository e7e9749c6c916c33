package config

// EnvPrefix namespaces every environment variable the services read.
const EnvPrefix = "MYHIBACHI"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced directly in code and tests.
const (
	EnvAppEnv   = "MYHIBACHI_APP_ENV"
	EnvPort     = "MYHIBACHI_APP_PORT"
	EnvDBDSN    = "MYHIBACHI_DB_DSN"
	EnvDBHost   = "MYHIBACHI_DB_HOST"
	EnvDBUser   = "MYHIBACHI_DB_USER"
	EnvDBName   = "MYHIBACHI_DB_NAME"
	EnvRedisURL = "MYHIBACHI_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
