package config

// EnvPrefix is the envconfig prefix shared by every deployable.
const EnvPrefix = "PERENAPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PERENAPAY_APP_ENV"
	EnvPort     = "PERENAPAY_APP_PORT"
	EnvDBDSN    = "PERENAPAY_DB_DSN"
	EnvDBHost   = "PERENAPAY_DB_HOST"
	EnvDBUser   = "PERENAPAY_DB_USER"
	EnvDBName   = "PERENAPAY_DB_NAME"
	EnvRedisURL = "PERENAPAY_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
