package config

const (
	// EnvPrefix is handed to envconfig; every field carries an explicit name.
	EnvPrefix = "TILLQ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv    = "TILLQ_APP_ENV"
	EnvPort      = "TILLQ_APP_PORT"
	EnvDeviceID  = "TILLQ_DEVICE_ID"
	EnvTenantID  = "TILLQ_TENANT_ID"
	EnvDBDSN     = "TILLQ_DB_DSN"
	EnvDBHost    = "TILLQ_DB_HOST"
	EnvDBUser    = "TILLQ_DB_USER"
	EnvDBName    = "TILLQ_DB_NAME"
	EnvRedisURL  = "TILLQ_REDIS_URL"
	EnvLocalPath = "TILLQ_LOCAL_STORE_PATH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
