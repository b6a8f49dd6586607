package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	Device       DeviceConfig
	DB           DBConfig
	LocalStore   LocalStoreConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Sync         SyncConfig
	Notify       NotifyConfig
	PrintQueue   PrintQueueConfig
	Routing      RoutingConfig
	Remote       RemoteConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TILLQ_APP_ENV" required:"true"`
	Port         string `envconfig:"TILLQ_APP_PORT" default:"8787"`
	LogLevel     string `envconfig:"TILLQ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TILLQ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TILLQ_SERVICE_KIND" default:"device"`
}

// DeviceConfig identifies the terminal this process runs on.
// Only the device daemon requires it; migrate and cron-worker leave it empty.
type DeviceConfig struct {
	ID       string `envconfig:"TILLQ_DEVICE_ID"`
	TenantID string `envconfig:"TILLQ_TENANT_ID"`
	UserID   string `envconfig:"TILLQ_DEVICE_USER_ID" default:"device"`
}

// Validate reports the first missing device identity variable.
func (d DeviceConfig) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%s is required", EnvDeviceID)
	}
	if strings.TrimSpace(d.TenantID) == "" {
		return fmt.Errorf("%s is required", EnvTenantID)
	}
	return nil
}

// DBConfig points at the hosted relational store shared by every tenant device.
type DBConfig struct {
	DSN    string `envconfig:"TILLQ_DB_DSN"`
	Driver string `envconfig:"TILLQ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TILLQ_DB_HOST"`
	LegacyPort     int    `envconfig:"TILLQ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TILLQ_DB_USER"`
	LegacyPassword string `envconfig:"TILLQ_DB_PASSWORD"`
	LegacyName     string `envconfig:"TILLQ_DB_NAME"`
	LegacySSLMode  string `envconfig:"TILLQ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TILLQ_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"TILLQ_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"TILLQ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TILLQ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	ConnectTimeout  time.Duration `envconfig:"TILLQ_DB_CONNECT_TIMEOUT" default:"10s"`
}

// LocalStoreConfig configures the device-local durable store backing the offline queue.
type LocalStoreConfig struct {
	Path string `envconfig:"TILLQ_LOCAL_STORE_PATH" default:"tillq.db"`
}

// DBConfig renders the sqlite settings into the shared DB config shape.
func (l LocalStoreConfig) DBConfig() DBConfig {
	return DBConfig{
		DSN:          SQLiteDSN(l.Path),
		Driver:       DriverSQLite,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// SQLiteDSN appends the pragmas the local store relies on.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

type RedisConfig struct {
	URL          string        `envconfig:"TILLQ_REDIS_URL"`
	Address      string        `envconfig:"TILLQ_REDIS_ADDR"`
	Password     string        `envconfig:"TILLQ_REDIS_PASSWORD"`
	DB           int           `envconfig:"TILLQ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TILLQ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TILLQ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TILLQ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TILLQ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TILLQ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TILLQ_AUTO_MIGRATE" default:"false"`
}

type SyncConfig struct {
	ExecutorTimeout      time.Duration `envconfig:"TILLQ_SYNC_EXECUTOR_TIMEOUT" default:"15s"`
	PeriodicInterval     time.Duration `envconfig:"TILLQ_SYNC_PERIODIC_INTERVAL" default:"5m"`
	ConnectivityPoll     time.Duration `envconfig:"TILLQ_SYNC_CONNECTIVITY_POLL" default:"3s"`
	ConnectivityDebounce time.Duration `envconfig:"TILLQ_SYNC_CONNECTIVITY_DEBOUNCE" default:"2s"`
}

type NotifyConfig struct {
	StaleThreshold time.Duration `envconfig:"TILLQ_NOTIFY_STALE_THRESHOLD" default:"1h"`
	CheckInterval  time.Duration `envconfig:"TILLQ_NOTIFY_CHECK_INTERVAL" default:"24h"`
	QueueLimit     int           `envconfig:"TILLQ_NOTIFY_QUEUE_LIMIT" default:"64"`
}

type PrintQueueConfig struct {
	PollIntervalMS  int           `envconfig:"TILLQ_PRINT_POLL_MS" default:"5000"`
	BatchSize       int           `envconfig:"TILLQ_PRINT_BATCH_SIZE" default:"25"`
	PrintTimeout    time.Duration `envconfig:"TILLQ_PRINT_TIMEOUT" default:"20s"`
	ClaimTTL        time.Duration `envconfig:"TILLQ_PRINT_CLAIM_TTL" default:"10m"`
	RetentionDays   int           `envconfig:"TILLQ_PRINT_RETENTION_DAYS" default:"30"`
	CleanupInterval time.Duration `envconfig:"TILLQ_PRINT_CLEANUP_INTERVAL" default:"24h"`
}

// PollInterval converts the configured milliseconds into a duration.
func (p PrintQueueConfig) PollInterval() time.Duration {
	if p.PollIntervalMS <= 0 {
		return 0
	}
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// RoutingConfig seeds the persisted print routing flags on first boot.
type RoutingConfig struct {
	IsPrintServer bool `envconfig:"TILLQ_IS_PRINT_SERVER" default:"false"`
	UsePrintQueue bool `envconfig:"TILLQ_USE_PRINT_QUEUE" default:"false"`
}

// RemoteConfig limits which hosted tables replayed operations may touch.
type RemoteConfig struct {
	Resources []string `envconfig:"TILLQ_REMOTE_RESOURCES" default:"orders,order_items,tables,cash_movements,products"`
	IDColumn  string   `envconfig:"TILLQ_REMOTE_ID_COLUMN" default:"id"`
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
