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
	DB           DBConfig
	Redis        RedisConfig
	Payments     PaymentsConfig
	Solana       SolanaConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
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
	Env          string `envconfig:"PERENAPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"PERENAPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PERENAPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PERENAPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PERENAPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PERENAPAY_DB_DSN"`
	Driver string `envconfig:"PERENAPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PERENAPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"PERENAPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PERENAPAY_DB_USER"`
	LegacyPassword string `envconfig:"PERENAPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"PERENAPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"PERENAPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PERENAPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PERENAPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PERENAPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PERENAPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PERENAPAY_REDIS_URL"`
	Address      string        `envconfig:"PERENAPAY_REDIS_ADDR"`
	Password     string        `envconfig:"PERENAPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"PERENAPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PERENAPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PERENAPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PERENAPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PERENAPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PERENAPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaymentsConfig holds lifecycle policy knobs. The TTL is a deployment
// constant, never a per-request value.
type PaymentsConfig struct {
	RequestTTL time.Duration `envconfig:"PERENAPAY_PAYMENT_REQUEST_TTL" default:"15m"`
	USDCMint   string        `envconfig:"PERENAPAY_USDC_MINT" default:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`
	USDTMint   string        `envconfig:"PERENAPAY_USDT_MINT" default:"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"`
}

// TokenMints returns the currency code to on-chain mint mapping.
func (p PaymentsConfig) TokenMints() map[string]string {
	mints := map[string]string{}
	if p.USDCMint != "" {
		mints["usdc"] = p.USDCMint
	}
	if p.USDTMint != "" {
		mints["usdt"] = p.USDTMint
	}
	return mints
}

type SolanaConfig struct {
	RPCURL         string        `envconfig:"PERENAPAY_SOLANA_RPC_URL" default:"https://api.devnet.solana.com"`
	Commitment     string        `envconfig:"PERENAPAY_SOLANA_COMMITMENT" default:"confirmed"`
	RequestTimeout time.Duration `envconfig:"PERENAPAY_SOLANA_REQUEST_TIMEOUT" default:"10s"`
	RetryCount     int           `envconfig:"PERENAPAY_SOLANA_RETRY_COUNT" default:"2"`
	BreakerMaxFail uint32        `envconfig:"PERENAPAY_SOLANA_BREAKER_MAX_FAILURES" default:"5"`
	BreakerCooloff time.Duration `envconfig:"PERENAPAY_SOLANA_BREAKER_COOLOFF" default:"30s"`
}

type RateLimitConfig struct {
	Window       time.Duration `envconfig:"PERENAPAY_RATE_LIMIT_WINDOW" default:"1m"`
	MaxRequests  int64         `envconfig:"PERENAPAY_RATE_LIMIT_MAX_REQUESTS" default:"100"`
	VerifyWindow time.Duration `envconfig:"PERENAPAY_RATE_LIMIT_VERIFY_WINDOW" default:"1m"`
	VerifyMax    int64         `envconfig:"PERENAPAY_RATE_LIMIT_VERIFY_MAX" default:"600"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PERENAPAY_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PERENAPAY_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"PERENAPAY_CRON_LOCK_TTL" default:"5m"`
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
