package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"engagement-ledger/pkg/hashistack/secretmanager"

	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr        string  `mapstructure:"ADDR"`
		Protocol    string  `mapstructure:"PROTOCOL"` // http | grpc
		Insecure    bool    `mapstructure:"INSECURE"`
		SampleRatio float64 `mapstructure:"SAMPLE_RATIO"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string        `mapstructure:"TYPE"` // postgres | mysql | sqlite
		Host           string        `mapstructure:"HOST"`
		Port           string        `mapstructure:"PORT"`
		DBNAME         string        `mapstructure:"DBNAME"`
		User           string        `mapstructure:"USER"`
		Password       string        `mapstructure:"PASSWORD"`
		SSLMode        string        `mapstructure:"SSLMODE"`
		Timezone       string        `mapstructure:"TIMEZONE"`
		Metrics        bool          `mapstructure:"METRICS"`
		SlowThreshold  time.Duration `mapstructure:"SLOW_THRESHOLD"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Consul struct {
		Addr        string `mapstructure:"ADDR"`
		ServiceHost string `mapstructure:"SERVICE_HOST"`
	} `mapstructure:"CONSUL"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Ledger    LedgerConfig    `mapstructure:"LEDGER"`
	Reconcile ReconcileConfig `mapstructure:"RECONCILE"`
}

// LedgerConfig tunes the storage retry budget and the submit limiter.
type LedgerConfig struct {
	RetryMaxAttempts     uint64        `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryInitialInterval time.Duration `mapstructure:"RETRY_INITIAL_INTERVAL"`
	RetryMaxInterval     time.Duration `mapstructure:"RETRY_MAX_INTERVAL"`
	SubmitRatePerMinute  float64       `mapstructure:"SUBMIT_RATE_PER_MINUTE"`
	SubmitBurst          int           `mapstructure:"SUBMIT_BURST"`
}

type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"INTERVAL"`
	Concurrency int           `mapstructure:"CONCURRENCY"`
	PageSize    int           `mapstructure:"PAGE_SIZE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// Select reads config.yaml and env by default, or a remote provider when
// REMOTE_CONFIG_PROVIDER is set. Vault secrets are layered on top when
// VAULT_ADDR is set. Every binary loads its config through it.
func Select() fx.Option {
	cfg := Module
	if RemoteEnabled() {
		cfg = RemoteModule
	}
	if secretmanager.Enabled() {
		return fx.Options(secretmanager.Module, cfg)
	}
	return cfg
}

type Params struct {
	fx.In
	Secrets *secretmanager.Store `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "engagement-ledger")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("OTEL.SAMPLE_RATIO", 1.0)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("SNOWFLAKE.NODE_ID", 1)
	v.SetDefault("LEDGER.RETRY_MAX_ATTEMPTS", 5)
	v.SetDefault("LEDGER.RETRY_INITIAL_INTERVAL", 20*time.Millisecond)
	v.SetDefault("LEDGER.RETRY_MAX_INTERVAL", 500*time.Millisecond)
	v.SetDefault("LEDGER.SUBMIT_RATE_PER_MINUTE", 120)
	v.SetDefault("LEDGER.SUBMIT_BURST", 10)
	v.SetDefault("RECONCILE.INTERVAL", time.Hour)
	v.SetDefault("RECONCILE.CONCURRENCY", 8)
	v.SetDefault("RECONCILE.PAGE_SIZE", 500)
}

func LoadConfig(p Params) *Config {
	config.SetConfigName("config")
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config.yaml not found, falling back to env and defaults")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Secrets != nil {
		applySecrets(p.Secrets, &cfg)
	}

	return &cfg
}

func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config.SetConfigType(configType)
	setDefaults(config)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote config provider", zap.String("backend", backend), zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.String("backend", backend), zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				zap.L().Error("unable to unmarshal remote config", zap.Error(err))
				continue
			}
			configHolder.Store(&newcfg)
		}
	}()

	if p.Secrets != nil {
		applySecrets(p.Secrets, &cfg)
	}

	return &cfg
}

// RemoteEnabled reports whether the process should read its config from a
// remote provider instead of config.yaml.
func RemoteEnabled() bool {
	_, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER")
	return ok
}

// Current returns the latest remote config snapshot, or nil when the remote
// provider is not in use.
func Current() *Config {
	cfg, _ := configHolder.Load().(*Config)
	return cfg
}

func applySecrets(store *secretmanager.Store, cfg *Config) {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := store.Read(context.Background(), cfg.AppEnv)
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	if v := secret["database_user"]; v != "" {
		cfg.Database.User = v
	}
	if v := secret["database_password"]; v != "" {
		cfg.Database.Password = v
	}
	if v := secret["redis_password"]; v != "" {
		cfg.Redis.Password = v
	}
}
