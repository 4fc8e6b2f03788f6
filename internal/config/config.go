package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	State    StateConfig    `mapstructure:"state"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Envato   UpstreamConfig `mapstructure:"envato"`
	Vercel   VercelConfig   `mapstructure:"vercel"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	License  LicenseConfig  `mapstructure:"license"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Products ProductsConfig `mapstructure:"products"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type StateConfig struct {
	Backend   string `mapstructure:"backend"` // "redis" | "memory"
	KeyPrefix string `mapstructure:"key_prefix"`
}

type JWTConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
	// TokenTTL only applies to tokens minted locally (tests, tooling).
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AdminConfig struct {
	UserIDs []string `mapstructure:"user_ids"`
}

// UpstreamConfig covers the HTTP client and circuit breaker of a remote API.
type UpstreamConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

type VercelConfig struct {
	UpstreamConfig `mapstructure:",squash"`
	TeamID         string `mapstructure:"team_id"`
}

type GitHubConfig struct {
	UpstreamConfig `mapstructure:",squash"`
	// Token enables the repository access check before project creation.
	Token string `mapstructure:"token"`
}

type LicenseConfig struct {
	Backend   string `mapstructure:"backend"` // "memory" | "redis"
	Capacity  int    `mapstructure:"capacity"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type DeployConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Framework    string        `mapstructure:"framework"`
}

type ProductsConfig struct {
	Dir string `mapstructure:"dir"`
}

type CryptoConfig struct {
	// SecretKey seals provider tokens at rest; must be 32 bytes.
	SecretKey string `mapstructure:"secret_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// The blocking status poll can hold a request for the whole deploy timeout.
	v.SetDefault("server.write_timeout", 6*time.Minute)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.key_prefix", "kairos")
	v.SetDefault("jwt.issuer", "kairos-launch")
	v.SetDefault("jwt.token_ttl", time.Hour)
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization"})
	v.SetDefault("cors.max_age", 12*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("envato.base_url", "https://api.envato.com")
	v.SetDefault("vercel.base_url", "https://api.vercel.com")
	v.SetDefault("github.base_url", "https://api.github.com")
	for _, name := range []string{"envato", "vercel", "github"} {
		v.SetDefault(name+".timeout", 15*time.Second)
		v.SetDefault(name+".consecutive_failures", 5)
		v.SetDefault(name+".open_timeout", 30*time.Second)
	}

	v.SetDefault("license.backend", "memory")
	v.SetDefault("license.capacity", 10000)
	v.SetDefault("license.key_prefix", "license")
	v.SetDefault("deploy.poll_interval", 5*time.Second)
	v.SetDefault("deploy.timeout", 5*time.Minute)
	v.SetDefault("deploy.framework", "nextjs")
	v.SetDefault("products.dir", "configs/products")
}

// Load reads config.yaml, overlays environment variables, and returns Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variable override: DATABASE_POSTGRES_HOST -> database.postgres.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
