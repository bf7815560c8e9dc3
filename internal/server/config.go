package server

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"taskmanager/internal/domain/errors"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

type Config struct {
	Addr           string        `json:"addr"`
	Port           int           `json:"port"`
	Storage        string        `json:"storage"`
	DBStr          string        `json:"dbStr"`
	MigratePath    string        `json:"migratePath"`
	SQLitePath     string        `json:"sqlitePath"`
	JWTSecret      string        `json:"jwtSecret"`
	TokenTTL       time.Duration `json:"-"`
	CookieName     string        `json:"cookieName"`
	RedisAddr      string        `json:"redisAddr"`
	LoginRateLimit int           `json:"loginRateLimit"`
	AdminEmail     string        `json:"adminEmail"`
	AdminPassword  string        `json:"adminPassword"`
}

const (
	defaultAddr           = "0.0.0.0"
	defaultPort           = 8080
	defaultStorage        = StoragePostgres
	defaultDBStr          = "postgresql://tasks:tasks@db:5432/tasks?sslmode=disable"
	defaultSQLitePath     = "tasks.db"
	defaultJWTSecret      = "change-me-in-production"
	defaultTokenTTL       = 24 * time.Hour
	defaultCookieName     = "jwt_token"
	defaultLoginRateLimit = 10
)

func DefaultConfig() *Config {
	return &Config{
		Addr:           defaultAddr,
		Port:           defaultPort,
		Storage:        defaultStorage,
		DBStr:          defaultDBStr,
		SQLitePath:     defaultSQLitePath,
		JWTSecret:      defaultJWTSecret,
		TokenTTL:       defaultTokenTTL,
		CookieName:     defaultCookieName,
		LoginRateLimit: defaultLoginRateLimit,
	}
}

// withDefaults fills zero fields, so a partially populated Config is usable.
func (c *Config) withDefaults() *Config {
	out := *c
	d := DefaultConfig()
	if out.Addr == "" {
		out.Addr = d.Addr
	}
	if out.Port == 0 {
		out.Port = d.Port
	}
	if out.Storage == "" {
		out.Storage = d.Storage
	}
	if out.DBStr == "" {
		out.DBStr = d.DBStr
	}
	if out.SQLitePath == "" {
		out.SQLitePath = d.SQLitePath
	}
	if out.LoginRateLimit <= 0 {
		out.LoginRateLimit = d.LoginRateLimit
	}
	if out.JWTSecret == "" {
		out.JWTSecret = d.JWTSecret
	}
	if out.TokenTTL <= 0 {
		out.TokenTTL = d.TokenTTL
	}
	if out.CookieName == "" {
		out.CookieName = d.CookieName
	}
	return &out
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

// ReadConfig layers defaults, a JSON file (-c or CONFIG), the environment
// (after loading .env) and explicitly set flags, in that order.
func ReadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("[WARN] Failed to load .env:", err)
	}

	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	port := fs.Int("port", defaultPort, "server port")
	storage := fs.String("storage", defaultStorage, "storage backend: postgres, sqlite or memory")
	dbstr := fs.String("dbstr", defaultDBStr, "postgres connection string")
	dbDsn := fs.String("dbdsn", "", "postgres DSN, takes precedence over dbstr")
	migratePath := fs.String("migratepath", "", "migrations directory, embedded migrations when empty")
	sqlitePath := fs.String("sqlite", defaultSQLitePath, "sqlite database file")
	jwtSecret := fs.String("jwt-secret", defaultJWTSecret, "HS256 signing secret")
	tokenTTL := fs.Duration("token-ttl", defaultTokenTTL, "session token lifetime")
	redisAddr := fs.String("redis", "", "redis address for auth rate limiting")
	configFile := fs.String("c", "", "path to JSON config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if fileCfg := loadJSONConfig(*configFile); fileCfg != nil {
		cfg = fileCfg.withDefaults()
	}
	cfg = applyEnvOverrides(cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "port":
			cfg.Port = *port
		case "storage":
			cfg.Storage = *storage
		case "dbstr":
			cfg.DBStr = *dbstr
		case "migratepath":
			cfg.MigratePath = *migratePath
		case "sqlite":
			cfg.SQLitePath = *sqlitePath
		case "jwt-secret":
			cfg.JWTSecret = *jwtSecret
		case "token-ttl":
			cfg.TokenTTL = *tokenTTL
		case "redis":
			cfg.RedisAddr = *redisAddr
		}
	})
	if *dbDsn != "" {
		cfg.DBStr = *dbDsn
	}

	switch cfg.Storage {
	case StoragePostgres, StorageSQLite, StorageMemory:
	default:
		return nil, fmt.Errorf("%w: unknown storage %q", errors.ErrConfigInvalidFormat, cfg.Storage)
	}
	return cfg, nil
}

type jsonConfig struct {
	Config
	TokenTTL string `json:"tokenTTL"`
}

func loadJSONConfig(configPath string) *Config {
	if configPath == "" {
		configPath = os.Getenv("CONFIG")
	}
	if configPath == "" {
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		log.Printf("[WARN] %s %s: %v", errors.ErrConfigFileReadFailed.Error(), configPath, err)
		return nil
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		log.Printf("[WARN] %s: %v", errors.ErrConfigParseFailed.Error(), err)
		return nil
	}
	if jc.TokenTTL != "" {
		d, err := time.ParseDuration(jc.TokenTTL)
		if err != nil {
			log.Printf("[WARN] %s in tokenTTL: %s", errors.ErrConfigInvalidFormat.Error(), jc.TokenTTL)
		} else {
			jc.Config.TokenTTL = d
		}
	}
	log.Println("[SUCCESS] JSON config loaded from:", configPath)
	return &jc.Config
}

func applyEnvOverrides(cfg *Config) *Config {
	if addr := os.Getenv("ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err != nil {
			log.Printf("[WARN] %s in PORT: %s", errors.ErrConfigInvalidFormat.Error(), port)
		} else if p < 1 || p > 65535 {
			log.Printf("[WARN] %s: port must be within 1-65535: %d", errors.ErrConfigInvalidFormat.Error(), p)
		} else {
			cfg.Port = p
		}
	}
	if v := os.Getenv("STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("DB_STR"); v != "" {
		cfg.DBStr = v
	}
	if v := os.Getenv("MIGRATE_PATH"); v != "" {
		cfg.MigratePath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			log.Printf("[WARN] %s in TOKEN_TTL: %s", errors.ErrConfigInvalidFormat.Error(), v)
		} else {
			cfg.TokenTTL = d
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LoginRateLimit = n
		}
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.AdminEmail = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}

	if cfg.DBStr == defaultDBStr {
		dbUser := os.Getenv("DB_USER")
		dbPassword := os.Getenv("DB_PASSWORD")
		dbName := os.Getenv("DB_NAME")
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		if dbUser != "" && dbPassword != "" && dbName != "" && dbHost != "" && dbPort != "" {
			cfg.DBStr = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, dbHost, dbPort, dbName)
		}
	}
	return cfg
}
