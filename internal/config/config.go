package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	JWT      JWTConfig      `yaml:"jwt"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	APNs     APNsConfig     `yaml:"apns"`
	Consul   ConsulConfig   `yaml:"consul"`
	Admin    AdminConfig    `yaml:"admin"`
	Upload   UploadConfig   `yaml:"upload"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration. An empty host runs on the in-memory store.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// StorageConfig holds the S3-compatible bucket configuration. An empty bucket
// keeps images in memory.
type StorageConfig struct {
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// OAuthConfig holds the Google OAuth2 client
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// RedisConfig holds Redis configuration; an empty address disables it
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotKey string        `yaml:"snapshot_key"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// RabbitMQConfig holds RabbitMQ configuration; an empty URI disables events
type RabbitMQConfig struct {
	URI string `yaml:"uri"`
}

// APNsConfig holds push notification configuration
type APNsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	KeyPath         string `yaml:"key_path"`
	KeyID           string `yaml:"key_id"`
	TeamID          string `yaml:"team_id"`
	CertificatePath string `yaml:"certificate_path"`
	CertificatePass string `yaml:"certificate_pass"`
	Topic           string `yaml:"topic"`
	Production      bool   `yaml:"production"`
}

// ConsulConfig holds service registration configuration
type ConsulConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Address        string `yaml:"address"`
	ServiceName    string `yaml:"service_name"`
	ServiceAddress string `yaml:"service_address"`
}

// AdminConfig lists the emails granted the admin role on first sign-in
type AdminConfig struct {
	Emails []string `yaml:"emails"`
}

// UploadConfig holds upload and cleanup tuning
type UploadConfig struct {
	MaxBytes        int64         `yaml:"max_bytes"`
	Workers         int           `yaml:"workers"`
	DraftTTL        time.Duration `yaml:"draft_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	SweepBatch      int           `yaml:"sweep_batch"`
	SweepMaxAttempt int           `yaml:"sweep_max_attempts"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then applies CATMAP_* environment
// overrides, reading a .env file first when one exists
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CATMAP_SERVER_HOST":           &c.Server.Host,
		"CATMAP_DB_HOST":               &c.Database.Host,
		"CATMAP_DB_USER":               &c.Database.User,
		"CATMAP_DB_PASSWORD":           &c.Database.Password,
		"CATMAP_DB_NAME":               &c.Database.DBName,
		"CATMAP_STORAGE_BUCKET":        &c.Storage.Bucket,
		"CATMAP_STORAGE_ACCESS_KEY":    &c.Storage.AccessKey,
		"CATMAP_STORAGE_SECRET_KEY":    &c.Storage.SecretKey,
		"CATMAP_STORAGE_ENDPOINT":      &c.Storage.Endpoint,
		"CATMAP_JWT_SECRET":            &c.JWT.Secret,
		"CATMAP_OAUTH_CLIENT_ID":       &c.OAuth.ClientID,
		"CATMAP_OAUTH_CLIENT_SECRET":   &c.OAuth.ClientSecret,
		"CATMAP_REDIS_ADDR":            &c.Redis.Addr,
		"CATMAP_REDIS_PASSWORD":        &c.Redis.Password,
		"CATMAP_RABBITMQ_URI":          &c.RabbitMQ.URI,
		"CATMAP_APNS_CERTIFICATE_PASS": &c.APNs.CertificatePass,
		"CATMAP_CONSUL_ADDRESS":        &c.Consul.Address,
		"CATMAP_LOG_LEVEL":             &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CATMAP_SERVER_PORT": &c.Server.Port,
		"CATMAP_DB_PORT":     &c.Database.Port,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("CATMAP_ADMIN_EMAILS"); ok {
		c.Admin.Emails = nil
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				c.Admin.Emails = append(c.Admin.Emails, e)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Redis.SnapshotKey == "" {
		c.Redis.SnapshotKey = "catmap:photos"
	}
	if c.Redis.SnapshotTTL == 0 {
		c.Redis.SnapshotTTL = 24 * time.Hour
	}
	if c.Consul.ServiceName == "" {
		c.Consul.ServiceName = "cat-map-backend"
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 20 << 20
	}
	if c.Upload.Workers == 0 {
		c.Upload.Workers = 4
	}
	if c.Upload.DraftTTL == 0 {
		c.Upload.DraftTTL = 10 * time.Minute
	}
	if c.Upload.SweepInterval == 0 {
		c.Upload.SweepInterval = 5 * time.Minute
	}
	if c.Upload.SweepBatch == 0 {
		c.Upload.SweepBatch = 50
	}
	if c.Upload.SweepMaxAttempt == 0 {
		c.Upload.SweepMaxAttempt = 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
