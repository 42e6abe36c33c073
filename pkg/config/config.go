package config

import "time"

// Backend names accepted by the store / blob / identity settings
const (
	BackendMemory    = "memory"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
	BackendMinIO     = "minio"
	BackendPostgres  = "postgres"
)

// ChatClient definition chat_client YAML structure
type ChatClient struct {
	Port     string `mapstructure:"port"`
	Store    string `mapstructure:"store"`
	Blob     string `mapstructure:"blob"`
	Identity string `mapstructure:"identity"`

	SessionTTL       time.Duration   `mapstructure:"session_ttl"`
	SessionTokenPath string          `mapstructure:"session_token_path"`
	TypingIdle       time.Duration   `mapstructure:"typing_idle"`
	LoadingTimeout   time.Duration   `mapstructure:"loading_timeout"`
	LoginRateLimit   RateLimitConfig `mapstructure:"login_rate_limit"`

	MongoDB    DatabaseConfig  `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig  `mapstructure:"pg"`
	Redis      RedisConfig     `mapstructure:"redis"`
	MinIO      MinIOConfig     `mapstructure:"minio"`
	Firestore  FirestoreConfig `mapstructure:"firestore"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	// Addr 單節點連線, 空字串時改用 sentinel (見 GetRedisSetting)
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// FirestoreConfig definition firebase project setting
type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// RateLimitConfig 每個 window 內允許的嘗試次數
type RateLimitConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Window   time.Duration `mapstructure:"window"`
}

// WithDefaults fill zero values with the client defaults
func (c ChatClient) WithDefaults() ChatClient {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Store == "" {
		c.Store = BackendMemory
	}
	if c.Blob == "" {
		c.Blob = BackendMemory
	}
	if c.Identity == "" {
		c.Identity = BackendMemory
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.TypingIdle <= 0 {
		c.TypingIdle = 1500 * time.Millisecond
	}
	if c.LoadingTimeout <= 0 {
		c.LoadingTimeout = 10 * time.Second
	}
	if c.LoginRateLimit.Attempts <= 0 {
		c.LoginRateLimit.Attempts = 5
	}
	if c.LoginRateLimit.Window <= 0 {
		c.LoginRateLimit.Window = time.Minute
	}
	return c
}
