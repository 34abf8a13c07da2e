package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Email     EmailConfig     `yaml:"email"`
	JWT       JWTConfig       `yaml:"jwt"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Security  SecurityConfig  `yaml:"security"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings. Type "memory"
// keeps everything in process and ignores the connection fields.
type DatabaseConfig struct {
	Type     string `yaml:"type"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// RedisConfig enables the shared attempt limiter and idempotency store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

// SMTPConfig contains email service settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// EmailConfig selects the outbound email provider
type EmailConfig struct {
	Provider       string `yaml:"provider"` // "smtp", "sendgrid" or "none"
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromName       string `yaml:"from_name"`
	QueueSize      int    `yaml:"queue_size"`
	Workers        int    `yaml:"workers"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret                string `yaml:"secret"`
	AdminTokenExpiryHours int    `yaml:"admin_token_expiry_hours"`
}

// StorageConfig contains blob storage settings
type StorageConfig struct {
	Type        string `yaml:"type"`       // "local"
	UploadDir   string `yaml:"upload_dir"` // For local storage
	BaseURL     string `yaml:"base_url"`   // Public prefix of the /files route
	MaxFileSize int64  `yaml:"max_file_size_mb"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// WorkflowConfig contains the membership workflow rules
type WorkflowConfig struct {
	MembershipFee      int64         `yaml:"membership_fee"`
	Currency           string        `yaml:"currency"`
	SecurityCodeTTL    time.Duration `yaml:"security_code_ttl"`
	ApprovalClaimTTL   time.Duration `yaml:"approval_claim_ttl"`
	ArtifactTimeout    time.Duration `yaml:"artifact_timeout"`
	MatriculePrefix    string        `yaml:"matricule_prefix"`
	MemberNumberPrefix string        `yaml:"member_number_prefix"`
	DefaultRegion      string        `yaml:"default_region"`
	PortalBaseURL      string        `yaml:"portal_base_url"`
}

// SecurityConfig contains abuse protection settings
type SecurityConfig struct {
	MaxCodeAttempts      int           `yaml:"max_code_attempts"`
	CodeAttemptWindow    time.Duration `yaml:"code_attempt_window"`
	CorrectionSessionTTL time.Duration `yaml:"correction_session_ttl"`
	IdempotencyTTL       time.Duration `yaml:"idempotency_ttl"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	RetryArtifacts string `yaml:"retry_artifacts"`
	ReportBacklog  string `yaml:"report_backlog"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_TYPE"); val != "" {
		c.Database.Type = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_URL"); val != "" {
		c.Redis.URL = val
		c.Redis.Enabled = true
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}
	if val := os.Getenv("SMTP_FROM"); val != "" {
		c.SMTP.From = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Storage
	if val := os.Getenv("UPLOAD_DIR"); val != "" {
		c.Storage.UploadDir = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Workflow
	if val := os.Getenv("MEMBERSHIP_FEE"); val != "" {
		fmt.Sscanf(val, "%d", &c.Workflow.MembershipFee)
	}
	if val := os.Getenv("SECURITY_CODE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Workflow.SecurityCodeTTL = d
		}
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	switch c.Database.Type {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	// Redis validation
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis url is required when redis is enabled")
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	// Email validation
	if c.Email.Provider == "" {
		c.Email.Provider = "smtp"
	}
	switch c.Email.Provider {
	case "none":
	case "smtp":
		if c.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
		}
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid api key is required")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("sender address (smtp.from) is required")
		}
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Email.Provider)
	}
	if c.Email.QueueSize == 0 {
		c.Email.QueueSize = 100
	}
	if c.Email.Workers == 0 {
		c.Email.Workers = 2
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AdminTokenExpiryHours == 0 {
		c.JWT.AdminTokenExpiryHours = 8
	}

	// Storage validation
	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	if c.Storage.Type != "local" {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory is required")
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = fmt.Sprintf("http://%s/api/v1/files", c.GetServerAddress())
	}
	if c.Storage.MaxFileSize == 0 {
		c.Storage.MaxFileSize = 10
	}

	// Workflow defaults
	if c.Workflow.MembershipFee < 0 {
		return fmt.Errorf("membership fee cannot be negative")
	}
	if c.Workflow.MembershipFee == 0 {
		c.Workflow.MembershipFee = 10300
	}
	if c.Workflow.Currency == "" {
		c.Workflow.Currency = "CDF"
	}
	if c.Workflow.SecurityCodeTTL == 0 {
		c.Workflow.SecurityCodeTTL = 72 * time.Hour
	}
	if c.Workflow.ApprovalClaimTTL == 0 {
		c.Workflow.ApprovalClaimTTL = 2 * time.Minute
	}
	if c.Workflow.ArtifactTimeout == 0 {
		c.Workflow.ArtifactTimeout = 10 * time.Second
	}
	if c.Workflow.MatriculePrefix == "" {
		c.Workflow.MatriculePrefix = "ADH"
	}
	if c.Workflow.MemberNumberPrefix == "" {
		c.Workflow.MemberNumberPrefix = "MBR"
	}
	if c.Workflow.DefaultRegion == "" {
		c.Workflow.DefaultRegion = "CD"
	}
	c.Workflow.DefaultRegion = strings.ToUpper(c.Workflow.DefaultRegion)

	// Security defaults
	if c.Security.MaxCodeAttempts == 0 {
		c.Security.MaxCodeAttempts = 5
	}
	if c.Security.CodeAttemptWindow == 0 {
		c.Security.CodeAttemptWindow = 15 * time.Minute
	}
	if c.Security.CorrectionSessionTTL == 0 {
		c.Security.CorrectionSessionTTL = 30 * time.Minute
	}
	if c.Security.IdempotencyTTL == 0 {
		c.Security.IdempotencyTTL = 24 * time.Hour
	}

	// Scheduler defaults
	if c.Scheduler.RetryArtifacts == "" {
		c.Scheduler.RetryArtifacts = "0 */10 * * * *" // every 10 minutes
	}
	if c.Scheduler.ReportBacklog == "" {
		c.Scheduler.ReportBacklog = "0 0 7 * * *" // 7 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AdminTokenExpiry returns the admin token lifetime
func (c *Config) AdminTokenExpiry() time.Duration {
	return time.Duration(c.JWT.AdminTokenExpiryHours) * time.Hour
}
