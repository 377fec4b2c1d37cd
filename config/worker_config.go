package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"calsync_server/core/domain"
	"calsync_server/core/service/common"
)

// Store backends.
const (
	StoreS3     = "s3"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`

	// Storage layout
	HomeBucket         string `yaml:"home_bucket"`
	UserHomeKey        string `yaml:"user_home_key"`
	UserInfoKey        string `yaml:"user_info_key"`
	SourceTokenKey     string `yaml:"src_token_key"`
	TargetTokenKey     string `yaml:"tgt_token_key"`
	AttendeesKey       string `yaml:"attendees_key"`
	ProcessedEventsKey string `yaml:"processed_events_key"`
	CreatedEventsKey   string `yaml:"created_events_key"`

	// Sync
	SyncDays        int                `yaml:"sync_days"`
	SyncConcurrency int                `yaml:"sync_concurrency"`
	SourceTimeZone  string             `yaml:"source_time_zone"`
	TargetTimeZone  string             `yaml:"target_time_zone"`
	SyncCron        string             `yaml:"sync_cron"`
	RefreshCron     string             `yaml:"refresh_cron"`
	SyncLockTTL     time.Duration      `yaml:"-"`
	SyncLockTTLSec  int                `yaml:"sync_lock_ttl_sec"`
	MergePolicy     domain.MergePolicy `yaml:"attendee_merge_policy"`

	// Store backend
	StoreBackend string `yaml:"store_backend"`
	AWSRegion    string `yaml:"aws_region"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	MongoDBURL   string `yaml:"mongodb_url"`
	MongoDBName  string `yaml:"mongodb_database"`

	// OAuth - Google
	GoogleClientID     string   `yaml:"google_client_id"`
	GoogleClientSecret string   `yaml:"-"`
	GoogleRedirectURL  string   `yaml:"google_redirect_url"`
	GoogleScopes       []string `yaml:"google_scopes"`
	GoogleAPIEndpoint  string   `yaml:"google_api_endpoint"`

	// OAuth - Microsoft
	MicrosoftClientID     string   `yaml:"microsoft_client_id"`
	MicrosoftClientSecret string   `yaml:"-"`
	MicrosoftRedirectURL  string   `yaml:"microsoft_redirect_url"`
	MicrosoftTenantID     string   `yaml:"microsoft_tenant_id"`
	MicrosoftScopes       []string `yaml:"microsoft_scopes"`
	GraphBaseURL          string   `yaml:"graph_base_url"`

	// Boundary
	JWTSecret      string   `yaml:"-"`
	AdminToken     string   `yaml:"-"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Collaborators
	NotifySender       string `yaml:"notify_sender"`
	RedisURL           string `yaml:"-"`
	SQSQueueName       string `yaml:"sqs_queue_name"`
	SQSQueueURL        string `yaml:"sqs_queue_url"`
	SNSTopicARN        string `yaml:"sns_topic_arn"`
	SSMParameterPrefix string `yaml:"ssm_parameter_prefix"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",

		UserHomeKey:        "users/",
		UserInfoKey:        "users/%USER%/info.json",
		SourceTokenKey:     "users/%USER%/outlook_token.json",
		TargetTokenKey:     "users/%USER%/google_token.json",
		AttendeesKey:       "users/%USER%/attendees.json",
		ProcessedEventsKey: "sync/processed_events.json",
		CreatedEventsKey:   "sync/created_events.json",

		SyncDays:        7,
		SyncConcurrency: 4,
		SourceTimeZone:  "UTC",
		TargetTimeZone:  "UTC",
		SyncCron:        "@every 5m",
		RefreshCron:     "@every 30m",
		SyncLockTTLSec:  600,
		MergePolicy:     domain.MergeFirstSeen,

		StoreBackend: StoreS3,
		MongoDBName:  "calsync",

		MicrosoftTenantID: "common",

		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE
// YAML file and the environment, in that order of precedence. SSM secrets
// are applied separately by LoadSecrets.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.SyncLockTTL = time.Duration(cfg.SyncLockTTLSec) * time.Second
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("ENV", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.HomeBucket = getEnv("HOME_BUCKET", c.HomeBucket)
	c.UserHomeKey = getEnv("USER_HOME_KEY", c.UserHomeKey)
	c.UserInfoKey = getEnv("USER_INFO_KEY", c.UserInfoKey)
	c.SourceTokenKey = getEnv("SRC_TOKEN_KEY", c.SourceTokenKey)
	c.TargetTokenKey = getEnv("TGT_TOKEN_KEY", c.TargetTokenKey)
	c.AttendeesKey = getEnv("ATTENDEES_KEY", c.AttendeesKey)
	c.ProcessedEventsKey = getEnv("PROCESSED_EVENTS_KEY", c.ProcessedEventsKey)
	c.CreatedEventsKey = getEnv("CREATED_EVENTS_KEY", c.CreatedEventsKey)

	c.SyncDays = getEnvInt("SYNC_DAYS", c.SyncDays)
	c.SyncConcurrency = getEnvInt("SYNC_CONCURRENCY", c.SyncConcurrency)
	c.SourceTimeZone = getEnv("SOURCE_TIME_ZONE", c.SourceTimeZone)
	c.TargetTimeZone = getEnv("TARGET_TIME_ZONE", c.TargetTimeZone)
	c.SyncCron = getEnv("SYNC_CRON", c.SyncCron)
	c.RefreshCron = getEnv("REFRESH_CRON", c.RefreshCron)
	c.SyncLockTTLSec = getEnvInt("SYNC_LOCK_TTL_SEC", c.SyncLockTTLSec)
	c.MergePolicy = domain.MergePolicy(getEnv("ATTENDEE_MERGE_POLICY", string(c.MergePolicy)))

	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.MongoDBURL = getEnv("MONGODB_URL", c.MongoDBURL)
	c.MongoDBName = getEnv("MONGODB_DATABASE", c.MongoDBName)

	c.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
	c.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", c.GoogleRedirectURL)
	c.GoogleScopes = getEnvSlice("GOOGLE_SCOPES", c.GoogleScopes)
	c.GoogleAPIEndpoint = getEnv("GOOGLE_API_ENDPOINT", c.GoogleAPIEndpoint)

	c.MicrosoftClientID = getEnv("MICROSOFT_CLIENT_ID", c.MicrosoftClientID)
	c.MicrosoftClientSecret = getEnv("MICROSOFT_CLIENT_SECRET", c.MicrosoftClientSecret)
	c.MicrosoftRedirectURL = getEnv("MICROSOFT_REDIRECT_URL", c.MicrosoftRedirectURL)
	c.MicrosoftTenantID = getEnv("MICROSOFT_TENANT_ID", c.MicrosoftTenantID)
	c.MicrosoftScopes = getEnvSlice("MICROSOFT_SCOPES", c.MicrosoftScopes)
	c.GraphBaseURL = getEnv("GRAPH_BASE_URL", c.GraphBaseURL)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AdminToken = getEnv("ADMIN_TOKEN", c.AdminToken)
	c.AllowedOrigins = getEnvSlice("ALLOWED_ORIGINS", c.AllowedOrigins)

	c.NotifySender = getEnv("NOTIFY_SENDER", c.NotifySender)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.SQSQueueName = getEnv("SQS_QUEUE_NAME", c.SQSQueueName)
	c.SQSQueueURL = getEnv("SQS_QUEUE_URL", c.SQSQueueURL)
	c.SNSTopicARN = getEnv("SNS_TOPIC_ARN", c.SNSTopicARN)
	c.SSMParameterPrefix = getEnv("SSM_PARAMETER_PREFIX", c.SSMParameterPrefix)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.StoreBackend {
	case StoreS3:
		if c.HomeBucket == "" {
			fail("HOME_BUCKET is required for the s3 store backend")
		}
	case StoreMongo:
		if c.MongoDBURL == "" {
			fail("MONGODB_URL is required for the mongo store backend")
		}
	case StoreMemory:
	default:
		fail("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.SyncDays <= 0 {
		fail("SYNC_DAYS must be positive, got %d", c.SyncDays)
	}
	if c.SyncConcurrency <= 0 {
		fail("SYNC_CONCURRENCY must be positive, got %d", c.SyncConcurrency)
	}
	if !c.MergePolicy.Valid() {
		fail("unknown ATTENDEE_MERGE_POLICY %q", c.MergePolicy)
	}
	if _, err := time.LoadLocation(c.SourceTimeZone); err != nil {
		fail("invalid SOURCE_TIME_ZONE %q: %v", c.SourceTimeZone, err)
	}
	if _, err := time.LoadLocation(c.TargetTimeZone); err != nil {
		fail("invalid TARGET_TIME_ZONE %q: %v", c.TargetTimeZone, err)
	}

	perUser := map[string]string{
		"USER_INFO_KEY": c.UserInfoKey,
		"SRC_TOKEN_KEY": c.SourceTokenKey,
		"TGT_TOKEN_KEY": c.TargetTokenKey,
		"ATTENDEES_KEY": c.AttendeesKey,
	}
	for name, tmpl := range perUser {
		if !strings.Contains(tmpl, common.UserPlaceholder) {
			fail("%s %q must contain %s", name, tmpl, common.UserPlaceholder)
		}
	}
	if c.UserHomeKey == "" || !strings.HasSuffix(c.UserHomeKey, "/") {
		fail("USER_HOME_KEY %q must end with /", c.UserHomeKey)
	}
	if c.ProcessedEventsKey == "" || c.CreatedEventsKey == "" {
		fail("PROCESSED_EVENTS_KEY and CREATED_EVENTS_KEY are required")
	}

	return errors.Join(errs...)
}

// Keys returns the storage layout.
func (c *Config) Keys() common.Keys {
	return common.Keys{
		Bucket:          c.HomeBucket,
		UserHome:        c.UserHomeKey,
		UserInfo:        c.UserInfoKey,
		SourceToken:     c.SourceTokenKey,
		TargetToken:     c.TargetTokenKey,
		Attendees:       c.AttendeesKey,
		ProcessedEvents: c.ProcessedEventsKey,
		CreatedEvents:   c.CreatedEventsKey,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
