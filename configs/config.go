package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicBaseURL string
}

type Queue struct {
	BatchSize            int
	LegacyBatchSize      int
	Workers              int
	MaxAttempts          int
	AdapterTimeout       time.Duration
	StaleProcessingAfter time.Duration
	PublishInterval      time.Duration
	Mode                 string // queue, legacy
	DryRun               bool
}

type Scheduler struct {
	MinSpacing time.Duration
	LeadTime   time.Duration
}

type Twitter struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

type Config struct {
	PostgresURI         string
	RedisURI            string
	ListenAddr          string
	R2                  R2
	SecretKey           string
	CronSecret          string
	Queue               Queue
	Scheduler           Scheduler
	Twitter             Twitter
	FacebookPageID      string
	FacebookPageToken   string
	InstagramAccountID  string
	InstagramToken      string
	IGPersonalAccountID string
	IGPersonalToken     string
	LinkedInOrgID       string
	LinkedInToken       string
	PlatformsFile       string
	EnhanceEndpoint     string
	AstriaAPIKey        string
	AstriaTuneID        string
	AstriaCallbackURL   string
	DriveCredentials    string
	DriveFolderID       string
	DiscordWebhookID    string
	DiscordWebhookToken string
	LinkedInClientID    string
	LinkedInSecret      string
	GoogleClientID      string
	GoogleClientSecret  string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", ""),
			PublicBaseURL: getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CronSecret: getEnv("CRON_SECRET", ""),
		Queue: Queue{
			BatchSize:            getEnvInt("QUEUE_BATCH_SIZE", 20),
			LegacyBatchSize:      getEnvInt("QUEUE_LEGACY_BATCH_SIZE", 10),
			Workers:              getEnvInt("QUEUE_WORKERS", 4),
			MaxAttempts:          getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			AdapterTimeout:       getEnvDuration("ADAPTER_TIMEOUT", 60*time.Second),
			StaleProcessingAfter: getEnvDuration("STALE_PROCESSING_AFTER", 15*time.Minute),
			PublishInterval:      getEnvDuration("PUBLISH_INTERVAL", 5*time.Minute),
			Mode:                 getEnv("PUBLISH_MODE", "queue"),
			DryRun:               getEnvBool("DRY_RUN", false),
		},
		Scheduler: Scheduler{
			MinSpacing: getEnvDuration("SLOT_MIN_SPACING", 2*time.Hour),
			LeadTime:   getEnvDuration("SLOT_LEAD_TIME", time.Hour),
		},
		Twitter: Twitter{
			ConsumerKey:       getEnv("TWITTER_CONSUMER_KEY", ""),
			ConsumerSecret:    getEnv("TWITTER_CONSUMER_SECRET", ""),
			AccessToken:       getEnv("TWITTER_ACCESS_TOKEN", ""),
			AccessTokenSecret: getEnv("TWITTER_ACCESS_TOKEN_SECRET", ""),
		},
		FacebookPageID:      getEnv("FACEBOOK_PAGE_ID", ""),
		FacebookPageToken:   getEnv("FACEBOOK_PAGE_TOKEN", ""),
		InstagramAccountID:  getEnv("INSTAGRAM_ACCOUNT_ID", ""),
		InstagramToken:      getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		IGPersonalAccountID: getEnv("IG_PERSONAL_ACCOUNT_ID", ""),
		IGPersonalToken:     getEnv("IG_PERSONAL_ACCESS_TOKEN", ""),
		LinkedInOrgID:       getEnv("LINKEDIN_ORG_ID", ""),
		LinkedInToken:       getEnv("LINKEDIN_ACCESS_TOKEN", ""),
		PlatformsFile:       getEnv("PLATFORMS_FILE", ""),
		EnhanceEndpoint:     getEnv("ENHANCE_ENDPOINT", ""),
		AstriaAPIKey:        getEnv("ASTRIA_API_KEY", ""),
		AstriaTuneID:        getEnv("ASTRIA_TUNE_ID", ""),
		AstriaCallbackURL:   getEnv("ASTRIA_CALLBACK_URL", ""),
		DriveCredentials:    getEnv("GOOGLE_DRIVE_CREDENTIALS", ""),
		DriveFolderID:       getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
		DiscordWebhookID:    getEnv("DISCORD_WEBHOOK_ID", ""),
		DiscordWebhookToken: getEnv("DISCORD_WEBHOOK_TOKEN", ""),
		LinkedInClientID:    getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedInSecret:      getEnv("LINKEDIN_CLIENT_SECRET", ""),
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
	}
}

// EnhancedPrefix is the URL prefix of photos that already went through enhancement.
func (c *Config) EnhancedPrefix() string {
	if c.R2.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.R2.PublicBaseURL, "/") + "/enhanced/"
}

// LegacyMode reports whether the synchronous publish path is forced.
func (c *Config) LegacyMode() bool {
	return c.Queue.Mode == "legacy"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
