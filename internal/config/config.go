package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production"
	DSN            string // MySQL DSN
	RedisURL       string
	Database       DatabaseConfig
	Redis          RedisConfig
	JWTSecret      string
	AllowedOrigins []string
	Timezone       string
	Paths          PathsConfig
	Site           SiteConfig
	Mail           MailConfig
	AI             AIConfig
	Storage        StorageConfig
	Campaign       CampaignConfig
	Chat           ChatConfig
}

type DatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type PathsConfig struct {
	Logs string `yaml:"logs"`
}

type SiteConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type MailConfig struct {
	From         string `yaml:"from"`
	ReplyTo      string `yaml:"reply_to"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPass     string `yaml:"smtp_pass"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

// Enabled reports whether any delivery channel is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.ResendAPIKey) != "" || strings.TrimSpace(m.SMTPHost) != ""
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai | anthropic
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// Enabled reports whether the chat widget has a usable provider.
func (a AIConfig) Enabled() bool { return strings.TrimSpace(a.APIKey) != "" }

type StorageConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	PathStyle       bool          `yaml:"path_style"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

type CampaignConfig struct {
	BatchSize int `yaml:"batch_size"`
}

type ChatConfig struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type rawAppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"`
	DSN            string         `yaml:"dsn"`
	RedisURL       string         `yaml:"redis_url"`
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	JWTSecret      string         `yaml:"jwt_secret"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Timezone       string         `yaml:"timezone"`
	Paths          PathsConfig    `yaml:"paths"`
	Site           SiteConfig     `yaml:"site"`
	Mail           MailConfig     `yaml:"mail"`
	AI             AIConfig       `yaml:"ai"`
	Storage        StorageConfig  `yaml:"storage"`
	Campaign       CampaignConfig `yaml:"campaign"`
	Chat           ChatConfig     `yaml:"chat"`
}

// Load reads the YAML file at configPath. A missing file yields the defaults
// so that a fresh checkout can start against local MySQL and Redis.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	raw := rawAppConfig{}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case os.IsNotExist(err) && configPath == "":
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	applyRawAppConfig(&cfg, raw)
	applyEnvOverrides(&cfg, os.LookupEnv)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env == envDevelopment }

// LogDir returns the directory for daily log files.
func (c *AppConfig) LogDir() string { return c.Paths.Logs }

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	if c.Campaign.BatchSize < 1 || c.Campaign.BatchSize > maxCampaignBatchSize {
		return fmt.Errorf("invalid campaign.batch_size %d, expected 1-%d", c.Campaign.BatchSize, maxCampaignBatchSize)
	}
	switch c.AI.Provider {
	case aiProviderOpenAI, aiProviderAnthropic:
	default:
		return fmt.Errorf("invalid ai.provider %q, expected openai or anthropic", c.AI.Provider)
	}
	return nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  envDevelopment,
		Database: DatabaseConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
			Loc:      defaultDBLoc,
		},
		Redis: RedisConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
		},
		Paths: PathsConfig{Logs: defaultLogDir},
		Site:  SiteConfig{Name: defaultSiteName, URL: defaultSiteURL},
		AI: AIConfig{
			Provider:        aiProviderOpenAI,
			MaxOutputTokens: defaultAIMaxTokens,
		},
		Storage:  StorageConfig{Region: defaultS3Region, PresignTTL: defaultPresignTTL},
		Campaign: CampaignConfig{BatchSize: defaultCampaignBatchSize},
		Chat:     ChatConfig{RateLimitPerMinute: defaultChatRateLimit},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	cfg.Database = mergeDatabaseConfig(cfg.Database, raw.Database)
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.Database.DSN = v
	}
	cfg.Redis = mergeRedisConfig(cfg.Redis, raw.Redis)
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.Redis.URL = v
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Site.Name); v != "" {
		cfg.Site.Name = v
	}
	if v := strings.TrimSpace(raw.Site.URL); v != "" {
		cfg.Site.URL = strings.TrimRight(v, "/")
	}
	cfg.Mail = raw.Mail
	if cfg.Mail.SMTPPort == 0 {
		cfg.Mail.SMTPPort = defaultSMTPPort
	}

	if v := strings.TrimSpace(raw.AI.Provider); v != "" {
		cfg.AI.Provider = strings.ToLower(v)
	}
	cfg.AI.APIKey = strings.TrimSpace(raw.AI.APIKey)
	cfg.AI.Endpoint = strings.TrimSpace(raw.AI.Endpoint)
	cfg.AI.Model = strings.TrimSpace(raw.AI.Model)
	if raw.AI.MaxOutputTokens > 0 {
		cfg.AI.MaxOutputTokens = raw.AI.MaxOutputTokens
	}

	st := raw.Storage
	if strings.TrimSpace(st.Region) == "" {
		st.Region = cfg.Storage.Region
	}
	if st.PresignTTL <= 0 {
		st.PresignTTL = cfg.Storage.PresignTTL
	}
	cfg.Storage = st

	if raw.Campaign.BatchSize != 0 {
		cfg.Campaign.BatchSize = raw.Campaign.BatchSize
	}
	if raw.Chat.RateLimitPerMinute > 0 {
		cfg.Chat.RateLimitPerMinute = raw.Chat.RateLimitPerMinute
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
}

// applyEnvOverrides lets deployments keep secrets out of the YAML file.
func applyEnvOverrides(cfg *AppConfig, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("ITO_DB_DSN"); ok {
		cfg.Database.DSN = v
		cfg.DSN = v
	}
	if v, ok := get("ITO_REDIS_URL"); ok {
		cfg.Redis.URL = v
		cfg.RedisURL = v
	}
	if v, ok := get("ITO_JWT_SECRET"); ok {
		cfg.JWTSecret = v
	}
	if v, ok := get("ITO_RESEND_API_KEY"); ok {
		cfg.Mail.ResendAPIKey = v
	}
	if v, ok := get("ITO_AI_API_KEY"); ok {
		cfg.AI.APIKey = v
	}
	if v, ok := get("ITO_S3_SECRET_ACCESS_KEY"); ok {
		cfg.Storage.SecretAccessKey = v
	}
}

func mergeDatabaseConfig(cfg, raw DatabaseConfig) DatabaseConfig {
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.ParseTime != nil {
		v := *raw.ParseTime
		cfg.ParseTime = &v
	}
	if v := strings.TrimSpace(raw.Loc); v != "" {
		cfg.Loc = v
	}
	if len(raw.Params) > 0 {
		cfg.Params = raw.Params
	}
	return cfg
}

func mergeRedisConfig(cfg, raw RedisConfig) RedisConfig {
	if v := strings.TrimSpace(raw.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if raw.DB != 0 {
		cfg.DB = raw.DB
	}
	cfg.TLS = cfg.TLS || raw.TLS
	return cfg
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return envProduction
	default:
		return envDevelopment
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	seen := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
