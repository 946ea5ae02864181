package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	envDevelopment = "development"
	envProduction  = "production"

	defaultPort       = 8080
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "itorigin"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultLogDir     = "logs"
	defaultSiteName   = "IT Origin"
	defaultSiteURL    = "http://localhost:8080"
	defaultSMTPPort   = 587

	aiProviderOpenAI    = "openai"
	aiProviderAnthropic = "anthropic"
	defaultAIMaxTokens  = 400

	defaultS3Region   = "us-east-1"
	defaultPresignTTL = 15 * time.Minute

	defaultCampaignBatchSize = 50
	maxCampaignBatchSize     = 100
	defaultChatRateLimit     = 10
)
