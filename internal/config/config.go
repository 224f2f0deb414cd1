package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// ManageTokenTTL bounds how long a minted management link stays valid.
	ManageTokenTTL time.Duration
	// VerifyCodeLength is the number of digits in a verification code.
	VerifyCodeLength int
	// ManageLinkBase is prepended to minted tokens to build the management
	// link. When empty the bare token is returned as the link.
	ManageLinkBase string
	// RequireVerifiedWrites rejects preference writes for identities that
	// have not confirmed a verification code yet. Off by default: an
	// unverified user may stage preferences before completing verification.
	RequireVerifiedWrites bool

	SNSRegion        string
	TelegramBotToken string

	WhopAppID         string
	WhopPublicKeyPath string
	WhopAPIKey        string
	WhopExpectedIss   string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Subscribers     string
	ChatSubscribers string
	ManageTokens    string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Subscribers:     getEnv("DYNAMO_TABLE_SUBSCRIBERS", "subscribers"),
			ChatSubscribers: getEnv("DYNAMO_TABLE_CHAT_SUBSCRIBERS", "telegram_subscribers"),
			ManageTokens:    getEnv("DYNAMO_TABLE_MANAGE_TOKENS", "manage_tokens"),
		},

		ManageTokenTTL:        time.Duration(getEnvInt("MANAGE_TOKEN_TTL_MIN", 30)) * time.Minute,
		VerifyCodeLength:      getEnvInt("VERIFY_CODE_LENGTH", 6),
		ManageLinkBase:        strings.TrimRight(getEnv("MANAGE_LINK_BASE", ""), "/"),
		RequireVerifiedWrites: getEnvBool("REQUIRE_VERIFIED_WRITES", false),

		SNSRegion:        getEnv("SNS_REGION", "us-east-1"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		WhopAppID:         getEnv("WHOP_APP_ID", ""),
		WhopPublicKeyPath: getEnv("WHOP_PUBLIC_KEY_PEM_PATH", "./whop_public_key.pem"),
		WhopAPIKey:        getEnv("WHOP_API_KEY", ""),
		WhopExpectedIss:   getEnv("WHOP_EXPECTED_ISS", "urn:whopcom:exp-proxy"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
