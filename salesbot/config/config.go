package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	PathAPI string
	Port    string

	DBUser         string
	DBPassword     string
	DBHost         string
	DBPort         string
	DBName         string
	DBMaxOpenConns int

	SlackSigningSecret   string
	SlackBotToken        string
	SlackVerifySignature bool
	SlackChannel         string
	BotDisplayName       string

	LLMProvider   string
	LLMModel      string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaURL     string

	Notifier         string
	TelegramBotToken string
	TelegramChatID   int64

	ClientOrigin     string
	WebhookRateLimit int
	AdminJWTSecret   string
	PersonaFile      string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	LogDir string
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	NotifierSlack    = "slack"
	NotifierTelegram = "telegram"
	NotifierLog      = "log"
)

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		PathAPI: strings.Trim(getEnv("PATH_API", "api"), "/"),
		Port:    getEnv("PORT", "8000"),

		DBUser:         getEnv("POSTGRES_USER", ""),
		DBPassword:     getEnv("POSTGRES_PASSWORD", ""),
		DBHost:         getEnv("POSTGRES_HOST", ""),
		DBPort:         getEnv("DATABASE_PORT", "5432"),
		DBName:         getEnv("POSTGRES_DB", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),

		SlackSigningSecret:   getEnv("SLACK_SIGNING_SECRET", ""),
		SlackBotToken:        getEnv("SLACK_BOT_TOKEN", ""),
		SlackVerifySignature: getEnvBool("SLACK_VERIFY_SIGNATURE", false),
		SlackChannel:         getEnv("SLACK_CHANNEL", "bot-updates"),
		BotDisplayName:       getEnv("BOT_DISPLAY_NAME", "Bot User"),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		LLMModel:      getEnv("LLM_MODEL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434/api"),

		Notifier:         strings.ToLower(getEnv("NOTIFIER", NotifierSlack)),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),

		ClientOrigin:     getEnv("CLIENT_ORIGIN", "*"),
		WebhookRateLimit: getEnvInt("WEBHOOK_RATE_LIMIT", 60),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		PersonaFile:      getEnv("PERSONA_FILE", ""),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "transcripts"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LogDir: getEnv("LOG_DIR", "./logs"),
	}
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
		return fmt.Errorf("POSTGRES_HOST, POSTGRES_USER and POSTGRES_DB are required")
	}
	if err := c.ValidateClients(); err != nil {
		return err
	}
	if c.SlackVerifySignature && c.SlackSigningSecret == "" {
		return fmt.Errorf("SLACK_VERIFY_SIGNATURE is set but SLACK_SIGNING_SECRET is empty")
	}
	return nil
}

// ValidateClients checks only the outbound LLM and notifier settings.
func (c Config) ValidateClients() error {
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			return fmt.Errorf("OLLAMA_URL is required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.Notifier {
	case NotifierSlack:
		if c.SlackBotToken == "" {
			return fmt.Errorf("SLACK_BOT_TOKEN is required for notifier %q", c.Notifier)
		}
	case NotifierTelegram:
		if c.TelegramBotToken == "" || c.TelegramChatID == 0 {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for notifier %q", c.Notifier)
		}
	case NotifierLog:
	default:
		return fmt.Errorf("unknown NOTIFIER %q", c.Notifier)
	}
	return nil
}

// Model returns the configured model name or the provider default.
func (c Config) Model() string {
	if c.LLMModel != "" {
		return c.LLMModel
	}
	switch c.LLMProvider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.1"
	default:
		return "gemini-1.5-flash"
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
