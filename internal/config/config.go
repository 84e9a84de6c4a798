package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port     string
	LogLevel string

	// Model
	GeminiAPIKey string
	GCPProjectID string
	GCPLocation  string
	ModelName    string
	UseMockLLM   bool // true = use mock even when a key is present

	// Studio automation server
	MCPURL         string
	MCPTransport   string // "rest" or "mcp"
	MCPCallTimeout time.Duration
	StatusInterval time.Duration

	// Storage
	StorageBackend string // "memory", "redis" or "firestore"
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Planner
	HistoryLimit  int // messages fed to the model
	ContextBudget int // characters of history fed to the model
	RejectBusy    bool

	SettingsPath string
	BackupDir    string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load reads .env (if any) and all env vars and builds the config.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	modeStr := getEnv("ROBOVIBE_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	apiKey := getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))

	cfg := &Config{
		Mode: mode,

		Port:     getEnv("ROBOVIBE_PORT", "5000"),
		LogLevel: getEnv("ROBOVIBE_LOG_LEVEL", "info"),

		GeminiAPIKey: apiKey,
		GCPProjectID: getEnv("ROBOVIBE_GCP_PROJECT", ""),
		GCPLocation:  getEnv("ROBOVIBE_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("ROBOVIBE_MODEL_NAME", "gemini-2.5-flash"),
		UseMockLLM:   getBoolEnv("ROBOVIBE_USE_MOCK_LLM", false),

		MCPURL:         getEnv("MCP_URL", "http://localhost:3002"),
		MCPTransport:   getEnv("MCP_TRANSPORT", "rest"),
		MCPCallTimeout: getDurationEnv("MCP_CALL_TIMEOUT", 30*time.Second),
		StatusInterval: getDurationEnv("ROBOVIBE_STATUS_INTERVAL", 10*time.Second),

		StorageBackend: getEnv("ROBOVIBE_STORAGE_BACKEND", "memory"),
		RedisAddr:      getEnv("ROBOVIBE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("ROBOVIBE_REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("ROBOVIBE_REDIS_DB", 0),

		HistoryLimit:  getIntEnv("ROBOVIBE_HISTORY_LIMIT", 20),
		ContextBudget: getIntEnv("ROBOVIBE_CONTEXT_BUDGET", 12000),
		RejectBusy:    getBoolEnv("ROBOVIBE_REJECT_CONCURRENT", false),

		SettingsPath: getEnv("ROBOVIBE_SETTINGS_PATH", "config/settings.yaml"),
		BackupDir:    getEnv("ROBOVIBE_BACKUP_DIR", "backups"),
	}

	// Minimal validation in GCP mode
	if cfg.Mode == ModeGCP && cfg.GCPProjectID == "" {
		return nil, errors.New("ROBOVIBE_GCP_PROJECT must be set in gcp mode")
	}
	if cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		return nil, errors.New("ROBOVIBE_GCP_PROJECT is required for firestore storage backend")
	}
	if cfg.MCPTransport != "rest" && cfg.MCPTransport != "mcp" {
		return nil, errors.New("MCP_TRANSPORT must be rest or mcp")
	}

	return cfg, nil
}
