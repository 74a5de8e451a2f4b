package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

// Config keys. Each can be set by flag, by PIXEL_<KEY> or left at its default.
const (
	KeyDataDir  = "data_dir"
	KeyStorage  = "storage"
	KeyHTTPAddr = "http_addr"
	KeyLogLevel = "log_level"
	KeyLogFile  = "log_file"
)

const EnvPrefix = "PIXEL"

type Config struct {
	DataDir  string
	Storage  string
	HTTPAddr string
	LogLevel string
	LogFile  string

	// Overrides are preference values taken from the environment at start-up.
	// They are applied in memory only.
	Overrides map[string]string
}

var AppConfig Config

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, ".")
	v.SetDefault(KeyStorage, store.BackendJSON)
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
}

// LoadConfig reads an optional .env file, then resolves every key through v.
func LoadConfig(v *viper.Viper) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment variables")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	cfg := Config{
		DataDir:   v.GetString(KeyDataDir),
		Storage:   strings.ToLower(strings.TrimSpace(v.GetString(KeyStorage))),
		HTTPAddr:  v.GetString(KeyHTTPAddr),
		LogLevel:  v.GetString(KeyLogLevel),
		LogFile:   v.GetString(KeyLogFile),
		Overrides: preferenceOverrides(),
	}

	switch cfg.Storage {
	case store.BackendJSON, store.BackendSQLite:
	default:
		return Config{}, fmt.Errorf("storage must be %q or %q, got %q", store.BackendJSON, store.BackendSQLite, cfg.Storage)
	}

	AppConfig = cfg
	return cfg, nil
}

// preferenceOverrides collects credential, endpoint and model from the
// environment. PIXEL_* wins over the OpenAI SDK names.
func preferenceOverrides() map[string]string {
	out := make(map[string]string)
	if v := getEnv("PIXEL_API_KEY", "OPENAI_API_KEY"); v != "" {
		out[store.KeyCredential] = v
	}
	if v := getEnv("PIXEL_ENDPOINT", "OPENAI_BASE_URL"); v != "" {
		out[store.KeyEndpoint] = v
	}
	if v := getEnv("PIXEL_MODEL"); v != "" {
		out[store.KeyModel] = v
	}
	return out
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
