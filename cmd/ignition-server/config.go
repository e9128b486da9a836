package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hatchstack/ignition/internal/api/http"
	"github.com/hatchstack/ignition/internal/db"
)

type Config struct {
	Log     LogConfig
	Http    http.Config
	Db      db.Config
	Command CommandConfig
	Compute ComputeConfig
	Vault   VaultConfig
}

type CommandConfig struct {
	PrivateKeyFile string `mapstructure:"private_key_file"`
	Issuer         string `mapstructure:"issuer"`
	RetentionMins  int    `mapstructure:"retention_mins"`
}

type ComputeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

type VaultConfig struct {
	// Key is the base64-encoded 32-byte sealing key.
	Key string `mapstructure:"key"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/ignition-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("db.url", "DATABASE_URL")
	_ = viper.BindEnv("compute.token", "COMPUTE_API_TOKEN")
	_ = viper.BindEnv("vault.key", "VAULT_KEY")
	_ = viper.BindEnv("http.api_key", "API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)
}
