package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log     LogConfig
	Agent   AgentConfig
	Command CommandConfig
	Engine  EngineConfig
	Runtime RuntimeConfig
}

type AgentConfig struct {
	Port        uint   `mapstructure:"port"`
	WorkspaceID string `mapstructure:"workspace_id"`
	DropletID   string `mapstructure:"droplet_id"`
}

type CommandConfig struct {
	PublicKeyFile string `mapstructure:"public_key_file"`
	Issuer        string `mapstructure:"issuer"`
}

type EngineConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type RuntimeConfig struct {
	Container string `mapstructure:"container"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/ignition-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("agent.workspace_id", "WORKSPACE_ID")
	_ = viper.BindEnv("agent.droplet_id", "DROPLET_ID")
	_ = viper.BindEnv("engine.api_key", "ENGINE_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)
}
