package http

type Config struct {
	Port        uint   `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	CORSOrigins string `mapstructure:"cors_origins"`
}
