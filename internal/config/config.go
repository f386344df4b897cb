package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Game        GameConfig        `mapstructure:"game"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Development DevelopmentConfig `mapstructure:"development"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type GameConfig struct {
	Rows               int    `mapstructure:"rows"`
	Cols               int    `mapstructure:"cols"`
	Mode               string `mapstructure:"mode"`
	RackCapacity       int    `mapstructure:"rack_capacity"`
	TimerSeconds       int    `mapstructure:"timer_seconds"`
	IdleTimeoutMinutes int    `mapstructure:"idle_timeout_minutes"`
}

type ReplicationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	PeerURL string `mapstructure:"peer_url"`
}

type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type DevelopmentConfig struct {
	Debug    bool   `mapstructure:"debug"`
	Profile  bool   `mapstructure:"profile"`
	LogLevel string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Enable environment variables
	viper.SetEnvPrefix("JIGSAW")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("game.rows", 5)
	viper.SetDefault("game.cols", 5)
	viper.SetDefault("game.mode", "classic")
	viper.SetDefault("game.rack_capacity", 10)
	viper.SetDefault("game.timer_seconds", 0)
	viper.SetDefault("game.idle_timeout_minutes", 30)
	viper.SetDefault("replication.enabled", false)
	viper.SetDefault("replication.peer_url", "")
	viper.SetDefault("storage.dir", "./data/games")
	viper.SetDefault("development.debug", false)
	viper.SetDefault("development.profile", false)
	viper.SetDefault("development.log_level", "info")

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults, environment and bound flags still apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
