package configuration

import (
	"encoding/json"
	"fmt"
	"os"
)

type APIConfig struct {
	BaseURL string `json:"base_url"`
}

type SocketConfig struct {
	URL string `json:"url"`
}

type DeviceConfig struct {
	DBPath string `json:"db_path"`
}

type Config struct {
	API    APIConfig    `json:"api"`
	Socket SocketConfig `json:"socket"`
	Device DeviceConfig `json:"device"`
}

// DefaultConfig targets a local simserver, the development backend.
func DefaultConfig() *Config {
	return &Config{
		API:    APIConfig{BaseURL: "http://localhost:8090"},
		Socket: SocketConfig{URL: "ws://localhost:8091/chat"},
		Device: DeviceConfig{DBPath: "./data/device.db"},
	}
}

// LoadConfig reads a JSON config file; an empty path yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if c.Socket.URL == "" {
		return fmt.Errorf("config: socket.url is required")
	}
	if c.Device.DBPath == "" {
		return fmt.Errorf("config: device.db_path is required")
	}
	return nil
}
