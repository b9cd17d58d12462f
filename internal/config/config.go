// Package config reads and writes the JSON run configuration. A file holds
// exactly one role:
//
//	{"Server": {"port": 5343, "location": "/srv/tree"}}
//	{"Client": {"host": "10.0.0.2", "port": 5343, "location": "/home/me/tree"}}
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/openmined/treesync/internal/utils"
	"github.com/spf13/viper"
)

const DefaultPort uint16 = 5343

var (
	ErrNoRole      = errors.New("config: exactly one of Server or Client must be set")
	ErrNoLocation  = errors.New("config: location is required")
	ErrNoHost      = errors.New("config: client host is required")
	ErrInvalidPort = errors.New("config: port out of range")
)

type ServerConfig struct {
	Port     uint16 `json:"port" mapstructure:"port"`
	Location string `json:"location" mapstructure:"location"`
	// Bind is the listen host; empty listens on all interfaces.
	Bind string `json:"bind,omitempty" mapstructure:"bind"`
}

type ClientConfig struct {
	Host      string `json:"host" mapstructure:"host"`
	Port      uint16 `json:"port" mapstructure:"port"`
	Location  string `json:"location" mapstructure:"location"`
	Reconnect bool   `json:"reconnect,omitempty" mapstructure:"reconnect"`
}

type Config struct {
	Server *ServerConfig `json:"Server,omitempty" mapstructure:"server"`
	Client *ClientConfig `json:"Client,omitempty" mapstructure:"client"`
	Path   string        `json:"-" mapstructure:"-"`
}

func NewServer(port uint16, location string) *Config {
	return &Config{Server: &ServerConfig{Port: port, Location: location}}
}

func NewClient(host string, port uint16, location string) *Config {
	return &Config{Client: &ClientConfig{Host: host, Port: port, Location: location}}
}

// Load reads and validates a config file. Keys are matched case-insensitively.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read %q: %w", path, err)
	}

	for _, key := range []string{"server.port", "client.port"} {
		if !v.IsSet(key) {
			continue
		}
		if p := v.GetInt64(key); p < 0 || p > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidPort, key, p)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode %q: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the role and fills the default port.
func (c *Config) Validate() error {
	if (c.Server == nil) == (c.Client == nil) {
		return ErrNoRole
	}

	if s := c.Server; s != nil {
		if strings.TrimSpace(s.Location) == "" {
			return ErrNoLocation
		}
		if s.Port == 0 {
			s.Port = DefaultPort
		}
		return nil
	}

	cl := c.Client
	if strings.TrimSpace(cl.Location) == "" {
		return ErrNoLocation
	}
	if strings.TrimSpace(cl.Host) == "" {
		return ErrNoHost
	}
	if cl.Port == 0 {
		cl.Port = DefaultPort
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	return os.WriteFile(path, data, 0o644)
}

// ServerTemplate and ClientTemplate are written by init-config as starting points.
func ServerTemplate() *Config {
	return NewServer(DefaultPort, "/path/to/server")
}

func ClientTemplate() *Config {
	return NewClient("127.0.0.1", DefaultPort, "/path/to/client")
}
