// Package config provides configuration loading for pytrain-server and
// pytrain-client: a YAML file merged with environment-variable overrides,
// in the teacher's FileConfig/merge-then-snapshot style.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SerialConfig configures the USB-serial link to the Base 3's TMCC echo
// stream.
type SerialConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Port    string `yaml:"port,omitempty"`
	Baud    int    `yaml:"baud,omitempty"`
}

// BaseConfig configures the TCP connection to the Base 3's PDI port.
type BaseConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// ServerConfig configures the server-side TCP control plane listener.
type ServerConfig struct {
	ListenAddr       string `yaml:"listenAddr,omitempty"`
	HTTPAddr         string `yaml:"httpAddr,omitempty"`
	HTTPRateLimitRPS int    `yaml:"httpRateLimitRps,omitempty"`
	// SessionRedisAddr, when set, backs the client session registry with
	// Redis instead of an in-process map (spec §4.4), sharing the
	// registry across every pytrain-server process pointed at it.
	SessionRedisAddr string `yaml:"sessionRedisAddr,omitempty"`
}

// ClientConfig configures the client-side connection to a pytrain server.
type ClientConfig struct {
	ServerAddr string `yaml:"serverAddr,omitempty"`
}

// ThrottleConfig configures the per-sink minimum inter-send interval and
// keep-alive cadence in the communication buffer.
type ThrottleConfig struct {
	SerialInterval    string `yaml:"serialInterval,omitempty"`
	TCPInterval       string `yaml:"tcpInterval,omitempty"`
	KeepAliveIdle     string `yaml:"keepAliveIdle,omitempty"`
	KeepAliveInterval string `yaml:"keepAliveInterval,omitempty"`
}

// FileConfig is the top-level YAML configuration structure.
type FileConfig struct {
	LogLevel string         `yaml:"logLevel,omitempty"`
	Serial   SerialConfig   `yaml:"serial,omitempty"`
	Base     BaseConfig     `yaml:"base,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Client   ClientConfig   `yaml:"client,omitempty"`
	Throttle ThrottleConfig `yaml:"throttle,omitempty"`
}

// AppConfig is the fully resolved, typed configuration used at runtime;
// string durations from FileConfig are parsed once here.
type AppConfig struct {
	LogLevel string

	SerialEnabled bool
	SerialPort    string
	SerialBaud    int

	BaseHost string
	BasePort int

	ServerListenAddr    string
	ServerHTTPAddr      string
	HTTPRateLimitRPS    int
	SessionRedisAddr    string

	ClientServerAddr string

	SerialInterval    time.Duration
	TCPInterval       time.Duration
	KeepAliveIdle     time.Duration
	KeepAliveInterval time.Duration
}

// Defaults returns the baseline configuration applied before the file and
// environment overrides are merged in.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:          "info",
		SerialEnabled:     false,
		SerialPort:        "/dev/ttyUSB0",
		SerialBaud:        9600,
		BaseHost:          "192.168.1.1",
		BasePort:          50001,
		ServerListenAddr:  ":5110",
		ServerHTTPAddr:    ":5111",
		HTTPRateLimitRPS:  20,
		SessionRedisAddr:  "",
		ClientServerAddr:  "127.0.0.1:5110",
		SerialInterval:    50 * time.Millisecond,
		TCPInterval:       50 * time.Millisecond,
		KeepAliveIdle:     30 * time.Second,
		KeepAliveInterval: 5 * time.Second,
	}
}

// Load reads path (if non-empty and present) as YAML, merges it onto
// Defaults(), then applies PYTRAIN_-prefixed environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			var fc FileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			mergeFile(&cfg, &fc)
		}
	}

	if err := mergeEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeFile(cfg *AppConfig, fc *FileConfig) {
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.Serial.Port != "" {
		cfg.SerialPort = fc.Serial.Port
	}
	if fc.Serial.Baud != 0 {
		cfg.SerialBaud = fc.Serial.Baud
	}
	cfg.SerialEnabled = fc.Serial.Enabled
	if fc.Base.Host != "" {
		cfg.BaseHost = fc.Base.Host
	}
	if fc.Base.Port != 0 {
		cfg.BasePort = fc.Base.Port
	}
	if fc.Server.ListenAddr != "" {
		cfg.ServerListenAddr = fc.Server.ListenAddr
	}
	if fc.Server.HTTPAddr != "" {
		cfg.ServerHTTPAddr = fc.Server.HTTPAddr
	}
	if fc.Server.HTTPRateLimitRPS != 0 {
		cfg.HTTPRateLimitRPS = fc.Server.HTTPRateLimitRPS
	}
	if fc.Server.SessionRedisAddr != "" {
		cfg.SessionRedisAddr = fc.Server.SessionRedisAddr
	}
	if fc.Client.ServerAddr != "" {
		cfg.ClientServerAddr = fc.Client.ServerAddr
	}
	if d, err := time.ParseDuration(fc.Throttle.SerialInterval); err == nil && fc.Throttle.SerialInterval != "" {
		cfg.SerialInterval = d
	}
	if d, err := time.ParseDuration(fc.Throttle.TCPInterval); err == nil && fc.Throttle.TCPInterval != "" {
		cfg.TCPInterval = d
	}
	if d, err := time.ParseDuration(fc.Throttle.KeepAliveIdle); err == nil && fc.Throttle.KeepAliveIdle != "" {
		cfg.KeepAliveIdle = d
	}
	if d, err := time.ParseDuration(fc.Throttle.KeepAliveInterval); err == nil && fc.Throttle.KeepAliveInterval != "" {
		cfg.KeepAliveInterval = d
	}
}

func mergeEnv(cfg *AppConfig) error {
	if v := os.Getenv("PYTRAIN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PYTRAIN_SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	if v := os.Getenv("PYTRAIN_SERIAL_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PYTRAIN_SERIAL_BAUD: %w", err)
		}
		cfg.SerialBaud = n
	}
	if v := os.Getenv("PYTRAIN_BASE_HOST"); v != "" {
		cfg.BaseHost = v
	}
	if v := os.Getenv("PYTRAIN_BASE_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PYTRAIN_BASE_PORT: %w", err)
		}
		cfg.BasePort = n
	}
	if v := os.Getenv("PYTRAIN_SERVER_LISTEN_ADDR"); v != "" {
		cfg.ServerListenAddr = v
	}
	if v := os.Getenv("PYTRAIN_HTTP_RATE_LIMIT_RPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PYTRAIN_HTTP_RATE_LIMIT_RPS: %w", err)
		}
		cfg.HTTPRateLimitRPS = n
	}
	if v := os.Getenv("PYTRAIN_SESSION_REDIS_ADDR"); v != "" {
		cfg.SessionRedisAddr = v
	}
	if v := os.Getenv("PYTRAIN_CLIENT_SERVER_ADDR"); v != "" {
		cfg.ClientServerAddr = v
	}
	return nil
}
