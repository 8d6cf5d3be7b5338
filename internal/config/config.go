package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName string        `json:"service_name" yaml:"service_name"`
	LogLevel    string        `json:"log_level" yaml:"log_level"`
	LogFormat   string        `json:"log_format" yaml:"log_format"`
	API         APIConfig     `json:"api" yaml:"api"`
	Storage     StorageConfig `json:"storage" yaml:"storage"`
	Cache       CacheConfig   `json:"cache" yaml:"cache"`
	Push        PushConfig    `json:"push" yaml:"push"`
	Ingest      IngestConfig  `json:"ingest" yaml:"ingest"`
	Rollup      RollupConfig  `json:"rollup" yaml:"rollup"`
}

type APIConfig struct {
	Addr   string `json:"addr" yaml:"addr"`
	WebDir string `json:"web_dir" yaml:"web_dir"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type CacheConfig struct {
	Backend  string        `json:"backend" yaml:"backend"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	Capacity int           `json:"capacity" yaml:"capacity"`
	Redis    RedisConfig   `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

type PushConfig struct {
	Interval     time.Duration `json:"interval" yaml:"interval"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

type IngestConfig struct {
	ChannelBuffer int `json:"channel_buffer" yaml:"channel_buffer"`
	// MetricsLimit bounds how many workers the ingest counters remember.
	MetricsLimit int `json:"metrics_limit" yaml:"metrics_limit"`
	// DedupeWindow drops a reading identical to one seen this recently.
	DedupeWindow time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	// BroadcastCooldown bounds how often one worker's urgent alerts trigger a push broadcast.
	BroadcastCooldown time.Duration `json:"broadcast_cooldown" yaml:"broadcast_cooldown"`
	// Timezone applies to device timestamps that carry no zone.
	Timezone string      `json:"timezone" yaml:"timezone"`
	REST     RESTConfig  `json:"rest" yaml:"rest"`
	Kafka    KafkaConfig `json:"kafka" yaml:"kafka"`
	MQTT     MQTTConfig  `json:"mqtt" yaml:"mqtt"`
	TCP      TCPConfig   `json:"tcp" yaml:"tcp"`
}

// TCPConfig accepts newline-delimited readings from BLE gateways.
type TCPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type RESTConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type MQTTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Topic    string `json:"topic" yaml:"topic"`
	QoS      byte   `json:"qos" yaml:"qos"`
}

type RollupConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

func DefaultConfig() *Config {
	return &Config{
		ServiceName: "safewatch",
		LogLevel:    "info",
		LogFormat:   "json",
		API:         APIConfig{Addr: ":8080"},
		Storage:     StorageConfig{Driver: "sqlite", DSN: "file:safewatch.db?_pragma=busy_timeout(5000)"},
		Cache: CacheConfig{
			Backend:  "memory",
			TTL:      15 * time.Second,
			Capacity: 1024,
			Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "safewatch:history:"},
		},
		Push: PushConfig{Interval: 10 * time.Second, WriteTimeout: 5 * time.Second},
		Ingest: IngestConfig{
			ChannelBuffer:     1000,
			MetricsLimit:      10000,
			DedupeWindow:      2 * time.Second,
			BroadcastCooldown: time.Second,
			REST:              RESTConfig{Enabled: true},
			MQTT:              MQTTConfig{ClientID: "safewatch", Topic: "safewatch/readings", QoS: 1},
			TCP:               TCPConfig{Addr: ":9100"},
		},
		Rollup: RollupConfig{Enabled: false, Interval: 15 * time.Minute},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set, otherwise returns defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		applyEnv(cfg)
		applyDefaults(cfg)
		return cfg, Validate(cfg)
	}
	return Load(path)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SAFEWATCH_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SAFEWATCH_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SAFEWATCH_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("SAFEWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 15 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Capacity < 0 {
		cfg.Cache.Capacity = 0
	}
	if cfg.Push.Interval <= 0 {
		cfg.Push.Interval = 10 * time.Second
	}
	if cfg.Push.WriteTimeout <= 0 {
		cfg.Push.WriteTimeout = 5 * time.Second
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Ingest.MetricsLimit <= 0 {
		cfg.Ingest.MetricsLimit = 10000
	}
	if cfg.Ingest.DedupeWindow < 0 {
		cfg.Ingest.DedupeWindow = 0
	}
	if cfg.Ingest.BroadcastCooldown < 0 {
		cfg.Ingest.BroadcastCooldown = 0
	}
	if cfg.Rollup.Interval <= 0 {
		cfg.Rollup.Interval = 15 * time.Minute
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "safewatch"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return errors.New("api.addr required")
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q unsupported", cfg.Storage.Driver)
	}
	switch strings.ToLower(cfg.Cache.Backend) {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend %q unsupported", cfg.Cache.Backend)
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.MQTT.Enabled {
		if cfg.Ingest.MQTT.Broker == "" || cfg.Ingest.MQTT.Topic == "" {
			return errors.New("ingest.mqtt requires broker and topic")
		}
		if cfg.Ingest.MQTT.QoS > 2 {
			return fmt.Errorf("ingest.mqtt.qos must be 0, 1 or 2: %d", cfg.Ingest.MQTT.QoS)
		}
	}
	if cfg.Ingest.TCP.Enabled && cfg.Ingest.TCP.Addr == "" {
		return errors.New("ingest.tcp.addr required when enabled")
	}
	if cfg.Ingest.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Ingest.Timezone); err != nil {
			return fmt.Errorf("ingest.timezone: %w", err)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
