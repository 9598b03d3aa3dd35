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

	"shifttrack/internal/model"
)

type Config struct {
	LogLevel   string            `json:"log_level" yaml:"log_level"`
	Ingest     IngestConfig      `json:"ingest" yaml:"ingest"`
	Gate       GateConfig        `json:"gate" yaml:"gate"`
	Monitor    MonitorConfig     `json:"monitor" yaml:"monitor"`
	Perimeters []PerimeterConfig `json:"perimeters" yaml:"perimeters"`
	API        APIConfig         `json:"api" yaml:"api"`
	Storage    StorageConfig     `json:"storage" yaml:"storage"`
	History    HistoryConfig     `json:"history" yaml:"history"`
	Crossings  CrossingsConfig   `json:"crossings" yaml:"crossings"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	Timezone         string `json:"timezone" yaml:"timezone"`
	DefaultSubjectID string `json:"default_subject_id" yaml:"default_subject_id"`
}

// GateConfig drives validation of interactive clock operations.
type GateConfig struct {
	RequireHighAccuracy     bool    `json:"require_high_accuracy" yaml:"require_high_accuracy"`
	AccuracyThresholdMeters float64 `json:"accuracy_threshold_m" yaml:"accuracy_threshold_m"`
	AllowBufferMeters       float64 `json:"allow_buffer_m" yaml:"allow_buffer_m"`
}

// MonitorConfig drives the background crossing detector. Accuracy gating is
// off by default on this path so every reading updates containment.
type MonitorConfig struct {
	RequireHighAccuracy     bool          `json:"require_high_accuracy" yaml:"require_high_accuracy"`
	AccuracyThresholdMeters float64       `json:"accuracy_threshold_m" yaml:"accuracy_threshold_m"`
	AllowBufferMeters       float64       `json:"allow_buffer_m" yaml:"allow_buffer_m"`
	NotifyCooldown          time.Duration `json:"notify_cooldown" yaml:"notify_cooldown"`
	DedupeWindow            time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
}

type PerimeterConfig struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius_m" yaml:"radius_m"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type HistoryConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type CrossingsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC", DefaultSubjectID: "unknown"},
		},
		Gate: GateConfig{
			RequireHighAccuracy:     true,
			AccuracyThresholdMeters: 50,
		},
		Monitor: MonitorConfig{
			RequireHighAccuracy:     false,
			AccuracyThresholdMeters: 100,
		},
		API:       APIConfig{Enabled: true, Addr: ":8081"},
		Storage:   StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:shifttrack.db?_pragma=busy_timeout(5000)"},
		History:   HistoryConfig{StoreLimit: 5000},
		Crossings: CrossingsConfig{StoreLimit: 1000},
	}
}

// PerimeterSet converts the configured perimeters into the registry's model.
func (c *Config) PerimeterSet() []model.Perimeter {
	out := make([]model.Perimeter, 0, len(c.Perimeters))
	for _, p := range c.Perimeters {
		out = append(out, model.Perimeter{
			ID:              p.ID,
			Name:            p.Name,
			CenterLatitude:  p.Latitude,
			CenterLongitude: p.Longitude,
			RadiusMeters:    p.RadiusMeters,
		})
	}
	return out
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
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultSubjectID == "" {
		cfg.Ingest.Parser.DefaultSubjectID = "unknown"
	}
	if cfg.Gate.AccuracyThresholdMeters <= 0 {
		cfg.Gate.AccuracyThresholdMeters = 50
	}
	if cfg.Monitor.AccuracyThresholdMeters <= 0 {
		cfg.Monitor.AccuracyThresholdMeters = 100
	}
	if cfg.History.StoreLimit <= 0 {
		cfg.History.StoreLimit = 5000
	}
	if cfg.Crossings.StoreLimit <= 0 {
		cfg.Crossings.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Gate.AllowBufferMeters < 0 {
		return errors.New("gate.allow_buffer_m must be >= 0")
	}
	if cfg.Monitor.AllowBufferMeters < 0 {
		return errors.New("monitor.allow_buffer_m must be >= 0")
	}
	seen := make(map[string]struct{}, len(cfg.Perimeters))
	for _, p := range cfg.Perimeters {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("perimeters entries require an id")
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("duplicate perimeter id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Latitude < -90 || p.Latitude > 90 {
			return fmt.Errorf("perimeter %q latitude out of range: %v", p.ID, p.Latitude)
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			return fmt.Errorf("perimeter %q longitude out of range: %v", p.ID, p.Longitude)
		}
		if p.RadiusMeters <= 0 {
			return fmt.Errorf("perimeter %q radius_m must be > 0", p.ID)
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
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
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

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
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
