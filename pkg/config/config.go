package config

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

// Discovery holds the multicast session settings.
type Discovery struct {
	TimeoutSeconds          int  `yaml:"timeoutSeconds"`
	AnnounceIntervalSeconds int  `yaml:"announceIntervalSeconds"`
	Silent                  bool `yaml:"silent"`
	// Respond answers announcements with a multicast response when not silent.
	Respond bool `yaml:"respond"`
}

// Download holds the HTTP download settings.
type Download struct {
	RequestTimeoutSeconds int  `yaml:"requestTimeoutSeconds"`
	MaxConcurrent         int  `yaml:"maxConcurrent"`
	VerifyChecksum        bool `yaml:"verifyChecksum"`
	// AcceptSelfSigned skips certificate verification for https peers,
	// which serve self-signed certificates.
	AcceptSelfSigned bool `yaml:"acceptSelfSigned"`
}

// Config holds the entire application configuration, loaded from a YAML file.
type Config struct {
	Alias       string `yaml:"alias"`
	DeviceModel string `yaml:"deviceModel"`
	DeviceType  string `yaml:"deviceType"`
	Fingerprint string `yaml:"fingerprint"`
	Port        int    `yaml:"port"`
	Protocol    string `yaml:"protocol"`
	DownloadDir string `yaml:"downloadDir"`

	LogLevel               string `yaml:"logLevel"`
	LogFile                string `yaml:"logFile"`
	MetricsIntervalSeconds int    `yaml:"metricsIntervalSeconds"`

	Discovery Discovery `yaml:"discovery"`
	Download  Download  `yaml:"download"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DeviceType:  string(protocol.DeviceHeadless),
		Port:        int(protocol.DefaultPort),
		Protocol:    string(protocol.ProtocolHTTP),
		DownloadDir: ".",
		Discovery: Discovery{
			TimeoutSeconds:          5,
			AnnounceIntervalSeconds: 2,
			Respond:                 true,
		},
		Download: Download{
			RequestTimeoutSeconds: 30,
			AcceptSelfSigned:      true,
		},
	}
}

// DiscoveryTimeout returns the discovery session length as a time.Duration.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// AnnounceInterval returns the delay between announcements.
func (c *Config) AnnounceInterval() time.Duration {
	return time.Duration(c.Discovery.AnnounceIntervalSeconds) * time.Second
}

// RequestTimeout returns the prepare-download request timeout. Zero means none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Download.RequestTimeoutSeconds) * time.Second
}

// MetricsInterval returns how often metrics are logged. Zero disables it.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSeconds) * time.Second
}

// Validate checks values that flags may have overridden after loading.
func (c *Config) Validate() error {
	return c.validate()
}

// validate performs comprehensive validation of the loaded configuration.
func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := protocol.ParseDeviceType(c.DeviceType); err != nil {
		return fmt.Errorf("deviceType: %w", err)
	}
	if _, err := protocol.ParseProtocol(c.Protocol); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if c.Discovery.TimeoutSeconds <= 0 {
		return fmt.Errorf("discovery.timeoutSeconds must be positive")
	}
	if c.Discovery.AnnounceIntervalSeconds <= 0 {
		return fmt.Errorf("discovery.announceIntervalSeconds must be positive")
	}
	if c.Download.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("download.requestTimeoutSeconds cannot be negative")
	}
	if c.Download.MaxConcurrent < 0 {
		return fmt.Errorf("download.maxConcurrent cannot be negative")
	}
	if c.MetricsIntervalSeconds < 0 {
		return fmt.Errorf("metricsIntervalSeconds cannot be negative")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("downloadDir must be set")
	}
	return nil
}

// LoadConfig reads the configuration from the given file path, unmarshals it
// over the defaults, and performs validation. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

var (
	adjectives = []string{
		"Happy", "Swift", "Silent", "Clever", "Brave",
		"Gentle", "Wise", "Calm", "Lucky", "Proud",
	}
	nouns = []string{
		"Phoenix", "Wolf", "Eagle", "Lion", "Owl",
		"Shark", "Tiger", "Bear", "Hawk", "Fox",
	}
)

func randomAlias() string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("%s %s", adjectives[r.Intn(len(adjectives))], nouns[r.Intn(len(nouns))])
}

// DeviceInfo derives the local identity for this process. Missing values are
// generated; nothing is written back to disk.
func (c *Config) DeviceInfo() protocol.DeviceInfo {
	alias := c.Alias
	if alias == "" {
		alias = randomAlias()
	}
	model := c.DeviceModel
	if model == "" {
		model = runtime.GOOS
	}
	fingerprint := c.Fingerprint
	if fingerprint == "" {
		fingerprint = uuid.NewString()
	}
	deviceType, err := protocol.ParseDeviceType(c.DeviceType)
	if err != nil {
		deviceType = protocol.DeviceHeadless
	}

	return protocol.DeviceInfo{
		Alias:       alias,
		DeviceModel: model,
		DeviceType:  deviceType,
		Fingerprint: fingerprint,
	}
}

// ServeProtocol returns the configured scheme, defaulting to http.
func (c *Config) ServeProtocol() protocol.Protocol {
	p, err := protocol.ParseProtocol(c.Protocol)
	if err != nil {
		return protocol.ProtocolHTTP
	}
	return p
}
