package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the application configuration
type Config struct {
	Capture    CaptureConfig    `json:"capture" yaml:"capture" toml:"capture"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier" toml:"classifier"`
	Crop       CropConfig       `json:"crop" yaml:"crop" toml:"crop"`
	Detector   DetectorConfig   `json:"detector" yaml:"detector" toml:"detector"`
	Sink       SinkConfig       `json:"sink" yaml:"sink" toml:"sink"`
	Archive    ArchiveConfig    `json:"archive" yaml:"archive" toml:"archive"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify" toml:"notify"`
	Log        LogConfig        `json:"log" yaml:"log" toml:"log"`
}

// Duration is a time.Duration that reads and writes as "100ms" style text
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// CaptureConfig controls the sequence and loop pacing
type CaptureConfig struct {
	Quota    int      `json:"quota" yaml:"quota" toml:"quota" validate:"min=1,max=10000"`
	Debounce Duration `json:"debounce" yaml:"debounce" toml:"debounce"`
	Tick     Duration `json:"tick" yaml:"tick" toml:"tick"`
}

// ClassifierConfig holds the direction thresholds
type ClassifierConfig struct {
	YawThreshold   float64 `json:"yaw_threshold" yaml:"yaw_threshold" toml:"yaw_threshold" validate:"gt=0"`
	PitchThreshold float64 `json:"pitch_threshold" yaml:"pitch_threshold" toml:"pitch_threshold" validate:"gt=0"`
	UpPitchMax     float64 `json:"up_pitch_max" yaml:"up_pitch_max" toml:"up_pitch_max"`
	DownPitchMin   float64 `json:"down_pitch_min" yaml:"down_pitch_min" toml:"down_pitch_min"`
	VerticalYawMax float64 `json:"vertical_yaw_max" yaml:"vertical_yaw_max" toml:"vertical_yaw_max"`
	LeftYawMin     float64 `json:"left_yaw_min" yaml:"left_yaw_min" toml:"left_yaw_min"`
}

// CropConfig controls the saved face crops
type CropConfig struct {
	Margin   int    `json:"margin" yaml:"margin" toml:"margin" validate:"min=0"`
	Size     int    `json:"size" yaml:"size" toml:"size" validate:"min=16,max=4096"`
	Format   string `json:"format" yaml:"format" toml:"format" validate:"oneof=jpg jpeg png webp"`
	Quality  int    `json:"quality" yaml:"quality" toml:"quality" validate:"min=1,max=100"`
	Lossless bool   `json:"lossless" yaml:"lossless" toml:"lossless"`
}

// DetectorConfig selects the landmark backend
type DetectorConfig struct {
	Backend       string   `json:"backend" yaml:"backend" toml:"backend" validate:"oneof=ollama llamacpp websocket"`
	URL           string   `json:"url" yaml:"url" toml:"url" validate:"required,url"`
	Model         string   `json:"model" yaml:"model" toml:"model"`
	Prompt        string   `json:"prompt,omitempty" yaml:"prompt,omitempty" toml:"prompt,omitempty"`
	SendMaxDim    int      `json:"send_max_dim" yaml:"send_max_dim" toml:"send_max_dim" validate:"min=0"`
	SendFormat    string   `json:"send_format" yaml:"send_format" toml:"send_format" validate:"oneof=jpg jpeg png"`
	SendQuality   int      `json:"send_quality" yaml:"send_quality" toml:"send_quality" validate:"min=1,max=100"`
	MinConfidence float64  `json:"min_confidence" yaml:"min_confidence" toml:"min_confidence" validate:"min=0,max=1"`
	Timeout       Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

// SinkConfig selects where accepted frames go
type SinkConfig struct {
	Type string   `json:"type" yaml:"type" toml:"type" validate:"oneof=dir s3"`
	Dir  string   `json:"dir" yaml:"dir" toml:"dir"`
	S3   S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

// S3Config locates a bucket. Credentials come from the environment.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Region   string `json:"region" yaml:"region" toml:"region"`
	Prefix   string `json:"prefix" yaml:"prefix" toml:"prefix"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
}

// ArchiveConfig controls packaging on completion
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Name    string `json:"name" yaml:"name" toml:"name"`
	Upload  bool   `json:"upload" yaml:"upload" toml:"upload"`
}

// NotifyConfig configures progress publishing
type NotifyConfig struct {
	MQTT MQTTConfig `json:"mqtt" yaml:"mqtt" toml:"mqtt"`
}

// MQTTConfig holds the broker settings. Username and password are read
// from MQTT_USERNAME and MQTT_PASSWORD.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Broker      string `json:"broker" yaml:"broker" toml:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id" toml:"client_id"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix" toml:"topic_prefix"`
	QoS         byte   `json:"qos" yaml:"qos" toml:"qos" validate:"max=2"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `json:"level" yaml:"level" toml:"level" validate:"oneof=trace debug info warn warning error"`
	File  string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Quota:    50,
			Debounce: Duration{50 * time.Millisecond},
			Tick:     Duration{100 * time.Millisecond},
		},
		Classifier: ClassifierConfig{
			YawThreshold:   12,
			PitchThreshold: 10,
			UpPitchMax:     90,
			DownPitchMin:   170,
			VerticalYawMax: 10,
			LeftYawMin:     15,
		},
		Crop: CropConfig{
			Margin:   50,
			Size:     224,
			Format:   "jpg",
			Quality:  100,
			Lossless: true,
		},
		Detector: DetectorConfig{
			Backend:     "ollama",
			URL:         "http://localhost:11434",
			Model:       "qwen2.5vl:7b",
			SendMaxDim:  1024,
			SendFormat:  "jpg",
			SendQuality: 90,
			Timeout:     Duration{30 * time.Second},
		},
		Sink: SinkConfig{
			Type: "dir",
			Dir:  "./pics",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Name:    "face_images.zip",
		},
		Notify: NotifyConfig{
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "face-capture",
				TopicPrefix: "face-capture",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// format returns the encoding implied by a file extension
func format(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	case ".toml":
		return "toml", nil
	default:
		return "", fmt.Errorf("unsupported config format %q", filepath.Ext(filename))
	}
}

// LoadFromFile loads configuration from a JSON, YAML or TOML file.
// Fields missing from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	kind, err := format(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch kind {
	case "json":
		err = json.Unmarshal(data, config)
	case "yaml":
		err = yaml.Unmarshal(data, config)
	case "toml":
		_, err = toml.Decode(string(data), config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration in the format implied by the extension
func (c *Config) SaveToFile(filename string) error {
	kind, err := format(filename)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal(kind)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal encodes the configuration as json, yaml or toml
func (c *Config) Marshal(kind string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch kind {
	case "json":
		data, err = json.MarshalIndent(c, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(c)
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		return nil, fmt.Errorf("unsupported config format %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

var validate = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Capture.Debounce.Duration < 0 {
		return fmt.Errorf("capture.debounce must not be negative")
	}
	if c.Capture.Tick.Duration <= 0 {
		return fmt.Errorf("capture.tick must be positive")
	}
	if c.Classifier.DownPitchMin <= c.Classifier.UpPitchMax {
		return fmt.Errorf("classifier.down_pitch_min must exceed classifier.up_pitch_max")
	}
	if c.Detector.Backend != "websocket" && c.Detector.Model == "" {
		return fmt.Errorf("detector.model is required for the %s backend", c.Detector.Backend)
	}
	if c.Detector.Backend == "websocket" && !strings.HasPrefix(c.Detector.URL, "ws") {
		return fmt.Errorf("detector.url must be a ws:// or wss:// URL for the websocket backend")
	}
	switch c.Sink.Type {
	case "dir":
		if c.Sink.Dir == "" {
			return fmt.Errorf("sink.dir is required for the dir sink")
		}
	case "s3":
		if c.Sink.S3.Bucket == "" {
			return fmt.Errorf("sink.s3.bucket is required for the s3 sink")
		}
		if c.Archive.Enabled {
			return fmt.Errorf("archive requires the dir sink")
		}
	}
	if c.Archive.Upload && c.Sink.S3.Bucket == "" {
		return fmt.Errorf("archive.upload requires sink.s3.bucket")
	}
	if c.Notify.MQTT.Enabled && c.Notify.MQTT.Broker == "" {
		return fmt.Errorf("notify.mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding existing variables. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "face-capture", "config.yaml")
}
