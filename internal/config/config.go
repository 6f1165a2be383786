// Package config loads fretsense settings from a YAML file, a .env file and
// FRETSENSE_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FRETSENSE_SERVER_PORT.
const EnvPrefix = "FRETSENSE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Data     DataConfig     `mapstructure:"data"`
	Detector DetectorConfig `mapstructure:"detector"`
	Hands    HandsConfig    `mapstructure:"hands"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	StaticDir      string        `mapstructure:"static_dir"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	DefaultChord   string        `mapstructure:"default_chord"`
}

type DataConfig struct {
	Dir       string `mapstructure:"dir"`
	ChordsDir string `mapstructure:"chords_dir"`
}

// DatabasePath returns the SQLite file inside the data directory.
func (d DataConfig) DatabasePath() string {
	return filepath.Join(d.Dir, "fretsense.db")
}

type DetectorConfig struct {
	ModelPath         string        `mapstructure:"model_path"`
	SharedLibraryPath string        `mapstructure:"shared_library_path"`
	InputSize         int           `mapstructure:"input_size"`
	MinConfidence     float64       `mapstructure:"min_confidence"`
	IoUThreshold      float64       `mapstructure:"iou_threshold"`
	NearClass         int           `mapstructure:"near_class"`
	FarClass          int           `mapstructure:"far_class"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	QueueTimeout      time.Duration `mapstructure:"queue_timeout"`
}

type HandsConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ScriptPath  string        `mapstructure:"script_path"`
	PythonPath  string        `mapstructure:"python_path"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	BootstrapServers string        `mapstructure:"bootstrap_servers"`
	Topic            string        `mapstructure:"topic"`
	SecurityProtocol string        `mapstructure:"security_protocol"`
	SASLMechanism    string        `mapstructure:"sasl_mechanism"`
	SASLUsername     string        `mapstructure:"sasl_username"`
	SASLPassword     string        `mapstructure:"sasl_password"`
	Acks             string        `mapstructure:"acks"`
	MaxRetries       int           `mapstructure:"max_retries"`
	FlushTimeout     time.Duration `mapstructure:"flush_timeout"`
}

// Enabled reports whether a broker is configured.
func (k KafkaConfig) Enabled() bool {
	return k.BootstrapServers != ""
}

// Load reads configPath, if non-empty, on top of the defaults. A .env file in
// the working directory is loaded first so its values act as environment
// overrides; variables already set in the environment win over it.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Detector.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("detector.input_size must be positive, got %d", c.Detector.InputSize))
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector.min_confidence must be within [0,1], got %v", c.Detector.MinConfidence))
	}
	if c.Detector.NearClass == c.Detector.FarClass {
		errs = append(errs, errors.New("detector.near_class and detector.far_class must differ"))
	}
	if c.Detector.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("detector.max_concurrent must be positive, got %d", c.Detector.MaxConcurrent))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".fretsense")

	v.SetDefault("server.port", ":5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.max_body_bytes", 8*1024*1024)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.default_chord", "D")

	v.SetDefault("data.dir", dataDir)
	v.SetDefault("data.chords_dir", filepath.Join(dataDir, "chords"))

	v.SetDefault("detector.model_path", filepath.Join(dataDir, "models", "frets.onnx"))
	v.SetDefault("detector.shared_library_path", "")
	v.SetDefault("detector.input_size", 640)
	v.SetDefault("detector.min_confidence", 0.02)
	v.SetDefault("detector.iou_threshold", 0.7)
	v.SetDefault("detector.near_class", 1)
	v.SetDefault("detector.far_class", 2)
	v.SetDefault("detector.max_concurrent", 2)
	v.SetDefault("detector.queue_timeout", 10*time.Second)

	v.SetDefault("hands.enabled", false)
	v.SetDefault("hands.script_path", "")
	v.SetDefault("hands.python_path", "")
	v.SetDefault("hands.idle_timeout", 30*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("kafka.bootstrap_servers", "")
	v.SetDefault("kafka.topic", "fretsense-sessions")
	v.SetDefault("kafka.security_protocol", "")
	v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	v.SetDefault("kafka.sasl_username", "")
	v.SetDefault("kafka.sasl_password", "")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.flush_timeout", 10*time.Second)
}
