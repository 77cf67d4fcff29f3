package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	kiloByte = 1024
)

type Config struct {
	Buffer  bufferConfig  `yaml:"buffer"`
	Storage storageConfig `yaml:"storage"`
	Planner plannerConfig `yaml:"planner"`
	Log     logConfig     `yaml:"log"`
	Metrics metricsConfig `yaml:"metrics"`
	S3      S3Config      `yaml:"s3"`
}
type bufferConfig struct {
	AvailableBuffers int `yaml:"available_buffers"`
	BlockSize        int `yaml:"block_size"` // bytes per block, decides how many rows share a block
}
type storageConfig struct {
	SpillDir         string `yaml:"spill_dir"` // empty keeps every table in memory
	CompressionLevel string `yaml:"compression_level"`
	LoadBatchSize    int    `yaml:"load_batch_size"`
}
type plannerConfig struct {
	JoinAlgorithm string `yaml:"join_algorithm"` // nestedloop, blocknested, hash or merge
	Explain       bool   `yaml:"explain"`
}
type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
type metricsConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics"`
	Namespace     string `yaml:"namespace"`
}

// S3Config locates table files in an object store. Keys come from the
// environment only, see LoadEnv.
type S3Config struct {
	Client       string  `yaml:"client"` // minio or aws
	Endpoint     string  `yaml:"endpoint"`
	Region       string  `yaml:"region"`
	Bucket       string  `yaml:"bucket"`
	UseSSL       bool    `yaml:"use_ssl"`
	UsePathStyle bool    `yaml:"use_path_style"`
	Secrets      secrets `yaml:"-"`
}
type secrets struct {
	AccessKey string
	SecretKey string
}

var configInstance = defaults()

func defaults() *Config {
	return &Config{
		Buffer: bufferConfig{
			AvailableBuffers: 8,
			BlockSize:        kiloByte / 2,
		},
		Storage: storageConfig{
			SpillDir:         "",
			CompressionLevel: "default",
			LoadBatchSize:    1024,
		},
		Planner: plannerConfig{
			JoinAlgorithm: "blocknested",
			Explain:       false,
		},
		Log: logConfig{
			Level:  "info",
			Format: "logfmt",
		},
		Metrics: metricsConfig{
			EnableMetrics: true,
			Namespace:     "qexec",
		},
		S3: S3Config{
			Client: "minio",
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

func GetConfig() *Config {
	return configInstance
}

// overwrite global instance with loaded config
func Decode(filePath string) error {
	suffix := strings.Split(filePath, ".")[len(strings.Split(filePath, "."))-1]
	if suffix != "yaml" && suffix != "yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	config := make(map[string]interface{})
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	mergeConfig(configInstance, config)
	return configInstance.Validate()
}

// LoadEnv reads S3_ACCESS_KEY and S3_SECRET_KEY, from the given .env files
// when any are passed and from the process environment otherwise.
func LoadEnv(paths ...string) error {
	if len(paths) > 0 {
		if err := godotenv.Load(paths...); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	configInstance.S3.Secrets = secrets{
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Buffer.BlockSize <= 0 {
		return fmt.Errorf("buffer.block_size must be positive, got %d", c.Buffer.BlockSize)
	}
	if c.Storage.LoadBatchSize <= 0 {
		return fmt.Errorf("storage.load_batch_size must be positive, got %d", c.Storage.LoadBatchSize)
	}
	switch c.S3.Client {
	case "minio", "aws":
	default:
		return fmt.Errorf("s3.client must be minio or aws, got %q", c.S3.Client)
	}
	return nil
}

func mergeConfig(dst *Config, src map[string]interface{}) {
	// =============================
	// BUFFER
	// =============================
	if buffer, ok := src["buffer"].(map[string]interface{}); ok {
		if v, ok := buffer["available_buffers"].(int); ok {
			dst.Buffer.AvailableBuffers = v
		}
		if v, ok := buffer["block_size"].(int); ok {
			dst.Buffer.BlockSize = v
		}
	}

	// =============================
	// STORAGE
	// =============================
	if storage, ok := src["storage"].(map[string]interface{}); ok {
		if v, ok := storage["spill_dir"].(string); ok {
			dst.Storage.SpillDir = v
		}
		if v, ok := storage["compression_level"].(string); ok {
			dst.Storage.CompressionLevel = v
		}
		if v, ok := storage["load_batch_size"].(int); ok {
			dst.Storage.LoadBatchSize = v
		}
	}

	// =============================
	// PLANNER
	// =============================
	if planner, ok := src["planner"].(map[string]interface{}); ok {
		if v, ok := planner["join_algorithm"].(string); ok {
			dst.Planner.JoinAlgorithm = v
		}
		if v, ok := planner["explain"].(bool); ok {
			dst.Planner.Explain = v
		}
	}

	// =============================
	// LOG
	// =============================
	if log, ok := src["log"].(map[string]interface{}); ok {
		if v, ok := log["level"].(string); ok {
			dst.Log.Level = v
		}
		if v, ok := log["format"].(string); ok {
			dst.Log.Format = v
		}
	}

	// =============================
	// METRICS
	// =============================
	if metrics, ok := src["metrics"].(map[string]interface{}); ok {
		if v, ok := metrics["enable_metrics"].(bool); ok {
			dst.Metrics.EnableMetrics = v
		}
		if v, ok := metrics["namespace"].(string); ok {
			dst.Metrics.Namespace = v
		}
	}

	// =============================
	// S3
	// =============================
	if s3, ok := src["s3"].(map[string]interface{}); ok {
		if v, ok := s3["client"].(string); ok {
			dst.S3.Client = v
		}
		if v, ok := s3["endpoint"].(string); ok {
			dst.S3.Endpoint = v
		}
		if v, ok := s3["region"].(string); ok {
			dst.S3.Region = v
		}
		if v, ok := s3["bucket"].(string); ok {
			dst.S3.Bucket = v
		}
		if v, ok := s3["use_ssl"].(bool); ok {
			dst.S3.UseSSL = v
		}
		if v, ok := s3["use_path_style"].(bool); ok {
			dst.S3.UsePathStyle = v
		}
	}
}
