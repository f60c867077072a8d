package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Host           string
	Port           int
	ModelPath      string
	ClassNamesPath string
	LabelsPath     string
	OnnxLibPath    string
	PoolSize       int
	IntraOpThreads int
	ConfThreshold  float64
	IoUThreshold   float64
	MaxDetections  int
	MaxUploadMB    int64
	MaxImagePixels int64
	LogLevel       string
	LogFormat      string
	Debug          bool
}

// Load reads an optional .env file, then the environment, then command-line
// flags, each layer overriding the previous one.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := FromEnv()

	fs := flag.NewFlagSet("stage-detection-service", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Bind port")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Path to the ONNX detection model")
	fs.StringVar(&cfg.ClassNamesPath, "class-names", cfg.ClassNamesPath, "YAML class names overriding model metadata")
	fs.StringVar(&cfg.LabelsPath, "labels", cfg.LabelsPath, "YAML map of class name to localized name")
	fs.StringVar(&cfg.OnnxLibPath, "onnxruntime-lib", cfg.OnnxLibPath, "Path to the onnxruntime shared library")
	fs.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "Number of model sessions")
	fs.IntVar(&cfg.IntraOpThreads, "intra-threads", cfg.IntraOpThreads, "Intra-op threads per session")
	fs.Float64Var(&cfg.ConfThreshold, "conf", cfg.ConfThreshold, "Minimum detection confidence")
	fs.Float64Var(&cfg.IoUThreshold, "iou", cfg.IoUThreshold, "NMS IoU threshold")
	fs.IntVar(&cfg.MaxDetections, "max-det", cfg.MaxDetections, "Maximum detections per image")
	fs.Int64Var(&cfg.MaxUploadMB, "max-upload-mb", cfg.MaxUploadMB, "Maximum request body size in MB")
	fs.Int64Var(&cfg.MaxImagePixels, "max-pixels", cfg.MaxImagePixels, "Maximum decoded image width*height")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.IntraOpThreads <= 0 {
		cfg.IntraOpThreads = defaultIntraOpThreads(cfg.PoolSize)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	poolSize := getEnvAsInt("POOL_SIZE", 4)
	return &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnvAsInt("PORT", 5000),
		ModelPath:      getEnv("MODEL_PATH", "model/best.onnx"),
		ClassNamesPath: getEnv("CLASS_NAMES_PATH", ""),
		LabelsPath:     getEnv("LABELS_PATH", ""),
		OnnxLibPath:    getEnv("ONNXRUNTIME_LIB", DefaultOnnxLibName()),
		PoolSize:       poolSize,
		IntraOpThreads: getEnvAsInt("INTRA_OP_THREADS", 0),
		ConfThreshold:  getEnvAsFloat("CONF_THRESHOLD", 0.25),
		IoUThreshold:   getEnvAsFloat("IOU_THRESHOLD", 0.7),
		MaxDetections:  getEnvAsInt("MAX_DETECTIONS", 300),
		MaxUploadMB:    getEnvAsInt64("MAX_UPLOAD_MB", 32),
		MaxImagePixels: getEnvAsInt64("MAX_IMAGE_PIXELS", 100_000_000),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		Debug:          getEnv("DEBUG", "") == "true",
	}
}

func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("IoU threshold %v outside [0,1]", c.IoUThreshold)
	}
	if c.MaxDetections <= 0 {
		return fmt.Errorf("max detections must be positive, got %d", c.MaxDetections)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadMB)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max image pixels must be positive, got %d", c.MaxImagePixels)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// DefaultOnnxLibName is the onnxruntime library file name the dynamic loader
// resolves on this platform.
func DefaultOnnxLibName() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

func defaultIntraOpThreads(poolSize int) int {
	if poolSize <= 0 {
		return 1
	}
	return max(1, runtime.NumCPU()/poolSize)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
