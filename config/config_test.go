package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, "model/best.onnx", cfg.ModelPath)
	assert.Equal(t, DefaultOnnxLibName(), cfg.OnnxLibPath)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.GreaterOrEqual(t, cfg.IntraOpThreads, 1)
	assert.Equal(t, 0.25, cfg.ConfThreshold)
	assert.Equal(t, 0.7, cfg.IoUThreshold)
	assert.Equal(t, 300, cfg.MaxDetections)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
	assert.Equal(t, int64(100_000_000), cfg.MaxImagePixels)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "8081")
	t.Setenv("MODEL_PATH", "/srv/model.onnx")
	t.Setenv("POOL_SIZE", "2")
	t.Setenv("CONF_THRESHOLD", "0.4")
	t.Setenv("DEBUG", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8081", cfg.Addr())
	assert.Equal(t, "/srv/model.onnx", cfg.ModelPath)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, 0.4, cfg.ConfThreshold)
	assert.True(t, cfg.Debug)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("IOU_THRESHOLD", "high")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 0.7, cfg.IoUThreshold)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("MAX_IMAGE_PIXELS", "5000000")

	cfg, err := Load([]string{"-port", "9000", "-model", "other.onnx", "-intra-threads", "3", "-max-pixels", "2000000"})
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), cfg.MaxImagePixels)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "other.onnx", cfg.ModelPath)
	assert.Equal(t, 3, cfg.IntraOpThreads)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model", func(c *Config) { c.ModelPath = "" }},
		{"port", func(c *Config) { c.Port = 70000 }},
		{"pool size", func(c *Config) { c.PoolSize = 0 }},
		{"confidence", func(c *Config) { c.ConfThreshold = 1.5 }},
		{"iou", func(c *Config) { c.IoUThreshold = -0.1 }},
		{"max detections", func(c *Config) { c.MaxDetections = 0 }},
		{"upload size", func(c *Config) { c.MaxUploadMB = 0 }},
		{"image pixels", func(c *Config) { c.MaxImagePixels = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"})
	assert.Error(t, err)
}
