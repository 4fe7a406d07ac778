package config

import (
	"os"
	"strconv"
)

type AppConfig struct {
	Port           int
	Endpoint       string
	Topic          string
	Debug          bool
	DebugRate      float64
	DebugWidth     int
	DebugHeight    int
	TargetFPS      float64
	Decimation     int
	AutoContrast   bool
	ContrastEvery  int
	Grayscale      bool
	FlatField      bool
	Transpose      bool
	FlipHorizontal bool
	FlipVertical   bool
	ViewportWidth  int
	ViewportHeight int
	CaptureEnabled bool
	CaptureDir     string
	IngestLogEvery int
}

// ApplyEnv overlays PYSTREAM_* environment variables onto the config. Used
// for flag defaults; explicit flags still win because flags are parsed after
// the overlay. Malformed values are ignored.
func ApplyEnv(cfg *AppConfig) {
	if v := os.Getenv("PYSTREAM_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("PYSTREAM_TOPIC"); v != "" {
		cfg.Topic = v
	}
	if v, ok := envInt("PYSTREAM_PORT"); ok {
		cfg.Port = v
	}
	if v, ok := envFloat("PYSTREAM_TARGET_FPS"); ok {
		cfg.TargetFPS = v
	}
	if v, ok := envInt("PYSTREAM_DECIMATION"); ok {
		cfg.Decimation = v
	}
	if v, ok := envBool("PYSTREAM_AUTO_CONTRAST"); ok {
		cfg.AutoContrast = v
	}
	if v, ok := envInt("PYSTREAM_CONTRAST_EVERY"); ok {
		cfg.ContrastEvery = v
	}
	if v, ok := envBool("PYSTREAM_FLAT_FIELD"); ok {
		cfg.FlatField = v
	}
	if v := os.Getenv("PYSTREAM_CAPTURE_DIR"); v != "" {
		cfg.CaptureDir = v
		cfg.CaptureEnabled = true
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
