package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8081" || !cfg.Standalone() {
		t.Errorf("Expected port 8081 in standalone mode, got %s %s", cfg.Port, cfg.QueueBackend)
	}
	if cfg.DefaultImageQuality != 80 || cfg.DefaultVideoQuality != 50 || cfg.DefaultAudioBitrate != 6.0 {
		t.Errorf("Unexpected defaults %d %d %g", cfg.DefaultImageQuality, cfg.DefaultVideoQuality, cfg.DefaultAudioBitrate)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected 100MB limit, got %d", cfg.MaxFileSize)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("DEFAULT_AUDIO_BITRATE", "12.5")
	t.Setenv("RETENTION", "1h")
	t.Setenv("MAX_FILE_SIZE", "oops")

	cfg := Load()
	if cfg.Standalone() {
		t.Error("Expected kafka mode")
	}
	if got := cfg.Brokers(); len(got) != 2 || got[0] != "a:9092" {
		t.Errorf("Unexpected brokers %v", got)
	}
	if cfg.DefaultAudioBitrate != 12.5 {
		t.Errorf("Expected 12.5, got %g", cfg.DefaultAudioBitrate)
	}
	if cfg.Backend.BlobTTL != time.Hour {
		t.Errorf("Expected blob TTL of 1h, got %s", cfg.Backend.BlobTTL)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected malformed size to keep the default, got %d", cfg.MaxFileSize)
	}
}
