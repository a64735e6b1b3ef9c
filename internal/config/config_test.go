package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Recognition.SimilarityThreshold != 0.6 {
		t.Errorf("expected default threshold 0.6, got %v", cfg.Recognition.SimilarityThreshold)
	}
	if cfg.Recognition.ConfirmK != 5 || cfg.Recognition.WindowN != 10 {
		t.Errorf("expected default K=5 N=10, got K=%d N=%d", cfg.Recognition.ConfirmK, cfg.Recognition.WindowN)
	}
	if cfg.Session.SweepInterval != 60*time.Second {
		t.Errorf("expected 60s sweep interval, got %v", cfg.Session.SweepInterval)
	}
	if cfg.Enrollment.MinFrames != 5 {
		t.Errorf("expected min frames 5, got %d", cfg.Enrollment.MinFrames)
	}
}

func TestEmbeddedQualityDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Quality.MinFaceSize != 80 {
		t.Errorf("expected min face size 80, got %d", cfg.Quality.MinFaceSize)
	}
	if cfg.Quality.SharpnessMin != 100.0 {
		t.Errorf("expected sharpness min 100, got %v", cfg.Quality.SharpnessMin)
	}
	sum := cfg.Quality.WeightDetScore + cfg.Quality.WeightSharpness + cfg.Quality.WeightPose
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("quality weights should sum to 1, got %v", sum)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RECOGNITION_THRESHOLD", "0.75")
	t.Setenv("RECOGNITION_CONFIRM_K", "3")
	t.Setenv("QUALITY_MIN_FACE_SIZE", "120")

	cfg := Load()

	if cfg.Recognition.SimilarityThreshold != 0.75 {
		t.Errorf("expected threshold 0.75, got %v", cfg.Recognition.SimilarityThreshold)
	}
	if cfg.Recognition.ConfirmK != 3 {
		t.Errorf("expected K=3, got %d", cfg.Recognition.ConfirmK)
	}
	if cfg.Quality.MinFaceSize != 120 {
		t.Errorf("expected min face size 120, got %d", cfg.Quality.MinFaceSize)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("RECOGNITION_CONFIRM_K", "not-a-number")
	cfg := Load()
	if cfg.Recognition.ConfirmK != 5 {
		t.Errorf("expected fallback K=5, got %d", cfg.Recognition.ConfirmK)
	}
}
