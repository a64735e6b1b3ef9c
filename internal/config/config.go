package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed quality.yaml
var qualityYAML []byte

type Config struct {
	Extractor   ExtractorConfig
	Recognition RecognitionConfig
	Enrollment  EnrollmentConfig
	Session     SessionConfig
	Database    DatabaseConfig
	Admin       AdminConfig
	Quality     QualityConfig
}

type ExtractorConfig struct {
	URL          string        // base URL of the face engine service (e.g., http://localhost:8000)
	Timeout      time.Duration // per-request timeout applied by the client
	MaxFrameSize int           // frames larger than this (px) are downscaled before upload
}

type RecognitionConfig struct {
	SimilarityThreshold float64 // minimum cosine similarity for a gallery match
	ConfirmK            int     // matches required within the window
	WindowN             int     // rolling window size
	CooldownSeconds     int     // suppression after a confirmed identity
}

type EnrollmentConfig struct {
	MinFrames     int     // batch fails below this many quality frames
	MaxEmbeddings int     // embeddings kept per student
	DuplicateSim  float64 // similarity above which a new enrollee is flagged as already enrolled
}

type SessionConfig struct {
	SweepInterval        time.Duration // scheduler tick interval
	AbsenteeBufferMin    int           // minutes after the late threshold before absentees are finalized
	DefaultLateThreshold int           // minutes, used when a session or slot does not set one
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

type AdminConfig struct {
	Username string
	Password string
}

// QualityConfig holds the enrollment quality-gate thresholds.
// Defaults ship embedded in quality.yaml; the most commonly tuned values
// can be overridden through environment variables.
type QualityConfig struct {
	MinFaceSize     int     `yaml:"min_face_size"`  // minimum face crop width/height in pixels
	SharpnessMin    float64 `yaml:"sharpness_min"`  // Laplacian-variance style sharpness floor
	SharpnessNorm   float64 `yaml:"sharpness_norm"` // divisor used to normalize sharpness into [0,1]
	YawMaxDegrees   float64 `yaml:"yaw_max_degrees"`
	PitchMaxDegrees float64 `yaml:"pitch_max_degrees"`
	RollMaxDegrees  float64 `yaml:"roll_max_degrees"`
	WeightDetScore  float64 `yaml:"weight_det_score"`
	WeightSharpness float64 `yaml:"weight_sharpness"`
	WeightPose      float64 `yaml:"weight_pose"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var quality QualityConfig
	if err := yaml.Unmarshal(qualityYAML, &quality); err != nil {
		// Embedded file, so this should never happen in practice.
		panic("failed to unmarshal embedded quality.yaml: " + err.Error())
	}
	quality.MinFaceSize = envInt("QUALITY_MIN_FACE_SIZE", quality.MinFaceSize)
	quality.SharpnessMin = envFloat("QUALITY_SHARPNESS_MIN", quality.SharpnessMin)

	return &Config{
		Extractor: ExtractorConfig{
			URL:          os.Getenv("EXTRACTOR_URL"),
			Timeout:      time.Duration(envInt("EXTRACTOR_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxFrameSize: envInt("EXTRACTOR_MAX_FRAME_SIZE", 1280),
		},
		Recognition: RecognitionConfig{
			SimilarityThreshold: envFloat("RECOGNITION_THRESHOLD", 0.6),
			ConfirmK:            envInt("RECOGNITION_CONFIRM_K", 5),
			WindowN:             envInt("RECOGNITION_WINDOW_N", 10),
			CooldownSeconds:     envInt("RECOGNITION_COOLDOWN_SECONDS", 120),
		},
		Enrollment: EnrollmentConfig{
			MinFrames:     envInt("ENROLLMENT_MIN_FRAMES", 5),
			MaxEmbeddings: envInt("ENROLLMENT_MAX_EMBEDDINGS", 10),
			DuplicateSim:  envFloat("ENROLLMENT_DUPLICATE_SIMILARITY", 0.85),
		},
		Session: SessionConfig{
			SweepInterval:        time.Duration(envInt("SESSION_SWEEP_SECONDS", 60)) * time.Second,
			AbsenteeBufferMin:    envInt("SESSION_ABSENTEE_BUFFER_MINUTES", 5),
			DefaultLateThreshold: envInt("SESSION_LATE_THRESHOLD_MINUTES", 15),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Admin: AdminConfig{
			Username: os.Getenv("ADMIN_USERNAME"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		Quality: quality,
	}
}
