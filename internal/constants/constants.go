// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// File upload constants
const (
	// MaxFrameUploadSize is the maximum size of a single camera frame upload (10MB)
	MaxFrameUploadSize = 10 << 20

	// MaxEnrollmentUploadSize is the maximum total size of an enrollment batch (100MB)
	MaxEnrollmentUploadSize = 100 << 20

	// MaxEnrollmentFrames is the maximum number of frames accepted per enrollment batch
	MaxEnrollmentFrames = 50
)

// Recognition constants
const (
	// EmbeddingDim is the expected embedding dimensionality from the face engine
	EmbeddingDim = 512
)
