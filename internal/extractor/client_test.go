package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDetectAndEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("Expected path /embed/face, got %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Expected multipart request, got %s", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("Expected file part: %v", err)
		}

		resp := Response{
			FacesCount: 1,
			Faces: []Face{{
				FaceIndex: 0,
				Dim:       4,
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
				BBox:      []float64{10, 20, 110, 150},
				DetScore:  0.97,
				Sharpness: 180.5,
				Yaw:       3.2,
			}},
			Model: "buffalo_l",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	resp, err := client.DetectAndEmbed(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatalf("DetectAndEmbed failed: %v", err)
	}
	if resp.FacesCount != 1 {
		t.Fatalf("Expected 1 face, got %d", resp.FacesCount)
	}
	face := resp.Faces[0]
	if face.Width() != 100 {
		t.Errorf("Expected width 100, got %f", face.Width())
	}
	if face.Height() != 130 {
		t.Errorf("Expected height 130, got %f", face.Height())
	}
	if face.Sharpness != 180.5 {
		t.Errorf("Expected sharpness 180.5, got %f", face.Sharpness)
	}
}

func TestDetectAndEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.DetectAndEmbed(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00})
	if err == nil {
		t.Fatal("Expected error on 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status code in error, got: %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"webp", []byte{0x52, 0x49, 0x46, 0x46, 0, 0, 0, 0, 0x57, 0x45, 0x42, 0x50}, "image/webp"},
		{"unknown", []byte{0, 1, 2, 3, 4, 5, 6, 7}, "application/octet-stream"},
		{"too short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.expected {
				t.Errorf("detectMIMEType = %s; want %s", got, tc.expected)
			}
		})
	}
}

func makeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareFrame(t *testing.T) {
	t.Run("small frame passes through", func(t *testing.T) {
		data := makeTestJPEG(t, 640, 480)
		out, err := PrepareFrame(data, 1280)
		if err != nil {
			t.Fatalf("PrepareFrame failed: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Error("Expected small frame to pass through unchanged")
		}
	})

	t.Run("large frame is downscaled", func(t *testing.T) {
		data := makeTestJPEG(t, 2560, 1440)
		out, err := PrepareFrame(data, 1280)
		if err != nil {
			t.Fatalf("PrepareFrame failed: %v", err)
		}
		img, _, err := image.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("Failed to decode output: %v", err)
		}
		if img.Bounds().Dx() != 1280 {
			t.Errorf("Expected width 1280, got %d", img.Bounds().Dx())
		}
		if img.Bounds().Dy() != 720 {
			t.Errorf("Expected height 720, got %d", img.Bounds().Dy())
		}
	})

	t.Run("invalid data", func(t *testing.T) {
		if _, err := PrepareFrame([]byte("not an image"), 1280); err == nil {
			t.Error("Expected error for invalid data")
		}
	})

	t.Run("disabled when maxSize is zero", func(t *testing.T) {
		data := []byte("raw")
		out, err := PrepareFrame(data, 0)
		if err != nil {
			t.Fatalf("PrepareFrame failed: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Error("Expected pass-through when disabled")
		}
	})
}
