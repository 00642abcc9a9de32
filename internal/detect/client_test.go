package detect

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func mockFaceServer(t *testing.T, status int, body string, gotSize *image.Point) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if gotSize != nil {
			if img, err := jpeg.Decode(file); err == nil {
				*gotSize = img.Bounds().Size()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientDetectScalesBoxesBack(t *testing.T) {
	var uploaded image.Point
	server := mockFaceServer(t, http.StatusOK, `{
		"faces_count": 2,
		"faces": [
			{"face_index": 0, "dim": 3, "embedding": [0.1, 0.2, 0.3], "bbox": [10, 5, 20, 15], "det_score": 0.98},
			{"face_index": 1, "dim": 0, "embedding": [], "bbox": [0, 0, 4, 4], "det_score": 0.4}
		],
		"model": "buffalo_l"
	}`, &uploaded)

	client := NewClient(server.URL, WithScale(0.25))
	frame := image.NewRGBA(image.Rect(0, 0, 400, 200))

	detections, err := client.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if uploaded != (image.Point{X: 100, Y: 50}) {
		t.Fatalf("uploaded frame size = %v, want 100x50", uploaded)
	}
	if len(detections) != 1 {
		t.Fatalf("Detect() returned %d detections, want 1 (face without embedding skipped)", len(detections))
	}

	want := Box{Top: 20, Right: 80, Bottom: 60, Left: 40}
	if detections[0].Box != want {
		t.Fatalf("Box = %+v, want %+v", detections[0].Box, want)
	}
	if len(detections[0].Vector) != 3 || detections[0].Score != 0.98 {
		t.Fatalf("unexpected detection: %+v", detections[0])
	}
}

func TestClientDetectServiceError(t *testing.T) {
	server := mockFaceServer(t, http.StatusInternalServerError, `model not loaded`, nil)

	client := NewClient(server.URL)
	_, err := client.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("Detect() error = %v, want API status error", err)
	}
}

func TestClientEncode(t *testing.T) {
	t.Run("first face", func(t *testing.T) {
		server := mockFaceServer(t, http.StatusOK, `{"faces_count": 1, "faces": [{"embedding": [1, 2], "bbox": [0, 0, 5, 5]}]}`, nil)
		vec, err := NewClient(server.URL).Encode(context.Background(), []byte("\xff\xd8\xff fake jpeg"))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(vec) != 2 || vec[0] != 1 || vec[1] != 2 {
			t.Fatalf("Encode() = %v, want [1 2]", vec)
		}
	})

	t.Run("no face", func(t *testing.T) {
		server := mockFaceServer(t, http.StatusOK, `{"faces_count": 0, "faces": []}`, nil)
		_, err := NewClient(server.URL).Encode(context.Background(), []byte("\xff\xd8\xff fake jpeg"))
		if !errors.Is(err, ErrNoFace) {
			t.Fatalf("Encode() error = %v, want ErrNoFace", err)
		}
	})
}

func TestBoxFromCorners(t *testing.T) {
	box, ok := BoxFromCorners([]float64{10.4, 5.6, 20.2, 15.1})
	if !ok {
		t.Fatalf("BoxFromCorners() ok = false")
	}
	want := Box{Top: 5, Right: 21, Bottom: 16, Left: 10}
	if box != want {
		t.Fatalf("BoxFromCorners() = %+v, want %+v", box, want)
	}

	if _, ok := BoxFromCorners([]float64{1, 2, 3}); ok {
		t.Fatalf("BoxFromCorners() with 3 values ok = true, want false")
	}
}

func TestBoxClip(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)

	tests := []struct {
		name  string
		box   Box
		want  Box
		empty bool
	}{
		{"inside", Box{Top: 10, Right: 30, Bottom: 20, Left: 5}, Box{Top: 10, Right: 30, Bottom: 20, Left: 5}, false},
		{"overflow", Box{Top: -10, Right: 130, Bottom: 70, Left: 90}, Box{Top: 0, Right: 100, Bottom: 50, Left: 90}, false},
		{"outside", Box{Top: 60, Right: 30, Bottom: 80, Left: 5}, Box{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.box.Clip(bounds)
			if got.Empty() != tt.empty {
				t.Fatalf("Clip().Empty() = %v, want %v", got.Empty(), tt.empty)
			}
			if !tt.empty && got != tt.want {
				t.Fatalf("Clip() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
