package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

const (
	defaultServiceURL = "http://localhost:8000"
	defaultScale      = 0.25
	defaultTimeout    = 30 * time.Second
	uploadQuality     = 85
)

// Client talks to a face embedding service exposing POST /embed/face.
type Client struct {
	baseURL string
	scale   float64
	client  *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithScale sets the factor frames are shrunk by before upload. Values outside (0, 1]
// are ignored.
func WithScale(scale float64) ClientOption {
	return func(c *Client) {
		if scale > 0 && scale <= 1 {
			c.scale = scale
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		scale:   defaultScale,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// faceDetection represents a single detected face in the service response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Detect shrinks frame by the configured scale, asks the service for faces, and maps
// the returned boxes back onto the original frame.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	if frame == nil {
		return nil, fmt.Errorf("detect: nil frame")
	}

	small := shrink(frame, c.scale)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	resp, err := c.embedFaces(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}

	bounds := frame.Bounds()
	detections := make([]Detection, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		if len(face.Embedding) == 0 {
			continue
		}
		box, ok := BoxFromCorners(face.BBox)
		if !ok {
			continue
		}
		box = box.Scale(1 / c.scale)
		box = Box{
			Top:    box.Top + bounds.Min.Y,
			Right:  box.Right + bounds.Min.X,
			Bottom: box.Bottom + bounds.Min.Y,
			Left:   box.Left + bounds.Min.X,
		}.Clip(bounds)
		if box.Empty() {
			continue
		}
		detections = append(detections, Detection{
			Box:    box,
			Vector: face.Embedding,
			Score:  face.DetScore,
		})
	}
	return detections, nil
}

// Encode returns the embedding of the first face found in imageData.
func (c *Client) Encode(ctx context.Context, imageData []byte) ([]float32, error) {
	resp, err := c.embedFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	for _, face := range resp.Faces {
		if len(face.Embedding) > 0 {
			return face.Embedding, nil
		}
	}
	return nil, ErrNoFace
}

func (c *Client) embedFaces(ctx context.Context, imageData []byte) (*faceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// postMultipartImage posts imageData as the "file" form field with a sniffed content type.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// shrink scales img by factor, returning img untouched when factor is 1.
func shrink(img image.Image, factor float64) image.Image {
	if factor >= 1 {
		return img
	}
	bounds := img.Bounds()
	w := max(1, int(float64(bounds.Dx())*factor))
	h := max(1, int(float64(bounds.Dy())*factor))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
