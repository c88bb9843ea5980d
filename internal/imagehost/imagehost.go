// Package imagehost uploads cover and avatar images to the external image
// host and returns their public URLs.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/five82/shelf/internal/apperr"
)

// MaxImageSize is the largest accepted upload in bytes.
const MaxImageSize = 5 << 20

var (
	ErrEmptyImage = errors.New("image is empty")
	ErrTooLarge   = errors.New("image must be 5MB or smaller")
	ErrNotImage   = errors.New("file must be an image")
)

// Image is an image file read into memory.
type Image struct {
	Name string
	Data []byte
}

// Empty reports whether no image was supplied.
func (i Image) Empty() bool { return len(i.Data) == 0 }

// LoadImage reads the file at path.
func LoadImage(path string) (Image, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Image{}, ErrEmptyImage
	}
	info, err := os.Stat(path)
	if err != nil {
		return Image{}, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > MaxImageSize {
		return Image{}, ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Name: filepath.Base(path), Data: data}, nil
}

// Check verifies the size limit and sniffs the content type, returning the
// detected MIME type.
func Check(img Image) (string, error) {
	if img.Empty() {
		return "", ErrEmptyImage
	}
	if len(img.Data) > MaxImageSize {
		return "", ErrTooLarge
	}
	mt := mimetype.Detect(img.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotImage
	}
	return mt.String(), nil
}

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, img Image) (string, error)
}

var _ Uploader = (*Client)(nil)

const (
	defaultBaseURL   = "https://api.imgbb.com"
	uploadPath       = "/1/upload"
	uploadTimeout    = 30 * time.Second
	defaultUserAgent = "shelf/0.1"
)

// Client uploads to an imgbb-compatible host.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLimiter replaces the default upload limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout sets the upload timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient builds a Client for the host at baseURL using apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse image host url %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL: u,
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: uploadTimeout},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type uploadResponse struct {
	Data struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload validates img and posts it to the host.
func (c *Client) Upload(ctx context.Context, img Image) (string, error) {
	const op = "upload image"
	mimeType, err := Check(img)
	if err != nil {
		return "", apperr.Validation(op, map[string]string{"image": err.Error()})
	}
	if c.apiKey == "" {
		return "", apperr.Upstream(op, 0, "image host API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Network(op, err)
	}

	body, contentType, err := multipartBody(img)
	if err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	values := url.Values{}
	values.Set("key", c.apiKey)
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: uploadPath, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("image upload failed", zap.String("request_id", requestID), zap.Error(err))
		return "", apperr.Network(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload uploadResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)
	c.logger.Debug("image upload",
		zap.String("name", img.Name),
		zap.String("mime", mimeType),
		zap.Int("bytes", len(img.Data)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("request_id", requestID),
	)
	if resp.StatusCode >= 400 {
		return "", apperr.Upstream(op, resp.StatusCode, payload.Error.Message)
	}
	if decodeErr != nil {
		return "", &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: "malformed response", Status: resp.StatusCode, Err: decodeErr}
	}
	link := payload.Data.URL
	if link == "" {
		link = payload.Data.DisplayURL
	}
	if !payload.Success || link == "" {
		return "", apperr.Upstream(op, resp.StatusCode, payload.Error.Message)
	}
	return link, nil
}

func multipartBody(img Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	name := img.Name
	if name == "" {
		name = "image"
	}
	part, err := w.CreateFormFile("image", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
