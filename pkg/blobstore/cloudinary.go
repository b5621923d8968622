package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// ErrNotFound indicates the requested document does not exist in the store.
var ErrNotFound = errors.New("blob not found")

// Store abstracts the document store holding published quiz definitions.
type Store interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte) (string, error)
}

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Cloudinary implements Store against Cloudinary raw assets. Documents are
// keyed by a slash-separated path under the configured folder.
type Cloudinary struct {
	client    *cloudinary.Cloudinary
	cloudName string
	folder    string
	http      *http.Client
	logger    zerolog.Logger
}

// New constructs a Cloudinary-backed store instance.
func New(cfg Config, logger zerolog.Logger) (*Cloudinary, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Cloudinary{
		client:    cld,
		cloudName: cfg.CloudName,
		folder:    strings.Trim(cfg.Folder, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With().Str("component", "blobstore").Logger(),
	}, nil
}

// Upload stores the document under the given path and returns the delivery URL.
func (s *Cloudinary) Upload(ctx context.Context, path string, data []byte) (string, error) {
	publicID := sanitizePath(path)
	if publicID == "" {
		return "", fmt.Errorf("blob path must not be empty")
	}

	overwrite := true
	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "raw",
		Overwrite:    &overwrite,
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("document uploaded")

	return result.SecureURL, nil
}

// Download fetches the document bytes from the delivery URL. The SDK is
// upload/admin oriented, so reads go straight to the CDN endpoint.
func (s *Cloudinary) Download(ctx context.Context, path string) ([]byte, error) {
	publicID := sanitizePath(path)
	if publicID == "" {
		return nil, fmt.Errorf("blob path must not be empty")
	}

	url := fmt.Sprintf("https://res.cloudinary.com/%s/raw/upload/%s/%s", s.cloudName, s.folder, publicID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching document", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func sanitizePath(path string) string {
	cleaned := strings.Trim(strings.TrimSpace(path), "/")
	cleaned = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '/' || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '-'
	}, cleaned)

	return cleaned
}
