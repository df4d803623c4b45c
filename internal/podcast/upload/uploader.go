// Package upload moves blobs between the pipeline and S3-compatible object
// storage: source PDFs in, finished podcast audio out.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/podforge/podforge-be/internal/podcast/domain"
)

// MaxPodcastBytes is the hard payload ceiling for the finished audio,
// checked before the upload is even attempted.
const MaxPodcastBytes = 4400000

const uploadTimeout = 3 * time.Minute

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Config holds object storage settings. Endpoint is optional and enables
// S3-compatible services.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string
	PublicBaseURL   string
}

// Client is the S3-backed blob store for source documents and podcasts.
type Client struct {
	s3c     *s3.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewClient creates an S3 storage client. For S3-compatible services, set
// the endpoint in the config.
func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3c:     s3c,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:  logger,
	}, nil
}

// PutSource stores an uploaded document and returns its object key.
func (c *Client) PutSource(ctx context.Context, jobID, filename string, data []byte) (string, error) {
	key := path.Join("sources", jobID, SanitizeFilename(filename, path.Ext(filename)))

	if err := c.put(ctx, key, data, "application/pdf"); err != nil {
		return "", fmt.Errorf("failed to upload source document: %w", err)
	}

	return key, nil
}

// GetSource downloads a stored source document.
func (c *Client) GetSource(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.s3c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download source document: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read source document: %w", err)
	}

	return data, nil
}

// PutPodcast enforces the payload ceiling, uploads the assembled audio
// under a name derived from the source document, and returns the durable
// public URL. This URL is the only permitted value for podcast_url.
func (c *Client) PutPodcast(ctx context.Context, jobID, sourceFilename string, data []byte) (string, error) {
	if len(data) > MaxPodcastBytes {
		return "", &domain.PayloadTooLargeError{SizeBytes: len(data), MaxBytes: MaxPodcastBytes}
	}

	key := path.Join("podcasts", jobID, SanitizeFilename(sourceFilename, ".wav"))

	c.logger.Info("Uploading podcast audio",
		slog.String("key", key),
		slog.Int("size_bytes", len(data)),
	)

	if err := c.put(ctx, key, data, "audio/wav"); err != nil {
		return "", fmt.Errorf("failed to upload podcast audio: %w", err)
	}

	return c.baseURL + "/" + key, nil
}

func (c *Client) put(ctx context.Context, key string, data []byte, contentType string) error {
	putCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := c.s3c.PutObject(putCtx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		ACL:          types.ObjectCannedACLPublicRead,
		CacheControl: aws.String("public, max-age=86400"),
	})
	if err != nil {
		return err
	}

	return nil
}

// SanitizeFilename strips unsafe characters from a user-supplied filename
// and normalizes the extension. An empty or fully-stripped name falls back
// to "podcast".
func SanitizeFilename(filename, ext string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._-")
	if base == "" {
		base = "podcast"
	}
	return base + ext
}
